package tools

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolCall(t *testing.T) {
	text := "<tool>\n<tool_name>read_file</tool_name>\n<arguments>\n  <path>pkg/api/server.go</path>\n</arguments>\n</tool>"

	tc, err := ParseToolCall(text)
	require.NoError(t, err)
	assert.Equal(t, "read_file", tc.ToolName)
	assert.Contains(t, string(tc.GetArgumentsXML()), "<path>pkg/api/server.go</path>")
}

func TestParseToolCallMissingName(t *testing.T) {
	_, err := ParseToolCall("<tool>\n<arguments>\n  <path>x</path>\n</arguments>\n</tool>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool_name is required")
}

func TestParseToolCallNoToolBlock(t *testing.T) {
	_, err := ParseToolCall("just some prose without a call")
	assert.Error(t, err)
}

func TestParseToolCallOversized(t *testing.T) {
	_, err := ParseToolCall(strings.Repeat("x", maxXMLSize+1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum size")
}

func TestExtractThinkingAndToolCall(t *testing.T) {
	text := "<thinking>the handler lives in server.go</thinking>\n" +
		"<tool>\n<tool_name>read_file</tool_name>\n<arguments>\n  <path>server.go</path>\n</arguments>\n</tool>\n" +
		"trailing note"

	thinking, tc, remaining, err := ExtractThinkingAndToolCall(text)
	require.NoError(t, err)
	require.NotNil(t, tc)
	assert.Equal(t, "read_file", tc.ToolName)
	assert.Contains(t, thinking, "the handler lives in server.go")
	assert.Equal(t, "trailing note", remaining)
}

func TestExtractThinkingWithoutToolCall(t *testing.T) {
	thinking, tc, remaining, err := ExtractThinkingAndToolCall("only reasoning, no call")
	require.NoError(t, err)
	assert.Nil(t, tc)
	assert.Equal(t, "only reasoning, no call", thinking)
	assert.Empty(t, remaining)
}

func TestUnmarshalXMLWithFallbackEscapesBareAmpersands(t *testing.T) {
	var input struct {
		XMLName xml.Name `xml:"arguments"`
		Command string   `xml:"command"`
	}

	// Models routinely emit shell commands with unescaped ampersands.
	raw := []byte("<arguments><command>make build && make test</command></arguments>")
	require.NoError(t, UnmarshalXMLWithFallback(raw, &input))
	assert.Equal(t, "make build && make test", input.Command)

	// Existing entities survive the fallback pass.
	input.Command = ""
	raw = []byte("<arguments><command>grep &amp;&amp; sort</command></arguments>")
	require.NoError(t, UnmarshalXMLWithFallback(raw, &input))
	assert.Equal(t, "grep && sort", input.Command)
}
