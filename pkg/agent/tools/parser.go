package tools

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
)

// maxXMLSize bounds how much response text is fed to the XML decoder.
const maxXMLSize = 10 * 1024 * 1024

var toolRegex = regexp.MustCompile(`(?s)<tool>.*?</tool>`)

// ampersandEntityRegex matches ampersands that already start an XML entity
// so the fallback escape pass leaves them alone.
var ampersandEntityRegex = regexp.MustCompile(`&(?:amp|lt|gt|quot|apos|#\d+|#x[0-9a-fA-F]+);`)

// ParseToolCall extracts the single <tool> block from a model response.
// Every tool lives in the loop's own toolset, so a call carries just the
// tool name and an <arguments> element:
//
//	<tool>
//	<tool_name>read_file</tool_name>
//	<arguments>
//	  <path>pkg/api/server.go</path>
//	</arguments>
//	</tool>
func ParseToolCall(text string) (*ToolCall, error) {
	if len(text) > maxXMLSize {
		return nil, fmt.Errorf("tool call XML exceeds maximum size of %d bytes", maxXMLSize)
	}

	match := toolRegex.FindString(text)
	if match == "" {
		return nil, fmt.Errorf("no tool call found in text")
	}
	toolXML := strings.TrimSpace(match)

	var toolCall ToolCall
	if err := UnmarshalXMLWithFallback([]byte(toolXML), &toolCall); err != nil {
		snippet := toolXML
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		return nil, fmt.Errorf("failed to unmarshal tool call XML: %w\nXML snippet: %s", err, snippet)
	}

	if toolCall.ToolName == "" {
		return nil, fmt.Errorf("tool_name is required in tool call")
	}
	return &toolCall, nil
}

// ExtractThinkingAndToolCall splits a model response into the free-form
// reasoning before the tool call, the tool call itself, and any trailing
// text. A response without a <tool> block comes back entirely as thinking
// with a nil tool call; the loop treats that as a recoverable error.
func ExtractThinkingAndToolCall(text string) (thinking string, toolCall *ToolCall, remaining string, err error) {
	loc := toolRegex.FindStringIndex(text)
	if loc == nil {
		return text, nil, "", nil
	}

	thinking = strings.TrimSpace(text[:loc[0]])
	remaining = strings.TrimSpace(text[loc[1]:])

	toolCall, err = ParseToolCall(text[loc[0]:loc[1]])
	if err != nil {
		return thinking, nil, remaining, err
	}
	return thinking, toolCall, remaining, nil
}

// UnmarshalXMLWithFallback attempts to unmarshal XML, retrying with bare
// ampersands escaped when the first parse fails. Models routinely emit
// unescaped & inside code content.
func UnmarshalXMLWithFallback(data []byte, v interface{}) error {
	if err := xml.Unmarshal(data, v); err == nil {
		return nil
	}
	return xml.Unmarshal(escapeUnescapedAmpersands(data), v)
}

// escapeUnescapedAmpersands replaces bare & with &amp; while preserving
// existing entities.
func escapeUnescapedAmpersands(data []byte) []byte {
	text := string(data)

	entityPositions := make(map[int]bool)
	for _, match := range ampersandEntityRegex.FindAllStringIndex(text, -1) {
		entityPositions[match[0]] = true
	}

	var result strings.Builder
	result.Grow(len(text) + 20)
	for i := 0; i < len(text); i++ {
		if text[i] == '&' && !entityPositions[i] {
			result.WriteString("&amp;")
		} else {
			result.WriteByte(text[i])
		}
	}
	return []byte(result.String())
}
