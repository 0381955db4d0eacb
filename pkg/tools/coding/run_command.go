package coding

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/patchsmith/patchsmith/pkg/agent/tools"
	"github.com/patchsmith/patchsmith/pkg/sandbox"
)

// commandOutputLimit caps captured output per stream so a noisy build
// doesn't blow the model's context.
const commandOutputLimit = 16 * 1024

// RunCommandTool executes shell commands inside the sandbox, for running
// tests, builds, and syntax checks against the edited checkout.
type RunCommandTool struct {
	sandbox sandbox.Sandbox
}

// NewRunCommandTool creates a RunCommandTool bound to a sandbox.
func NewRunCommandTool(sb sandbox.Sandbox) *RunCommandTool {
	return &RunCommandTool{sandbox: sb}
}

// Name returns the tool name.
func (t *RunCommandTool) Name() string {
	return "run_command"
}

// Description returns the tool description.
func (t *RunCommandTool) Description() string {
	return "Execute a shell command in the repository root. Returns stdout, stderr, and the exit code. Use to run tests, builds, or inspect the repository state."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *RunCommandTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "Shell command to execute",
			},
		},
		[]string{"command"},
	)
}

// Execute runs the command in the sandbox and formats the result. A
// non-zero exit code is shown to the agent rather than returned as an
// error, so it can react to failing tests.
func (t *RunCommandTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName xml.Name `xml:"arguments"`
		Command string   `xml:"command"`
	}

	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(input.Command) == "" {
		return "", nil, fmt.Errorf("missing required parameter: command")
	}

	result, err := t.sandbox.RunCommand(ctx, input.Command)
	if err != nil {
		return "", nil, fmt.Errorf("command execution failed: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Exit code: %d\n", result.ExitCode))
	if out := truncateOutput(result.Stdout); out != "" {
		sb.WriteString("\nStdout:\n")
		sb.WriteString(out)
	}
	if errOut := truncateOutput(result.Stderr); errOut != "" {
		sb.WriteString("\nStderr:\n")
		sb.WriteString(errOut)
	}

	metadata := map[string]interface{}{
		"command":     input.Command,
		"exit_code":   result.ExitCode,
		"duration_ms": result.Duration.Milliseconds(),
	}
	return strings.TrimRight(sb.String(), "\n"), metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *RunCommandTool) IsLoopBreaking() bool {
	return false
}

func truncateOutput(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= commandOutputLimit {
		return s
	}
	return s[:commandOutputLimit] + "\n... (output truncated)"
}
