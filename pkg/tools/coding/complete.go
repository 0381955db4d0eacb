package coding

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/patchsmith/patchsmith/pkg/agent/tools"
)

// CompletionTool is a loop-breaking tool the agent calls to signal it has
// finished its current objective. The planner and editor each register one
// under a stage-appropriate name.
type CompletionTool struct {
	name        string
	description string
}

// NewCompletionTool creates a loop-breaking completion tool with the given
// name and description.
func NewCompletionTool(name, description string) *CompletionTool {
	return &CompletionTool{name: name, description: description}
}

// Name returns the tool name.
func (t *CompletionTool) Name() string {
	return t.name
}

// Description returns the tool description.
func (t *CompletionTool) Description() string {
	return t.description
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *CompletionTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"result": map[string]interface{}{
				"type":        "string",
				"description": "Summary of what was accomplished",
			},
		},
		[]string{"result"},
	)
}

// Execute returns the result summary.
func (t *CompletionTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName xml.Name `xml:"arguments"`
		Result  string   `xml:"result"`
	}

	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if input.Result == "" {
		return "", nil, fmt.Errorf("missing required parameter: result")
	}
	return input.Result, nil, nil
}

// IsLoopBreaking returns true: calling this tool ends the agent loop.
func (t *CompletionTool) IsLoopBreaking() bool {
	return true
}
