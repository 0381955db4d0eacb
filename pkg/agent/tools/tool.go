package tools

import (
	"context"
	"encoding/xml"
)

// Tool represents a capability the agent loop can invoke. Tools are
// called by the model through XML-formatted tool calls:
//
//	<tool>
//	<tool_name>finish_exploration</tool_name>
//	<arguments>
//	  <result>Findings go here</result>
//	</arguments>
//	</tool>
type Tool interface {
	// Name returns the unique identifier for this tool (e.g., "task_completion")
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// Schema returns the JSON schema for this tool's input parameters
	// The schema should be a valid JSON Schema object defining the structure
	// of the arguments that this tool accepts
	Schema() map[string]interface{}

	// Execute runs the tool with the given XML arguments and returns a result string
	// The arguments should be unmarshaled from XML into the tool's argument struct
	// Returns: (result string, metadata map, error)
	// Metadata is optional and can be nil - it will be included in tool result events
	Execute(ctx context.Context, argumentsXML []byte) (string, map[string]interface{}, error)

	// IsLoopBreaking indicates whether this tool should terminate the agent loop
	// Loop-breaking tools (like task_completion) cause the agent to stop
	// iterating and return control to the caller
	IsLoopBreaking() bool
}

// ToolCall represents a parsed tool invocation from the model's response.
type ToolCall struct {
	XMLName   xml.Name       `xml:"tool"`
	ToolName  string         `xml:"tool_name"`
	Arguments ArgumentsBlock `xml:"arguments"`
}

// ArgumentsBlock holds the raw XML of the arguments element
type ArgumentsBlock struct {
	InnerXML []byte `xml:",innerxml"`
}

// GetArgumentsXML returns the arguments wrapped in <arguments> tags for unmarshaling.
// Uses efficient byte slice operations to avoid multiple string allocations.
func (tc *ToolCall) GetArgumentsXML() []byte {
	const prefix = "<arguments>"
	const suffix = "</arguments>"

	// Pre-allocate exact size needed
	result := make([]byte, 0, len(prefix)+len(tc.Arguments.InnerXML)+len(suffix))
	result = append(result, []byte(prefix)...)
	result = append(result, tc.Arguments.InnerXML...)
	result = append(result, []byte(suffix)...)
	return result
}

// BaseToolSchema creates a common JSON schema structure for a tool
// with the given properties and required fields
func BaseToolSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
