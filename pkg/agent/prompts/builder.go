package prompts

import (
	"fmt"
	"strings"

	"github.com/patchsmith/patchsmith/pkg/agent/tools"
	"github.com/patchsmith/patchsmith/pkg/types"
)

// PromptBuilder constructs dynamic system prompts for the agent loop
type PromptBuilder struct {
	role              string
	tools             []tools.Tool
	repositoryContext string
}

// NewPromptBuilder creates a new prompt builder with default settings
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		tools: []tools.Tool{},
	}
}

// WithRole sets the stage-specific role section, placed at the top of the
// prompt. This is where the planner and editor describe their jobs.
func (pb *PromptBuilder) WithRole(role string) *PromptBuilder {
	pb.role = role
	return pb
}

// WithTools sets the available tools for the agent
func (pb *PromptBuilder) WithTools(toolsList []tools.Tool) *PromptBuilder {
	pb.tools = toolsList
	return pb
}

// WithRepositoryContext adds repository-specific context such as retrieved
// code snippets or checkout details
func (pb *PromptBuilder) WithRepositoryContext(context string) *PromptBuilder {
	pb.repositoryContext = context
	return pb
}

// Build constructs the complete system prompt by assembling all sections
func (pb *PromptBuilder) Build() string {
	var builder strings.Builder

	if pb.role != "" {
		builder.WriteString(pb.role)
		builder.WriteString("\n\n")
	}

	if pb.repositoryContext != "" {
		builder.WriteString("<repository_context>\n")
		builder.WriteString(pb.repositoryContext)
		builder.WriteString("\n</repository_context>\n\n")
	}

	builder.WriteString(AgentLoopPrompt)
	builder.WriteString("\n\n")

	builder.WriteString(ChainOfThoughtPrompt)
	builder.WriteString("\n\n")

	builder.WriteString(ToolCallingPrompt)
	builder.WriteString("\n\n")

	if len(pb.tools) > 0 {
		builder.WriteString("<available_tools>\n")
		builder.WriteString(FormatToolSchemas(pb.tools))
		builder.WriteString("</available_tools>\n\n")
	}

	builder.WriteString(ToolUseRulesPrompt)

	return builder.String()
}

// BuildMessages creates a complete message list including system prompt and
// conversation history. The errorContext parameter allows passing ephemeral
// error messages to the agent without storing them in permanent history -
// useful for self-healing error recovery.
func BuildMessages(systemPrompt string, history []*types.Message, errorContext string) []*types.Message {
	messages := make([]*types.Message, 0, len(history)+2)

	messages = append(messages, types.NewSystemMessage(systemPrompt))

	// Skip any existing system messages to avoid duplicates
	for _, msg := range history {
		if msg.Role != types.RoleSystem {
			messages = append(messages, msg)
		}
	}

	// Ephemeral error context is NOT stored in history - only used for this
	// iteration
	if errorContext != "" {
		messages = append(messages, types.NewUserMessage(errorContext))
	}

	return messages
}

// FormatToolSchemas renders each tool as a named block with its description
// and a concrete XML usage example.
func FormatToolSchemas(toolsList []tools.Tool) string {
	var builder strings.Builder

	for _, tool := range toolsList {
		builder.WriteString(fmt.Sprintf("## %s\n", tool.Name()))
		builder.WriteString(fmt.Sprintf("Description: %s\n", tool.Description()))
		builder.WriteString("Usage:\n")

		if provider, ok := tool.(XMLExampleProvider); ok {
			builder.WriteString(provider.XMLExample())
			builder.WriteString("\n\n")
			continue
		}

		builder.WriteString(GenerateXMLExample(tool.Schema(), tool.Name()))
		builder.WriteString("\n\n")
	}

	return builder.String()
}
