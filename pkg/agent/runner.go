// Package agent implements the bounded tool-calling loop that powers plan
// generation and file editing. A Runner drives one loop: it sends the
// conversation to the model, parses the XML tool call out of the response,
// executes the tool, feeds the result back, and repeats until a
// loop-breaking tool fires or the step budget runs out.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/patchsmith/patchsmith/pkg/agent/prompts"
	"github.com/patchsmith/patchsmith/pkg/agent/tools"
	"github.com/patchsmith/patchsmith/pkg/llm"
	"github.com/patchsmith/patchsmith/pkg/logging"
	"github.com/patchsmith/patchsmith/pkg/types"
)

var agentLog *logging.Logger

func init() {
	var err error
	agentLog, err = logging.NewLogger("agent")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		agentLog.Warnf("Failed to initialize agent logger, using stderr fallback: %v", err)
	}
}

// ErrStepLimit is returned by Run when the loop exhausts its step budget
// before any loop-breaking tool fires.
var ErrStepLimit = errors.New("step limit reached without completion")

// maxConsecutiveErrors is the circuit breaker threshold: this many failed
// iterations in a row (tool errors, unknown tools, missing tool calls)
// abort the loop.
const maxConsecutiveErrors = 3

// Runner executes a bounded agent loop against a fixed tool set.
type Runner struct {
	provider llm.Provider
	tools    map[string]tools.Tool
	maxSteps int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxSteps sets the step budget. Each model turn counts as one step.
func WithMaxSteps(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxSteps = n
		}
	}
}

// NewRunner creates a Runner over the given tools. Tool names must be
// unique; a duplicate name is a programming error and panics.
func NewRunner(provider llm.Provider, toolset []tools.Tool, opts ...RunnerOption) *Runner {
	r := &Runner{
		provider: provider,
		tools:    make(map[string]tools.Tool, len(toolset)),
		maxSteps: 20,
	}
	for _, t := range toolset {
		if _, dup := r.tools[t.Name()]; dup {
			panic(fmt.Sprintf("duplicate tool name: %s", t.Name()))
		}
		r.tools[t.Name()] = t
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunResult is the outcome of one agent loop.
type RunResult struct {
	// Output is the result argument of the loop-breaking tool call, empty
	// when the loop did not complete.
	Output string

	// Steps is the number of model turns consumed.
	Steps int

	// History is the full conversation after the loop, excluding the
	// system prompt.
	History []*types.Message
}

// toolList returns the registered tools for prompt rendering.
func (r *Runner) toolList() []tools.Tool {
	list := make([]tools.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, t)
	}
	return list
}

// Run executes the loop: system prompt + task, then model turns until a
// loop-breaking tool fires. On step exhaustion it returns the partial
// result wrapped with ErrStepLimit so callers can still inspect the
// history.
func (r *Runner) Run(ctx context.Context, systemPrompt, task string) (*RunResult, error) {
	history := []*types.Message{types.NewUserMessage(task)}
	result := &RunResult{}

	var errorContext string
	consecutiveErrors := 0

	for result.Steps < r.maxSteps {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		messages := prompts.BuildMessages(systemPrompt, history, errorContext)
		errorContext = ""

		response, err := r.provider.Complete(ctx, messages)
		if err != nil {
			result.History = history
			return result, fmt.Errorf("model completion failed: %w", err)
		}
		result.Steps++
		history = append(history, response)

		_, toolCall, _, parseErr := tools.ExtractThinkingAndToolCall(response.Content)
		if parseErr != nil || toolCall == nil {
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveErrors {
				result.History = history
				return result, fmt.Errorf("circuit breaker: %d consecutive iterations without a valid tool call", consecutiveErrors)
			}
			if parseErr != nil {
				agentLog.Warnf("Malformed tool call on step %d: %v", result.Steps, parseErr)
				errorContext = fmt.Sprintf("Your tool call could not be parsed: %v. Respond with exactly one valid XML tool call.", parseErr)
			} else {
				errorContext = "Your response did not contain a tool call. Every response must end with exactly one XML tool call."
			}
			continue
		}

		tool, exists := r.tools[toolCall.ToolName]
		if !exists {
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveErrors {
				result.History = history
				return result, fmt.Errorf("circuit breaker: %d consecutive invalid iterations", consecutiveErrors)
			}
			errorContext = fmt.Sprintf("Unknown tool '%s'. Available tools: %s.", toolCall.ToolName, r.toolNames())
			continue
		}

		output, _, toolErr := tool.Execute(ctx, toolCall.GetArgumentsXML())
		if toolErr != nil {
			if ctx.Err() != nil {
				result.History = history
				return result, ctx.Err()
			}
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveErrors {
				result.History = history
				return result, fmt.Errorf("circuit breaker: %d consecutive tool failures, last: %w", consecutiveErrors, toolErr)
			}
			agentLog.Warnf("Tool '%s' failed on step %d: %v", toolCall.ToolName, result.Steps, toolErr)
			errorContext = fmt.Sprintf("Tool '%s' failed: %v. Adjust your approach and try again.", toolCall.ToolName, toolErr)
			continue
		}

		consecutiveErrors = 0

		if tool.IsLoopBreaking() {
			result.Output = output
			result.History = history
			return result, nil
		}

		history = append(history, types.NewUserMessage(fmt.Sprintf("Tool '%s' result:\n%s", toolCall.ToolName, output)))
	}

	result.History = history
	return result, fmt.Errorf("%w after %d steps", ErrStepLimit, result.Steps)
}

func (r *Runner) toolNames() string {
	names := ""
	for name := range r.tools {
		if names != "" {
			names += ", "
		}
		names += name
	}
	return names
}
