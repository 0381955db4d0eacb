package agent

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"sort"

	"github.com/patchsmith/patchsmith/pkg/agent/prompts"
	"github.com/patchsmith/patchsmith/pkg/agent/tools"
	"github.com/patchsmith/patchsmith/pkg/llm"
	"github.com/patchsmith/patchsmith/pkg/sandbox"
	"github.com/patchsmith/patchsmith/pkg/tools/coding"
	"github.com/patchsmith/patchsmith/pkg/types"
)

// defaultEditSteps is deliberately tighter than the planning budget: each
// loop's scope is a single file.
const defaultEditSteps = 5

const editorRolePrompt = `<role>
You are a senior software engineer executing one item of an approved change
plan. Your scope is a single file. Read it if it exists, make the described
change with write_file or apply_diff, then call finish_edit with a short
note of what you changed. Do not touch other files.
</role>`

// Editor executes a plan against a sandbox checkout, one bounded tool loop
// per plan item. Edits are all-or-nothing: the first item that cannot be
// completed fails the whole stage, and nothing is published.
type Editor struct {
	provider llm.Provider
	maxSteps int
}

// EditorOption configures an Editor.
type EditorOption func(*Editor)

// WithEditSteps sets the per-item step budget.
func WithEditSteps(n int) EditorOption {
	return func(e *Editor) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// NewEditor creates an Editor.
func NewEditor(provider llm.Provider, opts ...EditorOption) *Editor {
	e := &Editor{
		provider: provider,
		maxSteps: defaultEditSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs every plan item in ascending priority order and returns the
// staged edits. Any item failure aborts the stage; the returned error
// names the offending item.
func (e *Editor) Execute(ctx context.Context, sb sandbox.Sandbox, task string, plan *types.Plan) ([]types.EditedFile, error) {
	if plan == nil || len(plan.Items) == 0 {
		return nil, fmt.Errorf("plan has no items")
	}

	items := make([]types.PlanItem, len(plan.Items))
	copy(items, plan.Items)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Priority < items[j].Priority
	})

	recorder := coding.NewEditRecorder()

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var err error
		if item.Action == types.ActionDelete {
			err = e.deleteFile(ctx, sb, recorder, item)
		} else {
			err = e.editFile(ctx, sb, recorder, task, item)
		}
		if err != nil {
			return nil, fmt.Errorf("edit failed for %s: %w", item.FilePath, err)
		}
	}

	edits := recorder.Edits()
	if len(edits) == 0 {
		return nil, fmt.Errorf("plan executed but no files were changed")
	}
	return edits, nil
}

// deleteFile skips content generation and invokes the delete tool directly.
func (e *Editor) deleteFile(ctx context.Context, sb sandbox.Sandbox, recorder *coding.EditRecorder, item types.PlanItem) error {
	tool := coding.NewDeleteFileTool(sb.Guard(), recorder)
	_, _, err := tool.Execute(ctx, deleteArgsXML(item.FilePath))
	return err
}

// editFile runs one bounded tool loop scoped to a single plan item.
func (e *Editor) editFile(ctx context.Context, sb sandbox.Sandbox, recorder *coding.EditRecorder, task string, item types.PlanItem) error {
	guard := sb.Guard()
	toolset := []tools.Tool{
		coding.NewReadFileTool(guard),
		coding.NewWriteFileTool(guard, recorder),
		coding.NewApplyDiffTool(guard, recorder),
		coding.NewSearchFilesTool(guard),
		coding.NewRunCommandTool(sb),
		coding.NewValidateSyntaxTool(guard, sb),
		coding.NewCompletionTool("finish_edit", "Finish this edit. Call this once the file matches the plan item's description."),
	}

	systemPrompt := prompts.NewPromptBuilder().
		WithRole(editorRolePrompt).
		WithTools(toolset).
		Build()

	prompt := fmt.Sprintf(
		"Overall task:\n%s\n\nPlan item:\nFile: %s\nAction: %s\nDescription: %s",
		task, item.FilePath, item.Action, item.Description,
	)

	runner := NewRunner(e.provider, toolset, WithMaxSteps(e.maxSteps))
	if _, err := runner.Run(ctx, systemPrompt, prompt); err != nil {
		return err
	}
	return nil
}

// deleteArgsXML builds the arguments block for a direct delete-tool call,
// escaping the path for XML.
func deleteArgsXML(path string) []byte {
	var buf bytes.Buffer
	buf.WriteString("<arguments><path>")
	xml.EscapeText(&buf, []byte(path)) //nolint:errcheck
	buf.WriteString("</path></arguments>")
	return buf.Bytes()
}
