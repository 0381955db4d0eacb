package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/patchsmith/patchsmith/pkg/llm"
	"github.com/patchsmith/patchsmith/pkg/types"
)

const commitSystemPrompt = `You write git commit messages. Generate a conventional commit message for the changes you are shown.

Format: <type>(<scope>): <description>
Types: feat, fix, docs, style, refactor, test, chore

Respond with ONLY the commit message (one line), nothing else.`

const prSystemPrompt = `You write pull request titles and descriptions.

You MUST respond with a valid JSON object in this exact format:
{
  "title": "concise, actionable PR title",
  "description": "## Summary\n\n<what changed and why>\n\n## Changes\n\n- <key changes>\n\n## Testing\n\n<how to verify>"
}

The description must be markdown with sections: Summary, Changes, and Testing.
Respond ONLY with the JSON object, no other text.`

// PRContent is the generated pull request title and body.
type PRContent struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// generateCommitMessage asks the model for a conventional commit message.
// Generation is best-effort: any failure falls back to a deterministic
// message derived from the task so publishing never fails on prose.
func generateCommitMessage(ctx context.Context, provider llm.Provider, task string, edits []types.EditedFile, diff string) string {
	var sb strings.Builder
	sb.WriteString("Task:\n")
	sb.WriteString(task)
	sb.WriteString("\n\nFiles changed:\n")
	for _, edit := range edits {
		if edit.Deleted {
			sb.WriteString(fmt.Sprintf("- %s (deleted)\n", edit.FilePath))
			continue
		}
		sb.WriteString(fmt.Sprintf("- %s\n", edit.FilePath))
	}
	sb.WriteString("\nDiff:\n")
	sb.WriteString(diff)

	message, err := provider.CompleteText(ctx, commitSystemPrompt, sb.String())
	if err != nil {
		publishLog.Warnf("Commit message generation failed, using fallback: %v", err)
		return fallbackCommitMessage(task)
	}

	message = strings.TrimSpace(message)
	if message == "" || strings.Contains(message, "\n\n") {
		return fallbackCommitMessage(task)
	}
	return firstLine(message)
}

// generatePRContent asks the model for a PR title and description.
func generatePRContent(ctx context.Context, provider llm.Provider, task, commitMessage, diff string) *PRContent {
	user := fmt.Sprintf("Task:\n%s\n\nCommit:\n%s\n\nChanges:\n%s", task, commitMessage, diff)

	raw, err := provider.CompleteText(ctx, prSystemPrompt, user)
	if err != nil {
		publishLog.Warnf("PR content generation failed, using fallback: %v", err)
		return fallbackPRContent(task, commitMessage)
	}

	var content PRContent
	if err := llm.DecodeStructured(raw, &content); err != nil || strings.TrimSpace(content.Title) == "" {
		publishLog.Warnf("PR content could not be decoded, using fallback: %v", err)
		return fallbackPRContent(task, commitMessage)
	}
	return &content
}

func fallbackCommitMessage(task string) string {
	line := firstLine(task)
	if len(line) > 72 {
		line = line[:69] + "..."
	}
	if line == "" {
		line = "automated change"
	}
	return line
}

func fallbackPRContent(task, commitMessage string) *PRContent {
	title := firstLine(commitMessage)
	if title == "" {
		title = fallbackCommitMessage(task)
	}
	return &PRContent{
		Title:       title,
		Description: "## Summary\n\n" + task,
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}
