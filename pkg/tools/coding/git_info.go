package coding

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/patchsmith/patchsmith/pkg/agent/tools"
	"github.com/patchsmith/patchsmith/pkg/sandbox"
)

const defaultGitInfoLimit = 10

// gitInfoCommands maps a query type to the git invocation behind it. %d
// is replaced with the result limit where supported.
var gitInfoCommands = map[string]string{
	"status":         "git status --porcelain",
	"recent-commits": "git log --oneline -%d",
	"branches":       "git branch -a",
	"files-changed":  "git diff --name-only HEAD~1 HEAD",
	"log":            "git log --oneline --graph -%d",
}

// GitInfoTool exposes read-only git introspection over the sandbox
// checkout: working tree status, recent history, and branches.
type GitInfoTool struct {
	sandbox sandbox.Sandbox
}

// NewGitInfoTool creates a GitInfoTool bound to a sandbox.
func NewGitInfoTool(sb sandbox.Sandbox) *GitInfoTool {
	return &GitInfoTool{sandbox: sb}
}

// Name returns the tool name.
func (t *GitInfoTool) Name() string {
	return "git_info"
}

// Description returns the tool description.
func (t *GitInfoTool) Description() string {
	return "Get git information about the repository. Types: status (working tree), recent-commits, branches, files-changed (last commit), log (graph)."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *GitInfoTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"info_type": map[string]interface{}{
				"type":        "string",
				"description": "Type of git information to retrieve",
				"enum":        []string{"status", "recent-commits", "branches", "files-changed", "log"},
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum results for history queries (default 10)",
			},
		},
		[]string{"info_type"},
	)
}

// Execute runs the mapped git command and returns its output.
func (t *GitInfoTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName  xml.Name `xml:"arguments"`
		InfoType string   `xml:"info_type"`
		Limit    int      `xml:"limit"`
	}

	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid arguments: %w", err)
	}
	infoType := strings.TrimSpace(input.InfoType)
	command, ok := gitInfoCommands[infoType]
	if !ok {
		return "", nil, fmt.Errorf("unknown info_type %q, expected one of: status, recent-commits, branches, files-changed, log", infoType)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultGitInfoLimit
	}
	if strings.Contains(command, "%d") {
		command = fmt.Sprintf(command, limit)
	}

	result, err := t.sandbox.RunCommand(ctx, command)
	if err != nil {
		return "", nil, fmt.Errorf("git command failed: %w", err)
	}

	metadata := map[string]interface{}{
		"info_type": infoType,
		"exit_code": result.ExitCode,
	}
	if result.ExitCode != 0 {
		return fmt.Sprintf("Git command failed (exit code %d)\n%s", result.ExitCode, truncateOutput(result.Stderr)), metadata, nil
	}

	out := truncateOutput(result.Stdout)
	if out == "" {
		out = "(no output)"
	}
	return out, metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *GitInfoTool) IsLoopBreaking() bool {
	return false
}
