package coding

import (
	"context"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/patchsmith/patchsmith/pkg/agent/tools"
	"github.com/patchsmith/patchsmith/pkg/sandbox"
	"github.com/patchsmith/patchsmith/pkg/security/workspace"
)

// syntaxCheckers maps a language to the command that checks a single
// file. The file path is appended as the last argument.
var syntaxCheckers = map[string]string{
	"typescript": "node --check",
	"javascript": "node --check",
	"python":     "python -m py_compile",
	"go":         "gofmt -e",
	"rust":       "rustc --emit=dep-info",
}

var extensionLanguages = map[string]string{
	".ts":  "typescript",
	".tsx": "typescript",
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".py":  "python",
	".go":  "go",
	".rs":  "rust",
}

// ValidateSyntaxTool checks whether an edited file parses, by running the
// language's syntax checker inside the sandbox.
type ValidateSyntaxTool struct {
	guard   *workspace.Guard
	sandbox sandbox.Sandbox
}

// NewValidateSyntaxTool creates a ValidateSyntaxTool bound to a sandbox.
func NewValidateSyntaxTool(guard *workspace.Guard, sb sandbox.Sandbox) *ValidateSyntaxTool {
	return &ValidateSyntaxTool{guard: guard, sandbox: sb}
}

// Name returns the tool name.
func (t *ValidateSyntaxTool) Name() string {
	return "validate_syntax"
}

// Description returns the tool description.
func (t *ValidateSyntaxTool) Description() string {
	return "Validate the syntax of a file after editing it. The language is inferred from the file extension unless given explicitly. Supported: typescript, javascript, python, go, rust."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *ValidateSyntaxTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "File path relative to the repository root",
			},
			"language": map[string]interface{}{
				"type":        "string",
				"description": "Language override; inferred from the extension when omitted",
				"enum":        []string{"typescript", "javascript", "python", "go", "rust"},
			},
		},
		[]string{"path"},
	)
}

// Execute runs the checker and reports the verdict. A failing check is
// shown to the agent as output, not returned as an error, so it can fix
// the file and retry.
func (t *ValidateSyntaxTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName  xml.Name `xml:"arguments"`
		Path     string   `xml:"path"`
		Language string   `xml:"language"`
	}

	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(input.Path) == "" {
		return "", nil, fmt.Errorf("missing required parameter: path")
	}
	if err := t.guard.ValidatePath(input.Path); err != nil {
		return "", nil, err
	}

	lang := strings.ToLower(strings.TrimSpace(input.Language))
	if lang == "" {
		lang = extensionLanguages[strings.ToLower(filepath.Ext(input.Path))]
	}
	checker, ok := syntaxCheckers[lang]
	if !ok {
		return fmt.Sprintf("No syntax checker available for %q, skipping validation", input.Path), nil, nil
	}

	result, err := t.sandbox.RunCommand(ctx, checker+" "+shellQuote(input.Path))
	if err != nil {
		return "", nil, fmt.Errorf("validation command failed: %w", err)
	}

	metadata := map[string]interface{}{
		"path":      input.Path,
		"language":  lang,
		"exit_code": result.ExitCode,
	}
	if result.ExitCode == 0 && strings.TrimSpace(result.Stderr) == "" {
		return fmt.Sprintf("Valid: %s", input.Path), metadata, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Syntax check failed for %s (exit code %d)\n", input.Path, result.ExitCode))
	if out := truncateOutput(result.Stderr); out != "" {
		sb.WriteString(out)
	} else if out := truncateOutput(result.Stdout); out != "" {
		sb.WriteString(out)
	}
	return strings.TrimRight(sb.String(), "\n"), metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *ValidateSyntaxTool) IsLoopBreaking() bool {
	return false
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
