package coding

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/patchsmith/patchsmith/pkg/agent/tools"
	"github.com/patchsmith/patchsmith/pkg/security/workspace"
)

// ApplyDiffTool applies search/replace operations to files for surgical
// edits that don't rewrite the whole file. Changes are recorded with the
// edit recorder like any other modification.
type ApplyDiffTool struct {
	guard    *workspace.Guard
	recorder *EditRecorder
}

// NewApplyDiffTool creates an ApplyDiffTool bound to a sandbox guard and
// edit recorder.
func NewApplyDiffTool(guard *workspace.Guard, recorder *EditRecorder) *ApplyDiffTool {
	return &ApplyDiffTool{guard: guard, recorder: recorder}
}

// Name returns the tool name.
func (t *ApplyDiffTool) Name() string {
	return "apply_diff"
}

// Description returns the tool description.
func (t *ApplyDiffTool) Description() string {
	return "Apply precise search/replace operations to a file. Each search text must match exactly once, including whitespace. Use for targeted changes instead of rewriting whole files."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *ApplyDiffTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file to edit (relative to the repository root)",
			},
			"edits": map[string]interface{}{
				"type":        "array",
				"description": "List of search/replace operations to apply",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"search": map[string]interface{}{
							"type":        "string",
							"description": "Exact text to search for (must match exactly including whitespace)",
						},
						"replace": map[string]interface{}{
							"type":        "string",
							"description": "Text to replace the search text with",
						},
					},
					"required": []string{"search", "replace"},
				},
			},
		},
		[]string{"path", "edits"},
	)
}

// Execute performs the search/replace operations and records the change.
func (t *ApplyDiffTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName xml.Name `xml:"arguments"`
		Path    string   `xml:"path"`
		Edits   []struct {
			Search  string `xml:"search"`
			Replace string `xml:"replace"`
		} `xml:"edits>edit"`
	}

	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if input.Path == "" {
		return "", nil, fmt.Errorf("path is required")
	}
	if len(input.Edits) == 0 {
		return "", nil, fmt.Errorf("at least one edit is required")
	}

	absPath, err := resolveCheckedPath(t.guard, input.Path)
	if err != nil {
		return "", nil, err
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read file: %w", err)
	}

	originalContent := string(content)
	fileContent := originalContent
	totalLinesAdded := 0
	totalLinesRemoved := 0

	for i, edit := range input.Edits {
		if edit.Search == "" {
			return "", nil, fmt.Errorf("edit %d: search text cannot be empty", i+1)
		}
		if !strings.Contains(fileContent, edit.Search) {
			return "", nil, fmt.Errorf("edit %d: search text not found in file:\n%s", i+1, edit.Search)
		}
		if count := strings.Count(fileContent, edit.Search); count > 1 {
			return "", nil, fmt.Errorf("edit %d: search text appears %d times in file, must be unique", i+1, count)
		}

		searchLines := strings.Count(edit.Search, "\n") + 1
		replaceLines := strings.Count(edit.Replace, "\n") + 1
		if replaceLines > searchLines {
			totalLinesAdded += replaceLines - searchLines
		} else {
			totalLinesRemoved += searchLines - replaceLines
		}

		fileContent = strings.Replace(fileContent, edit.Search, edit.Replace, 1)
	}

	if fileContent == originalContent {
		return "No changes made to file", nil, nil
	}

	if err := writeFileAtomic(absPath, []byte(fileContent)); err != nil {
		return "", nil, err
	}

	relPath, err := t.guard.MakeRelative(absPath)
	if err != nil {
		relPath = input.Path
	}
	if t.recorder != nil {
		t.recorder.RecordWrite(filepath.ToSlash(relPath), originalContent, fileContent)
	}

	metadata := map[string]interface{}{
		"edits_applied": len(input.Edits),
		"lines_added":   totalLinesAdded,
		"lines_removed": totalLinesRemoved,
		"file_path":     relPath,
	}
	return fmt.Sprintf("Successfully applied %d edit(s) to %s", len(input.Edits), relPath), metadata, nil
}

// IsLoopBreaking returns whether this tool should break the agent loop.
func (t *ApplyDiffTool) IsLoopBreaking() bool {
	return false
}

// XMLExample provides a concrete XML usage example for this tool.
func (t *ApplyDiffTool) XMLExample() string {
	return `<tool>
<tool_name>apply_diff</tool_name>
<arguments>
  <path>src/main.go</path>
  <edits>
    <edit>
      <search><![CDATA[func oldFunction() {
	return "old"
}]]></search>
      <replace><![CDATA[func newFunction() {
	return "new"
}]]></replace>
    </edit>
  </edits>
</arguments>
</tool>`
}
