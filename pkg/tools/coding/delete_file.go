package coding

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"github.com/patchsmith/patchsmith/pkg/agent/tools"
	"github.com/patchsmith/patchsmith/pkg/security/workspace"
)

// DeleteFileTool removes a file from the sandbox checkout and records the
// deletion with the edit recorder.
type DeleteFileTool struct {
	guard    *workspace.Guard
	recorder *EditRecorder
}

// NewDeleteFileTool creates a DeleteFileTool bound to a sandbox guard and
// edit recorder.
func NewDeleteFileTool(guard *workspace.Guard, recorder *EditRecorder) *DeleteFileTool {
	return &DeleteFileTool{guard: guard, recorder: recorder}
}

// Name returns the tool name.
func (t *DeleteFileTool) Name() string {
	return "delete_file"
}

// Description returns the tool description.
func (t *DeleteFileTool) Description() string {
	return "Delete a file from the repository. Only regular files can be deleted, not directories."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *DeleteFileTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file to delete (relative to the repository root)",
			},
		},
		[]string{"path"},
	)
}

// Execute removes the file and records the deletion.
func (t *DeleteFileTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName xml.Name `xml:"arguments"`
		Path    string   `xml:"path"`
	}

	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if input.Path == "" {
		return "", nil, fmt.Errorf("missing required parameter: path")
	}

	absPath, err := resolveCheckedPath(t.guard, input.Path)
	if err != nil {
		return "", nil, err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return "", nil, fmt.Errorf("'%s' is a directory, only files can be deleted", input.Path)
	}

	original, err := os.ReadFile(absPath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read file before deletion: %w", err)
	}

	if err := os.Remove(absPath); err != nil {
		return "", nil, fmt.Errorf("failed to delete file: %w", err)
	}

	relPath, err := t.guard.MakeRelative(absPath)
	if err != nil {
		relPath = input.Path
	}
	if t.recorder != nil {
		t.recorder.RecordDelete(filepath.ToSlash(relPath), string(original))
	}

	metadata := map[string]interface{}{
		"path":          relPath,
		"lines_removed": len(splitLines(string(original))),
	}
	return fmt.Sprintf("Deleted %s", relPath), metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *DeleteFileTool) IsLoopBreaking() bool {
	return false
}
