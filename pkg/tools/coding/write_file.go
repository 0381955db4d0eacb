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

// WriteFileTool creates or overwrites files in the sandbox checkout and
// records every change with the edit recorder for the publishing stage.
type WriteFileTool struct {
	guard    *workspace.Guard
	recorder *EditRecorder
}

// NewWriteFileTool creates a WriteFileTool bound to a sandbox guard and
// edit recorder.
func NewWriteFileTool(guard *workspace.Guard, recorder *EditRecorder) *WriteFileTool {
	return &WriteFileTool{guard: guard, recorder: recorder}
}

// Name returns the tool name.
func (t *WriteFileTool) Name() string {
	return "write_file"
}

// Description returns the tool description.
func (t *WriteFileTool) Description() string {
	return "Write the complete content of a file, creating it if it doesn't exist or overwriting if it does. Parent directories are created as needed. Always provide the entire file content."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *WriteFileTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file to write (relative to the repository root)",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Complete content to write to the file",
			},
		},
		[]string{"path", "content"},
	)
}

// Execute writes the file atomically and records the edit.
func (t *WriteFileTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName xml.Name `xml:"arguments"`
		Path    string   `xml:"path"`
		Content string   `xml:"content"`
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

	// Capture prior content for the edit record. Missing file means create.
	original := ""
	created := true
	if prior, readErr := os.ReadFile(absPath); readErr == nil {
		original = string(prior)
		created = false
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	if err := writeFileAtomic(absPath, []byte(input.Content)); err != nil {
		return "", nil, err
	}

	relPath, err := t.guard.MakeRelative(absPath)
	if err != nil {
		relPath = input.Path
	}
	if t.recorder != nil {
		t.recorder.RecordWrite(filepath.ToSlash(relPath), original, input.Content)
	}

	changes := CalculateLineChanges(original, input.Content)
	metadata := map[string]interface{}{
		"path":          relPath,
		"created":       created,
		"lines_added":   changes.LinesAdded,
		"lines_removed": changes.LinesRemoved,
	}

	verb := "Updated"
	if created {
		verb = "Created"
	}
	return fmt.Sprintf("%s %s (%d bytes)", verb, relPath, len(input.Content)), metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *WriteFileTool) IsLoopBreaking() bool {
	return false
}

// writeFileAtomic writes via a temp file and rename so a crash never
// leaves a half-written file in the checkout.
func writeFileAtomic(absPath string, content []byte) error {
	tmpPath := absPath + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, absPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}
