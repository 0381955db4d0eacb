package coding

import (
	"context"
	"encoding/xml"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/patchsmith/patchsmith/pkg/agent/tools"
	"github.com/patchsmith/patchsmith/pkg/security/workspace"
)

// listLimit caps the number of entries returned to keep tool output
// inside the model's context budget.
const listLimit = 500

// ListFilesTool lists directory contents in the sandbox checkout,
// optionally recursively, hiding ignored paths.
type ListFilesTool struct {
	guard *workspace.Guard
}

// NewListFilesTool creates a ListFilesTool bound to a sandbox guard.
func NewListFilesTool(guard *workspace.Guard) *ListFilesTool {
	return &ListFilesTool{guard: guard}
}

// Name returns the tool name.
func (t *ListFilesTool) Name() string {
	return "list_files"
}

// Description returns the tool description.
func (t *ListFilesTool) Description() string {
	return "List files and directories at a path. Set recursive to walk the whole subtree. Ignored paths (VCS metadata, dependencies, build output) are omitted."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *ListFilesTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to list (relative to the repository root, defaults to the root)",
			},
			"recursive": map[string]interface{}{
				"type":        "boolean",
				"description": "Walk subdirectories recursively (default false)",
			},
		},
		nil,
	)
}

// Execute lists the directory and returns one entry per line, directories
// suffixed with a slash.
func (t *ListFilesTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName   xml.Name `xml:"arguments"`
		Path      string   `xml:"path"`
		Recursive bool     `xml:"recursive"`
	}

	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if input.Path == "" {
		input.Path = "."
	}

	absPath, err := resolveCheckedPath(t.guard, input.Path)
	if err != nil {
		return "", nil, err
	}

	entries, truncated, err := t.collect(absPath, input.Recursive)
	if err != nil {
		return "", nil, fmt.Errorf("failed to list files: %w", err)
	}

	sort.Strings(entries)

	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e)
		sb.WriteString("\n")
	}
	if truncated {
		sb.WriteString(fmt.Sprintf("... (truncated at %d entries)\n", listLimit))
	}
	if len(entries) == 0 {
		sb.WriteString("(empty directory)\n")
	}

	metadata := map[string]interface{}{
		"path":      input.Path,
		"count":     len(entries),
		"recursive": input.Recursive,
		"truncated": truncated,
	}
	return strings.TrimRight(sb.String(), "\n"), metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *ListFilesTool) IsLoopBreaking() bool {
	return false
}

func (t *ListFilesTool) collect(absPath string, recursive bool) ([]string, bool, error) {
	var entries []string
	truncated := false

	err := filepath.WalkDir(absPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == absPath {
			return nil
		}

		rel, relErr := t.guard.MakeRelative(path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if t.guard.ShouldIgnore(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if len(entries) >= listLimit {
			truncated = true
			return filepath.SkipAll
		}

		if d.IsDir() {
			entries = append(entries, rel+"/")
			if !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		entries = append(entries, rel)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return entries, truncated, nil
}
