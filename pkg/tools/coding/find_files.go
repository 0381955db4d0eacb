package coding

import (
	"context"
	"encoding/xml"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/patchsmith/patchsmith/pkg/agent/tools"
	"github.com/patchsmith/patchsmith/pkg/security/workspace"
)

// findFilesLimit caps the number of reported paths so a catch-all pattern
// doesn't blow the model's context.
const findFilesLimit = 200

// FindFilesTool locates files in the checkout whose relative path matches
// a glob pattern, hiding ignored paths.
type FindFilesTool struct {
	guard *workspace.Guard
}

// NewFindFilesTool creates a FindFilesTool bound to a sandbox guard.
func NewFindFilesTool(guard *workspace.Guard) *FindFilesTool {
	return &FindFilesTool{guard: guard}
}

// Name returns the tool name.
func (t *FindFilesTool) Name() string {
	return "find_files"
}

// Description returns the tool description.
func (t *FindFilesTool) Description() string {
	return "Find files by glob pattern over paths relative to the repository root. '*' matches within one directory level, '**' crosses levels (e.g. '**/*_test.go')."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *FindFilesTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Glob pattern matched against repository-relative paths (e.g. 'pkg/**/*.go', 'cmd/*/main.go')",
			},
		},
		[]string{"pattern"},
	)
}

// Execute walks the checkout and returns matching paths, one per line.
func (t *FindFilesTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName xml.Name `xml:"arguments"`
		Pattern string   `xml:"pattern"`
	}

	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if input.Pattern == "" {
		return "", nil, fmt.Errorf("missing required parameter: pattern")
	}

	pathGlob, err := glob.Compile(input.Pattern, '/')
	if err != nil {
		return "", nil, fmt.Errorf("invalid glob pattern: %w", err)
	}

	matches, truncated, err := t.find(pathGlob)
	if err != nil {
		return "", nil, fmt.Errorf("find failed: %w", err)
	}

	metadata := map[string]interface{}{
		"pattern":   input.Pattern,
		"count":     len(matches),
		"truncated": truncated,
	}

	if len(matches) == 0 {
		return fmt.Sprintf("No files matched pattern %q", input.Pattern), metadata, nil
	}

	sort.Strings(matches)
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d file(s):\n", len(matches)))
	for _, m := range matches {
		sb.WriteString(m)
		sb.WriteString("\n")
	}
	if truncated {
		sb.WriteString(fmt.Sprintf("... (truncated at %d files)\n", findFilesLimit))
	}
	return strings.TrimRight(sb.String(), "\n"), metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *FindFilesTool) IsLoopBreaking() bool {
	return false
}

func (t *FindFilesTool) find(pathGlob glob.Glob) ([]string, bool, error) {
	var matches []string
	truncated := false

	err := filepath.WalkDir(t.guard.RootDir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}

		rel, relErr := t.guard.MakeRelative(path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if t.guard.ShouldIgnore(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !pathGlob.Match(rel) {
			return nil
		}

		if len(matches) >= findFilesLimit {
			truncated = true
			return filepath.SkipAll
		}
		matches = append(matches, rel)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return matches, truncated, nil
}
