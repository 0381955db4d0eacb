package coding

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/patchsmith/patchsmith/pkg/agent/tools"
	"github.com/patchsmith/patchsmith/pkg/security/workspace"
)

// ReadFileTool reads file contents from the sandbox checkout with optional
// line range support.
type ReadFileTool struct {
	guard *workspace.Guard
}

// NewReadFileTool creates a ReadFileTool bound to a sandbox guard.
func NewReadFileTool(guard *workspace.Guard) *ReadFileTool {
	return &ReadFileTool{guard: guard}
}

// Name returns the tool name.
func (t *ReadFileTool) Name() string {
	return "read_file"
}

// Description returns the tool description.
func (t *ReadFileTool) Description() string {
	return "Read the contents of a file with optional line range support. Returns line-numbered content for easy reference."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *ReadFileTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file to read (relative to the repository root)",
			},
			"start_line": map[string]interface{}{
				"type":        "integer",
				"description": "Optional starting line number (1-based, inclusive)",
			},
			"end_line": map[string]interface{}{
				"type":        "integer",
				"description": "Optional ending line number (1-based, inclusive)",
			},
		},
		[]string{"path"},
	)
}

// Execute reads the file and returns its line-numbered contents.
func (t *ReadFileTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName   xml.Name `xml:"arguments"`
		Path      string   `xml:"path"`
		StartLine int      `xml:"start_line"`
		EndLine   int      `xml:"end_line"`
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
	if t.guard.ShouldIgnore(absPath) {
		return "", nil, fmt.Errorf("file '%s' is ignored by .gitignore or default patterns", input.Path)
	}

	content, err := readLineNumbered(absPath, input.StartLine, input.EndLine)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read file: %w", err)
	}

	metadata := map[string]interface{}{"path": input.Path}
	if input.StartLine > 0 {
		metadata["start_line"] = input.StartLine
	}
	if input.EndLine > 0 {
		metadata["end_line"] = input.EndLine
	}
	if info, statErr := os.Stat(absPath); statErr == nil {
		metadata["size_bytes"] = info.Size()
		metadata["modified"] = info.ModTime().Format(time.RFC3339)
	}

	return content, metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *ReadFileTool) IsLoopBreaking() bool {
	return false
}

// resolveCheckedPath validates a tool-supplied path against the guard and
// returns its absolute form. Shared by every file tool in this package.
func resolveCheckedPath(guard *workspace.Guard, path string) (string, error) {
	if err := guard.ValidatePath(path); err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	absPath, err := guard.ResolvePath(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	return absPath, nil
}

// readLineNumbered reads a file and formats each line as "N | text".
// Passing 0 for both bounds reads the whole file; otherwise the range is
// 1-based and inclusive.
func readLineNumbered(path string, startLine, endLine int) (string, error) {
	readAll := startLine == 0 && endLine == 0
	if !readAll {
		if startLine < 1 {
			return "", fmt.Errorf("start_line must be >= 1, got %d", startLine)
		}
		if endLine != 0 && endLine < startLine {
			return "", fmt.Errorf("end_line (%d) must be >= start_line (%d)", endLine, startLine)
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var builder strings.Builder
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		if !readAll && lineNum < startLine {
			continue
		}
		if !readAll && endLine > 0 && lineNum > endLine {
			break
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(fmt.Sprintf("%d | %s", lineNum, scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	if builder.Len() == 0 && !readAll && startLine > lineNum {
		return "", fmt.Errorf("start_line %d exceeds file length (%d lines)", startLine, lineNum)
	}

	return builder.String(), nil
}
