package coding

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/patchsmith/patchsmith/pkg/agent/tools"
	"github.com/patchsmith/patchsmith/pkg/security/workspace"
)

// searchMatchLimit caps reported matches so a broad pattern doesn't blow
// the model's context.
const searchMatchLimit = 100

// SearchFilesTool searches for regex patterns in checkout files and
// returns matches with surrounding context lines.
type SearchFilesTool struct {
	guard *workspace.Guard
}

// NewSearchFilesTool creates a SearchFilesTool bound to a sandbox guard.
func NewSearchFilesTool(guard *workspace.Guard) *SearchFilesTool {
	return &SearchFilesTool{guard: guard}
}

// Name returns the tool name.
func (t *SearchFilesTool) Name() string {
	return "search_files"
}

// Description returns the tool description.
func (t *SearchFilesTool) Description() string {
	return "Search for a regular expression across files. Returns matches with line numbers and surrounding context lines."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *SearchFilesTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Regular expression pattern to search for",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to search in (relative to the repository root, defaults to the root)",
			},
			"file_pattern": map[string]interface{}{
				"type":        "string",
				"description": "Optional glob to filter file names (e.g. '*.go')",
			},
			"context_lines": map[string]interface{}{
				"type":        "integer",
				"description": "Context lines before and after each match (default 2)",
			},
		},
		[]string{"pattern"},
	)
}

type searchMatch struct {
	file    string
	line    int
	context []string
}

// Execute searches for the pattern and formats the matches.
func (t *SearchFilesTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName      xml.Name `xml:"arguments"`
		Path         string   `xml:"path"`
		Pattern      string   `xml:"pattern"`
		FilePattern  string   `xml:"file_pattern"`
		ContextLines int      `xml:"context_lines"`
	}

	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if input.Pattern == "" {
		return "", nil, fmt.Errorf("missing required parameter: pattern")
	}
	if input.Path == "" {
		input.Path = "."
	}
	if input.ContextLines == 0 {
		input.ContextLines = 2
	}

	absPath, err := resolveCheckedPath(t.guard, input.Path)
	if err != nil {
		return "", nil, err
	}

	regex, err := regexp.Compile(input.Pattern)
	if err != nil {
		return "", nil, fmt.Errorf("invalid regex pattern: %w", err)
	}

	var fileGlob glob.Glob
	if input.FilePattern != "" {
		fileGlob, err = glob.Compile(input.FilePattern)
		if err != nil {
			return "", nil, fmt.Errorf("invalid file pattern: %w", err)
		}
	}

	matches, truncated, err := t.search(absPath, regex, fileGlob, input.ContextLines)
	if err != nil {
		return "", nil, fmt.Errorf("search failed: %w", err)
	}

	metadata := map[string]interface{}{
		"pattern":     input.Pattern,
		"match_count": len(matches),
		"truncated":   truncated,
	}
	return formatMatches(matches, truncated), metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *SearchFilesTool) IsLoopBreaking() bool {
	return false
}

func (t *SearchFilesTool) search(root string, regex *regexp.Regexp, fileGlob glob.Glob, contextLines int) ([]searchMatch, bool, error) {
	var matches []searchMatch
	truncated := false

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
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
		if d.IsDir() {
			return nil
		}
		if fileGlob != nil && !fileGlob.Match(filepath.Base(path)) {
			return nil
		}

		fileMatches, searchErr := searchFile(path, rel, regex, contextLines, searchMatchLimit-len(matches))
		if searchErr != nil {
			return nil
		}
		matches = append(matches, fileMatches...)

		if len(matches) >= searchMatchLimit {
			truncated = true
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return matches, truncated, nil
}

func searchFile(absPath, relPath string, regex *regexp.Regexp, contextLines, limit int) ([]searchMatch, error) {
	if limit <= 0 {
		return nil, nil
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var matches []searchMatch
	for i, line := range lines {
		if !regex.MatchString(line) {
			continue
		}

		start := i - contextLines
		if start < 0 {
			start = 0
		}
		end := i + contextLines
		if end >= len(lines) {
			end = len(lines) - 1
		}

		var context []string
		for j := start; j <= end; j++ {
			marker := "  "
			if j == i {
				marker = "> "
			}
			context = append(context, fmt.Sprintf("%s%d | %s", marker, j+1, lines[j]))
		}

		matches = append(matches, searchMatch{file: relPath, line: i + 1, context: context})
		if len(matches) >= limit {
			break
		}
	}
	return matches, nil
}

func formatMatches(matches []searchMatch, truncated bool) string {
	if len(matches) == 0 {
		return "No matches found"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d match(es):\n", len(matches)))
	for _, m := range matches {
		sb.WriteString(fmt.Sprintf("\n%s:%d\n", m.file, m.line))
		for _, c := range m.context {
			sb.WriteString(c)
			sb.WriteString("\n")
		}
	}
	if truncated {
		sb.WriteString(fmt.Sprintf("\n... (truncated at %d matches)", searchMatchLimit))
	}
	return strings.TrimRight(sb.String(), "\n")
}
