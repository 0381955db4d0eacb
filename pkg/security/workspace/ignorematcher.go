package workspace

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// defaultIgnorePatterns are always active regardless of the checkout's
// .gitignore. They cover VCS metadata, dependency trees, and build output
// that agent tools have no business touching.
var defaultIgnorePatterns = []string{
	".git/",
	"node_modules/",
	"vendor/",
	"dist/",
	"build/",
	"out/",
	"target/",
	".next/",
	"coverage/",
	"__pycache__/",
	".venv/",
	"venv/",
	".DS_Store",
}

// ignoreRule is one compiled pattern with its gitignore semantics.
type ignoreRule struct {
	matcher glob.Glob
	dirOnly bool // pattern ended with "/": matches directories and their contents
	negate  bool // pattern started with "!": re-includes a previously ignored path
	anchor  bool // pattern contained "/": matched against the full relative path
}

// IgnoreMatcher decides whether paths should be hidden from agent tools,
// using gitignore-style pattern semantics: later rules win, "!" negates,
// trailing "/" restricts to directories.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher compiles the default patterns plus any .gitignore at
// the checkout root. A missing .gitignore is not an error.
func NewIgnoreMatcher(rootDir string) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{}

	for _, p := range defaultIgnorePatterns {
		if err := m.addPattern(p); err != nil {
			return nil, fmt.Errorf("failed to compile default ignore pattern %q: %w", p, err)
		}
	}

	gitignorePath := filepath.Join(rootDir, ".gitignore")
	f, err := os.Open(gitignorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("failed to read .gitignore: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Skip patterns that fail to compile rather than breaking the run.
		_ = m.addPattern(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan .gitignore: %w", err)
	}

	return m, nil
}

func (m *IgnoreMatcher) addPattern(pattern string) error {
	rule := ignoreRule{}

	if strings.HasPrefix(pattern, "!") {
		rule.negate = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		rule.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	// Leading "/" anchors to the root; an interior "/" anchors the whole
	// pattern, otherwise the pattern matches any path segment.
	pattern = strings.TrimPrefix(pattern, "/")
	rule.anchor = strings.Contains(pattern, "/")

	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return err
	}
	rule.matcher = g

	m.rules = append(m.rules, rule)
	return nil
}

// ShouldIgnore reports whether relPath matches the ignore rules. Rules are
// evaluated in order and the last match wins, so a negation after an
// ignore re-includes the path.
func (m *IgnoreMatcher) ShouldIgnore(relPath string, isDir bool) bool {
	relPath = filepath.ToSlash(filepath.Clean(relPath))
	if relPath == "." || relPath == "" {
		return false
	}

	ignored := false
	for _, rule := range m.rules {
		if rule.dirOnly && !isDir && !m.insideMatchedDir(rule, relPath) {
			continue
		}
		if m.ruleMatches(rule, relPath) {
			ignored = !rule.negate
		}
	}
	return ignored
}

// ruleMatches checks the rule against the path and each of its segments
// and ancestor prefixes, since ignoring a directory ignores its contents.
func (m *IgnoreMatcher) ruleMatches(rule ignoreRule, relPath string) bool {
	if rule.anchor {
		if rule.matcher.Match(relPath) {
			return true
		}
		// Ancestor directory match: "a/b" ignores "a/b/c.go".
		for prefix := parentPath(relPath); prefix != ""; prefix = parentPath(prefix) {
			if rule.matcher.Match(prefix) {
				return true
			}
		}
		return false
	}

	for _, segment := range strings.Split(relPath, "/") {
		if rule.matcher.Match(segment) {
			return true
		}
	}
	return false
}

// insideMatchedDir reports whether any ancestor segment of relPath matches
// the directory-only rule, which means the file lives inside an ignored
// directory.
func (m *IgnoreMatcher) insideMatchedDir(rule ignoreRule, relPath string) bool {
	segments := strings.Split(relPath, "/")
	// Every segment except the last is a directory on the path.
	for _, segment := range segments[:max(0, len(segments)-1)] {
		if rule.matcher.Match(segment) {
			return true
		}
	}
	if rule.anchor {
		for prefix := parentPath(relPath); prefix != ""; prefix = parentPath(prefix) {
			if rule.matcher.Match(prefix) {
				return true
			}
		}
	}
	return false
}

func parentPath(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return ""
	}
	return p[:idx]
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
