// Package workspace enforces sandbox boundaries on file system operations.
// Agent tools run against a disposable repository checkout; every path they
// touch must resolve inside that checkout, and paths matching ignore rules
// (VCS metadata, dependency trees, build output) are hidden from them.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Guard validates that file operations remain within the sandbox checkout,
// preventing path traversal and access to ignored paths.
type Guard struct {
	rootDir         string         // Absolute path to sandbox checkout root
	ignoreMatcher   *IgnoreMatcher // Pattern matcher for ignore rules
	whitelistedDirs []string       // Additional allowed directories outside the checkout
}

// NewGuard creates a guard for the given checkout directory. The path is
// made absolute and symlinks are evaluated so later comparisons are
// consistent. Ignore patterns come from built-in defaults plus the
// checkout's .gitignore.
func NewGuard(rootDir string) (*Guard, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("sandbox root directory cannot be empty")
	}

	absPath, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sandbox root: %w", err)
	}

	evalPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate sandbox root symlinks: %w", err)
	}

	ignoreMatcher, err := NewIgnoreMatcher(evalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ignore matcher: %w", err)
	}

	return &Guard{
		rootDir:         evalPath,
		ignoreMatcher:   ignoreMatcher,
		whitelistedDirs: make([]string, 0),
	}, nil
}

// ValidatePath checks that the given path resolves inside the sandbox.
func (g *Guard) ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	resolvedPath, err := g.ResolvePath(path)
	if err != nil {
		return err
	}

	if !g.IsWithinRoot(resolvedPath) {
		return fmt.Errorf("path '%s' is outside the sandbox", path)
	}

	return nil
}

// ResolvePath converts a path to an absolute path within the sandbox
// context. Relative paths are joined to the checkout root; symlinks are
// evaluated where the target exists.
func (g *Guard) ResolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	var absPath string
	if filepath.IsAbs(cleanPath) {
		absPath = cleanPath
	} else {
		absPath = filepath.Join(g.rootDir, cleanPath)
	}
	absPath = filepath.Clean(absPath)

	// A path that doesn't exist yet is fine for writes; resolve as much
	// of it as does exist so symlink escapes are still caught.
	evalPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		evalPath = g.resolveSymlinks(absPath)
	}

	return evalPath, nil
}

// IsWithinRoot checks if an absolute path is inside the checkout or a
// whitelisted directory. This is the core security check.
func (g *Guard) IsWithinRoot(absPath string) bool {
	evalPath := g.resolveSymlinks(absPath)

	if evalPath == g.rootDir || strings.HasPrefix(evalPath+string(filepath.Separator), g.rootDir+string(filepath.Separator)) {
		return true
	}

	for _, whitelisted := range g.whitelistedDirs {
		if evalPath == whitelisted || strings.HasPrefix(evalPath+string(filepath.Separator), whitelisted+string(filepath.Separator)) {
			return true
		}
	}

	return false
}

// resolveSymlinks resolves symlinks in a path, handling non-existent paths
// by walking up to the nearest existing parent and rejoining the rest.
func (g *Guard) resolveSymlinks(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	var components []string
	currentPath := path

	for {
		if resolved, err := filepath.EvalSymlinks(currentPath); err == nil {
			result := resolved
			for i := len(components) - 1; i >= 0; i-- {
				result = filepath.Join(result, components[i])
			}
			return result
		}

		dir := filepath.Dir(currentPath)
		if dir == currentPath || dir == "." || dir == "/" {
			return path
		}

		components = append(components, filepath.Base(currentPath))
		currentPath = dir
	}
}

// RootDir returns the absolute path of the sandbox checkout root.
func (g *Guard) RootDir() string {
	return g.rootDir
}

// MakeRelative converts an absolute path to a path relative to the
// checkout root. Returns an error if the path is outside the sandbox.
func (g *Guard) MakeRelative(absPath string) (string, error) {
	if !g.IsWithinRoot(absPath) {
		return "", fmt.Errorf("path '%s' is not within the sandbox", absPath)
	}

	relPath, err := filepath.Rel(g.rootDir, absPath)
	if err != nil {
		return "", fmt.Errorf("failed to make path relative: %w", err)
	}

	return relPath, nil
}

// ShouldIgnore reports whether a path matches an ignore pattern.
// Whitelisted paths are never ignored.
func (g *Guard) ShouldIgnore(path string) bool {
	var absPath string
	if filepath.IsAbs(path) {
		absPath = path
	} else {
		absPath = filepath.Join(g.rootDir, path)
	}
	evalPath := g.resolveSymlinks(absPath)

	for _, whitelisted := range g.whitelistedDirs {
		if evalPath == whitelisted || strings.HasPrefix(evalPath+string(filepath.Separator), whitelisted+string(filepath.Separator)) {
			return false
		}
	}

	var relPath string
	if filepath.IsAbs(path) {
		var err error
		relPath, err = g.MakeRelative(path)
		if err != nil {
			// Outside the sandbox; the boundary check catches this elsewhere.
			return false
		}
	} else {
		relPath = path
	}

	isDir := false
	if info, err := os.Lstat(absPath); err == nil {
		isDir = info.IsDir()
	}

	return g.ignoreMatcher.ShouldIgnore(relPath, isDir)
}
