package workspace

import (
	"fmt"
	"path/filepath"
)

// AddWhitelist permits file operations under dir even though it is outside
// the checkout. The sandbox provider uses this for the shared scratch
// directory; nothing else should ever widen the guard.
func (g *Guard) AddWhitelist(dir string) error {
	if dir == "" {
		return fmt.Errorf("whitelist directory cannot be empty")
	}

	absPath, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve whitelist directory: %w", err)
	}

	// Symlinks are evaluated up front so later containment checks compare
	// like with like, even when part of the path does not exist yet.
	evalPath := resolveWhitelistPath(absPath)

	for _, existing := range g.whitelistedDirs {
		if existing == evalPath {
			return nil
		}
	}

	g.whitelistedDirs = append(g.whitelistedDirs, evalPath)
	return nil
}

// resolveWhitelistPath resolves symlinks in a path, walking up to the
// nearest existing parent and rejoining the rest when the path does not
// exist yet.
func resolveWhitelistPath(path string) string {
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
			return filepath.Clean(path)
		}

		components = append(components, filepath.Base(currentPath))
		currentPath = dir
	}
}
