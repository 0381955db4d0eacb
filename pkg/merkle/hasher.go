package merkle

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/patchsmith/patchsmith/pkg/types"
)

// defaultIgnoredDirs are directory names skipped during the walk regardless
// of configuration: build output, dependency caches, VCS internals.
var defaultIgnoredDirs = map[string]struct{}{
	"node_modules": {}, ".git": {}, ".next": {}, ".vercel": {},
	"dist": {}, "build": {}, "coverage": {}, ".nyc_output": {},
	".cache": {}, ".tmp": {}, ".temp": {}, "__pycache__": {},
	".pytest_cache": {}, "venv": {}, ".venv": {}, "target": {},
	"bin": {}, "obj": {}, ".gradle": {},
}

const binarySampleSize = 8192

// Hasher walks a checkout and produces file hash entries for every
// processable file. Screening rules: directories in the ignore set and
// dot-directories are skipped; files over MaxFileSize, empty files, and
// binary files are skipped.
type Hasher struct {
	maxFileSize int64
	ignore      []glob.Glob
}

// HasherOption configures a Hasher.
type HasherOption func(*Hasher)

// WithMaxFileSize overrides the per-file size cap (default 10 MiB).
func WithMaxFileSize(size int64) HasherOption {
	return func(h *Hasher) {
		h.maxFileSize = size
	}
}

// WithIgnoreGlobs adds path globs (relative, slash-separated) to skip.
func WithIgnoreGlobs(patterns []string) HasherOption {
	return func(h *Hasher) {
		for _, p := range patterns {
			g, err := glob.Compile(p, '/')
			if err != nil {
				continue // malformed user pattern, ignore it rather than fail the walk
			}
			h.ignore = append(h.ignore, g)
		}
	}
}

// NewHasher creates a Hasher with default screening limits.
func NewHasher(opts ...HasherOption) *Hasher {
	h := &Hasher{maxFileSize: 10 * 1024 * 1024}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HashRepository walks root and returns a sorted entry list plus the built
// tree. File hashing is fanned out across goroutines; the result order is
// made deterministic by sorting on path afterwards.
func (h *Hasher) HashRepository(root string) ([]types.FileHashEntry, *Node, error) {
	paths, err := h.collectFiles(root)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to walk repository: %w", err)
	}

	entries := make([]types.FileHashEntry, 0, len(paths))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, relPath := range paths {
		wg.Add(1)
		go func(relPath string) {
			defer wg.Done()
			entry, ok := h.hashFile(root, relPath)
			if !ok {
				return
			}
			mu.Lock()
			entries = append(entries, entry)
			mu.Unlock()
		}(relPath)
	}
	wg.Wait()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FilePath < entries[j].FilePath
	})

	return entries, BuildTree(entries), nil
}

// collectFiles returns relative slash-separated paths of regular files
// under root, applying the directory ignore set and configured globs.
func (h *Hasher) collectFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, ignored := defaultIgnoredDirs[name]; ignored || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, g := range h.ignore {
			if g.Match(rel) {
				return nil
			}
		}
		paths = append(paths, rel)
		return nil
	})
	return paths, err
}

// hashFile reads and hashes one file, returning ok=false when the file is
// screened out (too large, empty, binary, unreadable). Screening is a
// partial-content policy: a skipped file never aborts the pass.
func (h *Hasher) hashFile(root, relPath string) (types.FileHashEntry, bool) {
	fullPath := filepath.Join(root, filepath.FromSlash(relPath))

	info, err := os.Stat(fullPath)
	if err != nil || !info.Mode().IsRegular() {
		return types.FileHashEntry{}, false
	}
	if info.Size() == 0 || info.Size() > h.maxFileSize {
		return types.FileHashEntry{}, false
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return types.FileHashEntry{}, false
	}
	if IsBinary(content) {
		return types.FileHashEntry{}, false
	}

	return types.FileHashEntry{
		FilePath:     relPath,
		FileHash:     HashContent(content),
		FileSize:     info.Size(),
		LastModified: info.ModTime(),
	}, true
}

// IsBinary samples the first 8 KiB and reports binary when more than 1% of
// sampled bytes are NUL or non-whitespace control characters.
func IsBinary(content []byte) bool {
	sample := content
	if len(sample) > binarySampleSize {
		sample = sample[:binarySampleSize]
	}
	if len(sample) == 0 {
		return false
	}
	control := 0
	for _, b := range sample {
		if b == 0 {
			control++
		} else if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
	}
	return float64(control)/float64(len(sample)) > 0.01
}
