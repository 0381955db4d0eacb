// Package chunk splits file content into fixed-size line windows for
// embedding. The strategy is deliberately content-agnostic: every text file
// is cut into N-line windows regardless of language, trading syntactic
// boundaries for uniform coverage without per-language parsers.
package chunk

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/patchsmith/patchsmith/pkg/merkle"
	"github.com/patchsmith/patchsmith/pkg/types"
)

// DefaultWindow is the default number of lines per chunk.
const DefaultWindow = 100

// Chunker produces line-window chunks from files.
type Chunker struct {
	window      int
	maxFileSize int64
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithWindow overrides the lines-per-chunk window.
func WithWindow(lines int) Option {
	return func(c *Chunker) {
		if lines > 0 {
			c.window = lines
		}
	}
}

// WithMaxFileSize overrides the per-file size cap (default 10 MiB).
func WithMaxFileSize(size int64) Option {
	return func(c *Chunker) {
		c.maxFileSize = size
	}
}

// New creates a Chunker with the default 100-line window.
func New(opts ...Option) *Chunker {
	c := &Chunker{window: DefaultWindow, maxFileSize: 10 * 1024 * 1024}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// File splits content into chunks. Windows that are pure whitespace are
// dropped. Line ranges are 1-based and inclusive.
func (c *Chunker) File(content, filePath string) []types.Chunk {
	if content == "" || filePath == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	totalLines := len(lines)
	ext := filepath.Ext(filePath)

	var chunks []types.Chunk
	for start := 0; start < totalLines; start += c.window {
		end := start + c.window
		if end > totalLines {
			end = totalLines
		}
		body := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(body) == "" {
			continue
		}
		chunks = append(chunks, types.Chunk{
			Content:   body,
			FilePath:  filePath,
			LineStart: start + 1,
			LineEnd:   end,
			Type:      "module",
			Metadata: map[string]interface{}{
				"chunkIndex":    start / c.window,
				"fileExtension": ext,
				"totalLines":    totalLines,
			},
		})
	}
	return chunks
}

// Files chunks the listed files under repoPath. Files that cannot be read,
// exceed the size cap, or look binary are skipped with a warning callback;
// a bad file never aborts the batch. Reads fan out across goroutines and
// the combined result is ordered by (path, chunkIndex) for determinism.
func (c *Chunker) Files(repoPath string, filePaths []string, warn func(path, reason string)) []types.Chunk {
	if warn == nil {
		warn = func(string, string) {}
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	var all []types.Chunk

	for _, relPath := range filePaths {
		wg.Add(1)
		go func(relPath string) {
			defer wg.Done()
			fullPath := filepath.Join(repoPath, filepath.FromSlash(relPath))

			info, err := os.Stat(fullPath)
			if err != nil {
				warn(relPath, fmt.Sprintf("stat failed: %v", err))
				return
			}
			if info.Size() == 0 {
				warn(relPath, "empty file")
				return
			}
			if info.Size() > c.maxFileSize {
				warn(relPath, fmt.Sprintf("file too large: %d bytes", info.Size()))
				return
			}

			content, err := os.ReadFile(fullPath)
			if err != nil {
				warn(relPath, fmt.Sprintf("read failed: %v", err))
				return
			}
			if merkle.IsBinary(content) {
				warn(relPath, "binary content")
				return
			}

			chunks := c.File(string(content), relPath)
			mu.Lock()
			all = append(all, chunks...)
			mu.Unlock()
		}(relPath)
	}
	wg.Wait()

	sort.Slice(all, func(i, j int) bool {
		if all[i].FilePath != all[j].FilePath {
			return all[i].FilePath < all[j].FilePath
		}
		return all[i].LineStart < all[j].LineStart
	})
	return all
}

// EmbeddingInput formats a chunk for the embedding call: file path and
// metadata prefix, then the content. The prefix gives the model provenance
// context beyond the raw text.
func EmbeddingInput(c types.Chunk) string {
	if c.Content == "" || c.FilePath == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("File: ")
	sb.WriteString(c.FilePath)
	sb.WriteString("\n")

	if len(c.Metadata) > 0 {
		keys := make([]string, 0, len(c.Metadata))
		for k := range c.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s: %v", k, c.Metadata[k]))
		}
		sb.WriteString("Metadata: ")
		sb.WriteString(strings.Join(pairs, ", "))
		sb.WriteString("\n")
	}

	sb.WriteString(c.Content)
	return sb.String()
}
