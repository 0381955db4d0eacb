package chunk

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchsmith/patchsmith/pkg/types"
)

func makeLines(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
	}
	return strings.Join(lines, "\n")
}

func TestFileSingleChunk(t *testing.T) {
	c := New()
	chunks := c.File(makeLines(40), "main.go")

	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].LineStart)
	assert.Equal(t, 40, chunks[0].LineEnd)
	assert.Equal(t, "module", chunks[0].Type)
	assert.Equal(t, 0, chunks[0].Metadata["chunkIndex"])
	assert.Equal(t, ".go", chunks[0].Metadata["fileExtension"])
	assert.Equal(t, 40, chunks[0].Metadata["totalLines"])
}

func TestFileWindowBoundaries(t *testing.T) {
	c := New()
	chunks := c.File(makeLines(250), "big.ts")

	require.Len(t, chunks, 3)
	assert.Equal(t, 1, chunks[0].LineStart)
	assert.Equal(t, 100, chunks[0].LineEnd)
	assert.Equal(t, 101, chunks[1].LineStart)
	assert.Equal(t, 200, chunks[1].LineEnd)
	assert.Equal(t, 201, chunks[2].LineStart)
	assert.Equal(t, 250, chunks[2].LineEnd)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Metadata["chunkIndex"])
		assert.Equal(t, 250, ch.Metadata["totalLines"])
	}
}

func TestFileExactWindowMultiple(t *testing.T) {
	c := New()
	chunks := c.File(makeLines(200), "even.py")

	require.Len(t, chunks, 2)
	assert.Equal(t, 200, chunks[1].LineEnd)
}

func TestFileDropsWhitespaceWindows(t *testing.T) {
	// First window has content, second window is blank lines only.
	lines := make([]string, 150)
	for i := 0; i < 100; i++ {
		lines[i] = fmt.Sprintf("code %d", i)
	}
	for i := 100; i < 150; i++ {
		lines[i] = "   "
	}

	c := New()
	chunks := c.File(strings.Join(lines, "\n"), "padded.go")

	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].LineStart)
}

func TestFileEmptyInputs(t *testing.T) {
	c := New()
	assert.Nil(t, c.File("", "main.go"))
	assert.Nil(t, c.File("content", ""))
}

func TestFileCustomWindow(t *testing.T) {
	c := New(WithWindow(10))
	chunks := c.File(makeLines(25), "small.go")

	require.Len(t, chunks, 3)
	assert.Equal(t, 21, chunks[2].LineStart)
	assert.Equal(t, 25, chunks[2].LineEnd)
}

func TestFilesSkipsUnreadableAndBinary(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.go"), []byte(makeLines(10)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.go"), nil, 0o644))
	binary := append([]byte("elf"), make([]byte, 200)...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob.bin"), binary, 0o644))

	var warned []string
	c := New()
	chunks := c.Files(dir, []string{"good.go", "empty.go", "blob.bin", "missing.go"}, func(path, reason string) {
		warned = append(warned, path)
	})

	require.Len(t, chunks, 1)
	assert.Equal(t, "good.go", chunks[0].FilePath)
	assert.ElementsMatch(t, []string{"empty.go", "blob.bin", "missing.go"}, warned)
}

func TestFilesDeterministicOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.go"), []byte(makeLines(150)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte(makeLines(5)), 0o644))

	c := New()
	chunks := c.Files(dir, []string{"b.go", "a.go"}, nil)

	require.Len(t, chunks, 3)
	assert.Equal(t, "a.go", chunks[0].FilePath)
	assert.Equal(t, "b.go", chunks[1].FilePath)
	assert.Equal(t, 1, chunks[1].LineStart)
	assert.Equal(t, 101, chunks[2].LineStart)
}

func TestEmbeddingInput(t *testing.T) {
	ch := types.Chunk{
		Content:  "func main() {}",
		FilePath: "cmd/main.go",
		Metadata: map[string]interface{}{
			"chunkIndex":    0,
			"fileExtension": ".go",
			"totalLines":    1,
		},
	}

	got := EmbeddingInput(ch)
	assert.True(t, strings.HasPrefix(got, "File: cmd/main.go\n"))
	assert.Contains(t, got, "Metadata: chunkIndex: 0, fileExtension: .go, totalLines: 1")
	assert.True(t, strings.HasSuffix(got, "func main() {}"))
}

func TestEmbeddingInputEmpty(t *testing.T) {
	assert.Equal(t, "", EmbeddingInput(types.Chunk{FilePath: "a.go"}))
	assert.Equal(t, "", EmbeddingInput(types.Chunk{Content: "x"}))
}
