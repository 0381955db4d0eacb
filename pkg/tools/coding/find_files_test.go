package coding

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFilesTool(t *testing.T) {
	guard, root := testGuard(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "server.go"), []byte("package pkg\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "sub", "client.go"), []byte("package sub\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "sub", "app.ts"), []byte("export {}\n"), 0o644))

	tool := NewFindFilesTool(guard)
	assert.Equal(t, "find_files", tool.Name())
	assert.False(t, tool.IsLoopBreaking())

	// '*' stays within one directory level.
	output, metadata, err := tool.Execute(context.Background(), args("<pattern>pkg/*.go</pattern>"))
	require.NoError(t, err)
	assert.Contains(t, output, "Found 1 file(s):")
	assert.Contains(t, output, "pkg/server.go")
	assert.NotContains(t, output, "client.go")
	assert.Equal(t, 1, metadata["count"])
	assert.Equal(t, false, metadata["truncated"])

	// '**' crosses directory levels.
	output, metadata, err = tool.Execute(context.Background(), args("<pattern>**.go</pattern>"))
	require.NoError(t, err)
	assert.Contains(t, output, "main.go")
	assert.Contains(t, output, "pkg/server.go")
	assert.Contains(t, output, "pkg/sub/client.go")
	assert.NotContains(t, output, "app.ts")
	assert.Equal(t, 3, metadata["count"])
}

func TestFindFilesToolNoMatches(t *testing.T) {
	guard, root := testGuard(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644))

	tool := NewFindFilesTool(guard)
	output, metadata, err := tool.Execute(context.Background(), args("<pattern>*.rs</pattern>"))
	require.NoError(t, err)
	assert.Contains(t, output, `No files matched pattern "*.rs"`)
	assert.Equal(t, 0, metadata["count"])
}

func TestFindFilesToolSkipsIgnoredDirs(t *testing.T) {
	guard, root := testGuard(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "dep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "dep", "index.js"), []byte("x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.js"), []byte("x\n"), 0o644))

	tool := NewFindFilesTool(guard)
	output, _, err := tool.Execute(context.Background(), args("<pattern>**.js</pattern>"))
	require.NoError(t, err)
	assert.Contains(t, output, "app.js")
	assert.NotContains(t, output, "node_modules")
}

func TestFindFilesToolInvalidInput(t *testing.T) {
	guard, _ := testGuard(t)
	tool := NewFindFilesTool(guard)

	_, _, err := tool.Execute(context.Background(), args(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required parameter: pattern")

	_, _, err = tool.Execute(context.Background(), args("<pattern>[unclosed</pattern>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid glob pattern")
}
