package coding

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchsmith/patchsmith/pkg/sandbox"
)

func TestValidateSyntaxToolInfersLanguage(t *testing.T) {
	guard, root := testGuard(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.py"), []byte("print('hi')\n"), 0o644))
	sb := &stubSandbox{guard: guard, result: &sandbox.CommandResult{ExitCode: 0}}

	tool := NewValidateSyntaxTool(guard, sb)
	out, meta, err := tool.Execute(context.Background(), args("<path>app.py</path>"))
	require.NoError(t, err)
	assert.Equal(t, "python -m py_compile 'app.py'", sb.lastCmd)
	assert.Equal(t, "Valid: app.py", out)
	assert.Equal(t, "python", meta["language"])
}

func TestValidateSyntaxToolReportsFailure(t *testing.T) {
	guard, root := testGuard(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.js"), []byte("function {"), 0o644))
	sb := &stubSandbox{guard: guard, result: &sandbox.CommandResult{
		Stderr:   "SyntaxError: Unexpected token '{'",
		ExitCode: 1,
	}}

	tool := NewValidateSyntaxTool(guard, sb)
	out, meta, err := tool.Execute(context.Background(), args("<path>broken.js</path>"))
	require.NoError(t, err)
	assert.Contains(t, out, "Syntax check failed for broken.js")
	assert.Contains(t, out, "SyntaxError")
	assert.Equal(t, 1, meta["exit_code"])
}

func TestValidateSyntaxToolUnknownExtension(t *testing.T) {
	guard, _ := testGuard(t)
	sb := &stubSandbox{guard: guard}

	tool := NewValidateSyntaxTool(guard, sb)
	out, _, err := tool.Execute(context.Background(), args("<path>notes.txt</path>"))
	require.NoError(t, err)
	assert.Contains(t, out, "skipping validation")
	assert.Empty(t, sb.lastCmd)
}

func TestValidateSyntaxToolRejectsEscapingPath(t *testing.T) {
	guard, _ := testGuard(t)
	sb := &stubSandbox{guard: guard}

	tool := NewValidateSyntaxTool(guard, sb)
	_, _, err := tool.Execute(context.Background(), args("<path>../../etc/passwd</path>"))
	assert.Error(t, err)
}

func TestGitInfoToolStatus(t *testing.T) {
	guard, _ := testGuard(t)
	sb := &stubSandbox{guard: guard, result: &sandbox.CommandResult{
		Stdout:   " M pkg/api/server.go\n?? pkg/api/server_test.go",
		ExitCode: 0,
	}}

	tool := NewGitInfoTool(sb)
	out, meta, err := tool.Execute(context.Background(), args("<info_type>status</info_type>"))
	require.NoError(t, err)
	assert.Equal(t, "git status --porcelain", sb.lastCmd)
	assert.Contains(t, out, "pkg/api/server.go")
	assert.Equal(t, "status", meta["info_type"])
}

func TestGitInfoToolAppliesLimit(t *testing.T) {
	guard, _ := testGuard(t)
	sb := &stubSandbox{guard: guard, result: &sandbox.CommandResult{Stdout: "abc123 first", ExitCode: 0}}

	tool := NewGitInfoTool(sb)
	_, _, err := tool.Execute(context.Background(), args("<info_type>recent-commits</info_type><limit>3</limit>"))
	require.NoError(t, err)
	assert.Equal(t, "git log --oneline -3", sb.lastCmd)

	_, _, err = tool.Execute(context.Background(), args("<info_type>log</info_type>"))
	require.NoError(t, err)
	assert.Equal(t, "git log --oneline --graph -10", sb.lastCmd)
}

func TestGitInfoToolUnknownType(t *testing.T) {
	guard, _ := testGuard(t)
	tool := NewGitInfoTool(&stubSandbox{guard: guard})

	_, _, err := tool.Execute(context.Background(), args("<info_type>stash</info_type>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown info_type")
}

func TestCheckDependenciesTool(t *testing.T) {
	guard, root := testGuard(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/app\n\ngo 1.24\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "package.json"), []byte(`{"name":"app"}`), 0o644))

	tool := NewCheckDependenciesTool(guard)

	out, meta, err := tool.Execute(context.Background(), args("<ecosystem>go</ecosystem>"))
	require.NoError(t, err)
	assert.Contains(t, out, "=== go.mod ===")
	assert.Contains(t, out, "module example.com/app")
	assert.NotContains(t, out, "package.json")
	assert.Equal(t, []string{"go.mod"}, meta["found"])

	out, _, err = tool.Execute(context.Background(), args("<ecosystem>all</ecosystem>"))
	require.NoError(t, err)
	assert.Contains(t, out, "=== go.mod ===")
	assert.Contains(t, out, "=== package.json ===")
}

func TestCheckDependenciesToolNothingFound(t *testing.T) {
	guard, _ := testGuard(t)
	tool := NewCheckDependenciesTool(guard)

	out, _, err := tool.Execute(context.Background(), args("<ecosystem>rust</ecosystem>"))
	require.NoError(t, err)
	assert.Equal(t, "No configuration files found", out)

	_, _, err = tool.Execute(context.Background(), args("<ecosystem>perl</ecosystem>"))
	require.Error(t, err)
}
