package coding

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchsmith/patchsmith/pkg/sandbox"
	"github.com/patchsmith/patchsmith/pkg/security/workspace"
)

type stubSandbox struct {
	guard   *workspace.Guard
	lastCmd string
	result  *sandbox.CommandResult
	err     error
}

func (s *stubSandbox) ID() string                { return "stub" }
func (s *stubSandbox) WorkDir() string           { return s.guard.RootDir() }
func (s *stubSandbox) Guard() *workspace.Guard   { return s.guard }
func (s *stubSandbox) Stop(context.Context) error { return nil }

func (s *stubSandbox) RunCommand(_ context.Context, command string) (*sandbox.CommandResult, error) {
	s.lastCmd = command
	return s.result, s.err
}

func TestRunCommandTool(t *testing.T) {
	guard, _ := testGuard(t)
	sb := &stubSandbox{
		guard: guard,
		result: &sandbox.CommandResult{
			Stdout:   "ok\n",
			ExitCode: 0,
			Duration: 50 * time.Millisecond,
		},
	}

	tool := NewRunCommandTool(sb)
	out, meta, err := tool.Execute(context.Background(), args("<command>go test ./...</command>"))
	require.NoError(t, err)
	assert.Equal(t, "go test ./...", sb.lastCmd)
	assert.Contains(t, out, "Exit code: 0")
	assert.Contains(t, out, "ok")
	assert.Equal(t, 0, meta["exit_code"])
}

func TestRunCommandToolNonZeroExit(t *testing.T) {
	guard, _ := testGuard(t)
	sb := &stubSandbox{
		guard:  guard,
		result: &sandbox.CommandResult{Stderr: "FAIL", ExitCode: 1},
	}

	tool := NewRunCommandTool(sb)
	out, meta, err := tool.Execute(context.Background(), args("<command>go test</command>"))
	require.NoError(t, err)
	assert.Contains(t, out, "Exit code: 1")
	assert.Contains(t, out, "FAIL")
	assert.Equal(t, 1, meta["exit_code"])
}

func TestRunCommandToolTruncatesOutput(t *testing.T) {
	guard, _ := testGuard(t)
	sb := &stubSandbox{
		guard:  guard,
		result: &sandbox.CommandResult{Stdout: strings.Repeat("x", commandOutputLimit+100)},
	}

	tool := NewRunCommandTool(sb)
	out, _, err := tool.Execute(context.Background(), args("<command>cat big</command>"))
	require.NoError(t, err)
	assert.Contains(t, out, "(output truncated)")
}

func TestRunCommandToolEmptyCommand(t *testing.T) {
	guard, _ := testGuard(t)
	tool := NewRunCommandTool(&stubSandbox{guard: guard})
	_, _, err := tool.Execute(context.Background(), args("<command>  </command>"))
	assert.Error(t, err)
}
