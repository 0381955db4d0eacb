// Package sandbox provides disposable execution environments holding a
// repository checkout. The agent's tools do all of their file access and
// command execution inside a sandbox; tearing it down discards everything
// the run touched.
package sandbox

import (
	"context"
	"time"

	"github.com/patchsmith/patchsmith/pkg/security/workspace"
)

// Spec describes the checkout a sandbox should be created with.
type Spec struct {
	RepoURL    string
	BaseBranch string
	// Token, when set, is injected into the clone URL for private
	// repositories. It is never persisted.
	Token string
}

// CommandResult captures one command execution inside a sandbox.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Sandbox is a live environment with a repository checkout.
type Sandbox interface {
	// ID identifies the sandbox for logging and run checkpoints.
	ID() string

	// WorkDir returns the absolute path of the repository checkout.
	WorkDir() string

	// Guard returns the path guard scoped to the checkout.
	Guard() *workspace.Guard

	// RunCommand executes a shell command in the checkout and returns its
	// output. A non-zero exit is reported in the result, not as an error;
	// the error return is for failures to execute at all.
	RunCommand(ctx context.Context, command string) (*CommandResult, error)

	// Stop tears the sandbox down and releases its resources. Safe to
	// call more than once.
	Stop(ctx context.Context) error
}

// Provider creates sandboxes.
type Provider interface {
	Create(ctx context.Context, spec Spec) (Sandbox, error)
}
