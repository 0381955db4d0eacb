package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patchsmith/patchsmith/pkg/logging"
	"github.com/patchsmith/patchsmith/pkg/security/workspace"
)

var sandboxLog *logging.Logger

func init() {
	var err error
	sandboxLog, err = logging.NewLogger("sandbox")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		sandboxLog.Warnf("Failed to initialize sandbox logger, using stderr fallback: %v", err)
	}
}

// LocalProvider creates sandboxes as temporary directories on the local
// machine, with the repository shallow-cloned into each.
type LocalProvider struct {
	workRoot       string
	scratchDir     string
	commandTimeout time.Duration
}

// LocalOption configures a LocalProvider.
type LocalOption func(*LocalProvider)

// WithWorkRoot places sandbox directories under dir instead of the system
// temp directory.
func WithWorkRoot(dir string) LocalOption {
	return func(p *LocalProvider) {
		p.workRoot = dir
	}
}

// WithScratchDir designates a shared directory outside the checkout that
// every sandbox's guard permits file operations in. The directory is
// created on first use and survives sandbox teardown.
func WithScratchDir(dir string) LocalOption {
	return func(p *LocalProvider) {
		p.scratchDir = dir
	}
}

// WithCommandTimeout bounds each RunCommand invocation (default 5m).
func WithCommandTimeout(d time.Duration) LocalOption {
	return func(p *LocalProvider) {
		if d > 0 {
			p.commandTimeout = d
		}
	}
}

// NewLocalProvider creates a provider for local temp-directory sandboxes.
func NewLocalProvider(opts ...LocalOption) *LocalProvider {
	p := &LocalProvider{
		commandTimeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Create clones the repository into a fresh directory and wraps it in a
// sandbox. The directory is removed if any setup step fails.
func (p *LocalProvider) Create(ctx context.Context, spec Spec) (Sandbox, error) {
	if spec.RepoURL == "" || spec.BaseBranch == "" {
		return nil, fmt.Errorf("sandbox spec requires repository URL and base branch")
	}

	id := uuid.NewString()
	dir, err := os.MkdirTemp(p.workRoot, "sandbox-"+id[:8]+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox directory: %w", err)
	}

	if err := CloneShallow(ctx, spec.RepoURL, spec.BaseBranch, dir, spec.Token); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	guard, err := workspace.NewGuard(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create sandbox guard: %w", err)
	}

	if p.scratchDir != "" {
		if err := os.MkdirAll(p.scratchDir, 0o755); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("failed to create scratch directory: %w", err)
		}
		if err := guard.AddWhitelist(p.scratchDir); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("failed to whitelist scratch directory: %w", err)
		}
	}

	sandboxLog.Infof("created sandbox %s for %s@%s", id, spec.RepoURL, spec.BaseBranch)
	return &localSandbox{
		id:             id,
		workDir:        guard.RootDir(),
		guard:          guard,
		commandTimeout: p.commandTimeout,
	}, nil
}

type localSandbox struct {
	id             string
	workDir        string
	guard          *workspace.Guard
	commandTimeout time.Duration

	mu      sync.Mutex
	stopped bool
}

func (s *localSandbox) ID() string {
	return s.id
}

func (s *localSandbox) WorkDir() string {
	return s.workDir
}

func (s *localSandbox) Guard() *workspace.Guard {
	return s.guard
}

// RunCommand executes a shell command in the checkout with a timeout.
// Non-zero exits come back in the result so tools can show the agent the
// failure output.
func (s *localSandbox) RunCommand(ctx context.Context, command string) (*CommandResult, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, fmt.Errorf("sandbox %s is stopped", s.id)
	}
	s.mu.Unlock()

	if command == "" {
		return nil, fmt.Errorf("command cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = s.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	result := &CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("command timed out after %s: %s", s.commandTimeout, command)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("failed to execute command: %w", err)
	}

	return result, nil
}

// Stop removes the sandbox directory. Subsequent calls are no-ops.
func (s *localSandbox) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true

	if err := os.RemoveAll(s.workDir); err != nil {
		return fmt.Errorf("failed to remove sandbox %s: %w", s.id, err)
	}
	sandboxLog.Infof("stopped sandbox %s", s.id)
	return nil
}
