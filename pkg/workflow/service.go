package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patchsmith/patchsmith/pkg/store"
	"github.com/patchsmith/patchsmith/pkg/types"
)

// TaskRequest is the input that starts a run.
type TaskRequest struct {
	Task       string `json:"task"`
	RepoURL    string `json:"repoUrl"`
	BaseBranch string `json:"baseBranch"`
}

// Validate reports the first missing field.
func (r TaskRequest) Validate() error {
	if strings.TrimSpace(r.Task) == "" {
		return fmt.Errorf("task is required")
	}
	if strings.TrimSpace(r.RepoURL) == "" {
		return fmt.Errorf("repoUrl is required")
	}
	if strings.TrimSpace(r.BaseBranch) == "" {
		return fmt.Errorf("baseBranch is required")
	}
	return nil
}

// Service is the external surface of the orchestrator: it accepts tasks,
// runs them in the background, and exposes stop and inspection entry
// points. A stopped run transitions to the cancelled terminal state at
// the next stage boundary.
type Service struct {
	orch  *Orchestrator
	store *store.Store

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewService wraps an orchestrator with background run management.
func NewService(orch *Orchestrator, st *store.Store) *Service {
	return &Service{
		orch:    orch,
		store:   st,
		cancels: make(map[string]context.CancelFunc),
	}
}

// CreateTask persists a new pending run and starts executing it in the
// background. The returned state is the initial checkpoint; follow the
// event stream or poll GetRun for progress.
func (s *Service) CreateTask(ctx context.Context, req TaskRequest) (*types.RunState, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task request: %w", err)
	}

	run := &types.RunState{
		ID:          uuid.NewString(),
		Task:        req.Task,
		RepoURL:     req.RepoURL,
		BaseBranch:  req.BaseBranch,
		CurrentStep: types.StepPending,
		Status:      types.StatusRunning,
		StartedAt:   time.Now().UTC(),
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to persist new run: %w", err)
	}

	s.start(run)

	snapshot := *run
	return &snapshot, nil
}

// Resume reloads a checkpointed run and continues it from the last
// completed stage. Terminal runs are returned as-is without executing
// anything.
func (s *Service) Resume(ctx context.Context, runID string) (*types.RunState, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.CurrentStep.Terminal() {
		return run, nil
	}

	s.start(run)

	snapshot := *run
	return &snapshot, nil
}

func (s *Service) start(run *types.RunState) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.cancels[run.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.cancels, run.ID)
			s.mu.Unlock()
			cancel()
		}()

		if err := s.orch.Execute(ctx, run); err != nil {
			workflowLog.Errorf("run %s: execution error: %v", run.ID, err)
		}
	}()
}

// Stop requests cancellation of a running task. The run observes the
// request at the next stage boundary; in-flight model and tool calls are
// interrupted through their context.
func (s *Service) Stop(runID string) error {
	s.mu.Lock()
	cancel, ok := s.cancels[runID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %s is not active", runID)
	}
	cancel()
	return nil
}

// GetRun returns the latest checkpointed state of a run.
func (s *Service) GetRun(ctx context.Context, runID string) (*types.RunState, error) {
	return s.store.GetRun(ctx, runID)
}

// Events exposes the orchestrator's event stream.
func (s *Service) Events() <-chan *types.Event {
	return s.orch.Events()
}

// Wait blocks until all background runs have finished. Intended for
// shutdown paths and tests.
func (s *Service) Wait() {
	s.wg.Wait()
}
