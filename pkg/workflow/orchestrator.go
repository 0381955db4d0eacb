// Package workflow drives a run through its stages: indexing, sandbox
// setup, planning, editing, publishing. The orchestrator is the only
// writer of run state; each stage returns an outcome step, the state is
// checkpointed after every stage, and the machine only moves forward.
package workflow

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/patchsmith/patchsmith/pkg/agent"
	"github.com/patchsmith/patchsmith/pkg/indexer"
	"github.com/patchsmith/patchsmith/pkg/logging"
	"github.com/patchsmith/patchsmith/pkg/publish"
	"github.com/patchsmith/patchsmith/pkg/sandbox"
	"github.com/patchsmith/patchsmith/pkg/store"
	"github.com/patchsmith/patchsmith/pkg/types"
)

var workflowLog *logging.Logger

func init() {
	var err error
	workflowLog, err = logging.NewLogger("workflow")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		workflowLog.Warnf("Failed to initialize workflow logger, using stderr fallback: %v", err)
	}
}

// defaultEventBuffer bounds the per-orchestrator event channel. Progress
// events are dropped when the buffer is full; terminal events always
// block until delivered.
const defaultEventBuffer = 64

// Indexer indexes a repository checkout into the vector store.
type Indexer interface {
	IndexCheckout(ctx context.Context, repo types.Repository, dir, previousRoot string) (*indexer.Result, error)
}

// Planner produces the ordered working plan for a task.
type Planner interface {
	BuildPlan(ctx context.Context, repo *types.Repository, sb sandbox.Sandbox, task string) (*agent.PlanResult, error)
}

// Editor executes a plan against a sandbox checkout.
type Editor interface {
	Execute(ctx context.Context, sb sandbox.Sandbox, task string, plan *types.Plan) ([]types.EditedFile, error)
}

// Publisher commits, pushes, and opens a pull request.
type Publisher interface {
	Publish(ctx context.Context, req publish.Request) (*publish.Result, error)
}

// Orchestrator owns the run state machine. It is safe for concurrent use;
// each Execute call drives exactly one run.
type Orchestrator struct {
	store     *store.Store
	sandboxes sandbox.Provider
	indexer   Indexer
	planner   Planner
	editor    Editor
	publisher Publisher

	token         string
	workRoot      string
	keepCheckouts bool
	runTimeout    time.Duration
	clone         func(ctx context.Context, repoURL, branch, dest, token string) error

	events chan *types.Event
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithToken sets the git credential injected into clones, pushes, and
// pull request creation.
func WithToken(token string) Option {
	return func(o *Orchestrator) {
		o.token = token
	}
}

// WithWorkRoot sets the directory temporary index checkouts are created
// under. Defaults to the system temp directory.
func WithWorkRoot(dir string) Option {
	return func(o *Orchestrator) {
		o.workRoot = dir
	}
}

// WithKeepCheckouts preserves the temporary index checkout after the
// indexing stage instead of removing it, for debugging index runs.
func WithKeepCheckouts(keep bool) Option {
	return func(o *Orchestrator) {
		o.keepCheckouts = keep
	}
}

// WithRunTimeout bounds the total lifetime of one Execute call. A run
// that exceeds the deadline is cancelled at the next stage boundary, and
// any in-flight model call or command observes the expired context.
func WithRunTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.runTimeout = d
		}
	}
}

// WithEventBuffer sets the event channel capacity.
func WithEventBuffer(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.events = make(chan *types.Event, n)
		}
	}
}

// NewOrchestrator wires the stage implementations into a state machine.
func NewOrchestrator(st *store.Store, sandboxes sandbox.Provider, ix Indexer, pl Planner, ed Editor, pub Publisher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		sandboxes: sandboxes,
		indexer:   ix,
		planner:   pl,
		editor:    ed,
		publisher: pub,
		clone:     sandbox.CloneShallow,
		events:    make(chan *types.Event, defaultEventBuffer),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Events returns the stream of step transitions and terminal outcomes for
// every run this orchestrator executes. Progress events are dropped when
// the consumer falls behind; terminal events are always delivered.
func (o *Orchestrator) Events() <-chan *types.Event {
	return o.events
}

// runHandle holds per-run resources that cannot be checkpointed, such as
// the live sandbox.
type runHandle struct {
	sb sandbox.Sandbox
}

type stage struct {
	name string
	run  func(ctx context.Context, run *types.RunState, h *runHandle) types.Step
}

// nextStage maps the step recorded at the last checkpoint to the stage
// that runs next. Terminal steps have no entry: the machine only moves
// forward, and a failed stage ends the run.
func (o *Orchestrator) nextStage(step types.Step) (stage, bool) {
	switch step {
	case types.StepPending:
		return stage{"indexing", o.stageIndexing}, true
	case types.StepIndexingComplete, types.StepIndexingSkipped:
		return stage{"sandbox_setup", o.stageSandbox}, true
	case types.StepSandboxReady:
		return stage{"planning", o.stagePlanning}, true
	case types.StepPlanningComplete:
		return stage{"editing", o.stageEditing}, true
	case types.StepEditingComplete:
		return stage{"publishing", o.stagePublishing}, true
	default:
		return stage{}, false
	}
}

// Execute drives the run from its current step to a terminal step. A run
// loaded from a checkpoint resumes at the first stage after the last
// completed one. The sandbox, if any was created, is torn down before
// Execute returns regardless of outcome.
func (o *Orchestrator) Execute(ctx context.Context, run *types.RunState) error {
	if o.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.runTimeout)
		defer cancel()
	}

	h := &runHandle{}
	defer func() {
		if h.sb != nil {
			if err := h.sb.Stop(context.Background()); err != nil {
				workflowLog.Warnf("run %s: sandbox teardown failed: %v", run.ID, err)
			}
		}
	}()

	var checkpointErr error
	for !run.CurrentStep.Terminal() {
		if ctx.Err() != nil {
			return o.cancel(run)
		}

		st, ok := o.nextStage(run.CurrentStep)
		if !ok {
			return fmt.Errorf("no stage to run from step %q", run.CurrentStep)
		}

		workflowLog.Infof("run %s: starting stage %s", run.ID, st.name)
		o.emit(types.NewStepStartEvent(run.ID, st.name))

		run.CurrentStep = st.run(ctx, run, h)
		o.finalize(run)

		if err := o.checkpoint(run); err != nil {
			if run.CurrentStep.Terminal() {
				checkpointErr = err
			} else {
				// The run can still finish; only resume is degraded.
				workflowLog.Warnf("run %s: checkpoint after %s failed: %v", run.ID, st.name, err)
			}
		}

		o.emit(types.NewStepCompleteEvent(run.ID, run.CurrentStep))
	}

	o.emitTerminal(types.NewRunTerminalEvent(run.ID, run.CurrentStep))
	workflowLog.Infof("run %s: finished with step %s status %s", run.ID, run.CurrentStep, run.Status)
	return checkpointErr
}

// cancel transitions the run to the cancelled terminal state. Called only
// between stages; an in-flight stage observes the context itself.
func (o *Orchestrator) cancel(run *types.RunState) error {
	run.CurrentStep = types.StepCancelled
	o.finalize(run)
	err := o.checkpoint(run)
	o.emitTerminal(types.NewRunTerminalEvent(run.ID, run.CurrentStep))
	workflowLog.Infof("run %s: cancelled at step %s", run.ID, run.CurrentStep)
	return err
}

// finalize derives the run status from the current step and stamps the
// completion time on terminal steps.
func (o *Orchestrator) finalize(run *types.RunState) {
	if !run.CurrentStep.Terminal() {
		return
	}
	switch {
	case run.CurrentStep == types.StepPRCreated:
		run.Status = types.StatusCompleted
	case run.CurrentStep == types.StepCancelled:
		run.Status = types.StatusCancelled
	default:
		run.Status = types.StatusFailed
	}
	now := time.Now().UTC()
	run.CompletedAt = &now
}

func (o *Orchestrator) checkpoint(run *types.RunState) error {
	if err := o.store.SaveRun(context.Background(), run); err != nil {
		return fmt.Errorf("failed to checkpoint run %s: %w", run.ID, err)
	}
	return nil
}

// recordError appends a stage failure to the run and emits an error
// event. The orchestrator never propagates stage errors as Go errors;
// they become failed steps.
func (o *Orchestrator) recordError(run *types.RunState, stageName string, err error) {
	msg := fmt.Sprintf("%s: %v", stageName, err)
	run.Errors = append(run.Errors, msg)
	workflowLog.Errorf("run %s: %s", run.ID, msg)
	o.emit(types.NewRunErrorEvent(run.ID, msg))
}

// emit delivers a progress event without blocking; when the consumer has
// fallen behind the event is dropped.
func (o *Orchestrator) emit(ev *types.Event) {
	select {
	case o.events <- ev:
	default:
		workflowLog.Warnf("run %s: dropping %s event, consumer is behind", ev.RunID, ev.Type)
	}
}

// emitTerminal blocks until the terminal outcome is delivered. Exactly
// one terminal event is emitted per run.
func (o *Orchestrator) emitTerminal(ev *types.Event) {
	o.events <- ev
}

func (o *Orchestrator) stageIndexing(ctx context.Context, run *types.RunState, _ *runHandle) types.Step {
	repo, err := o.store.UpsertRepository(ctx, types.Repository{
		ID:         uuid.NewString(),
		URL:        run.RepoURL,
		Name:       repoName(run.RepoURL),
		BaseBranch: run.BaseBranch,
	})
	if err != nil {
		o.recordError(run, "indexing", err)
		return types.StepIndexingFailed
	}
	run.RepositoryID = repo.ID

	dir, err := os.MkdirTemp(o.workRoot, "patchsmith-index-")
	if err != nil {
		o.recordError(run, "indexing", fmt.Errorf("failed to create checkout dir: %w", err))
		return types.StepIndexingFailed
	}
	if o.keepCheckouts {
		workflowLog.Infof("run %s: keeping index checkout at %s", run.ID, dir)
	} else {
		defer os.RemoveAll(dir) //nolint:errcheck
	}

	if err := o.clone(ctx, run.RepoURL, run.BaseBranch, dir, o.token); err != nil {
		o.recordError(run, "indexing", err)
		return types.StepIndexingFailed
	}

	res, err := o.indexer.IndexCheckout(ctx, repo, dir, run.PreviousMerkleRoot)
	if err != nil {
		o.recordError(run, "indexing", err)
		return types.StepIndexingFailed
	}

	run.MerkleRoot = res.MerkleRoot
	run.PreviousMerkleRoot = res.PreviousRoot
	run.ChangedFiles = res.ChangedFiles
	run.DeletedFiles = res.DeletedFiles
	run.VectorIndexReady = true
	if res.Skipped {
		workflowLog.Infof("run %s: index unchanged, skipped re-embedding", run.ID)
		return types.StepIndexingSkipped
	}
	return types.StepIndexingComplete
}

func (o *Orchestrator) stageSandbox(ctx context.Context, run *types.RunState, h *runHandle) types.Step {
	sb, err := o.sandboxes.Create(ctx, sandbox.Spec{
		RepoURL:    run.RepoURL,
		BaseBranch: run.BaseBranch,
		Token:      o.token,
	})
	if err != nil {
		o.recordError(run, "sandbox_setup", err)
		return types.StepSandboxFailed
	}
	h.sb = sb
	run.SandboxID = sb.ID()
	return types.StepSandboxReady
}

// ensureSandbox returns the live sandbox, recreating it when the run was
// resumed from a checkpoint past sandbox setup. The second return reports
// whether this call created the sandbox; a recreated clone starts at the
// base branch and carries none of the run's earlier work.
func (o *Orchestrator) ensureSandbox(ctx context.Context, run *types.RunState, h *runHandle) (sandbox.Sandbox, bool, error) {
	if h.sb != nil {
		return h.sb, false, nil
	}
	sb, err := o.sandboxes.Create(ctx, sandbox.Spec{
		RepoURL:    run.RepoURL,
		BaseBranch: run.BaseBranch,
		Token:      o.token,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to recreate sandbox: %w", err)
	}
	h.sb = sb
	run.SandboxID = sb.ID()
	workflowLog.Infof("run %s: recreated sandbox %s after resume", run.ID, sb.ID())
	return sb, true, nil
}

// restoreEdits materializes checkpointed edits into a freshly cloned
// checkout. A run resumed after the editing stage has its changes only in
// the checkpoint; the new clone starts clean at the base branch tip.
func restoreEdits(sb sandbox.Sandbox, edits []types.EditedFile) error {
	guard := sb.Guard()
	for _, edit := range edits {
		if err := guard.ValidatePath(edit.FilePath); err != nil {
			return fmt.Errorf("failed to restore %s: %w", edit.FilePath, err)
		}
		abs, err := guard.ResolvePath(edit.FilePath)
		if err != nil {
			return fmt.Errorf("failed to restore %s: %w", edit.FilePath, err)
		}
		if edit.Deleted {
			if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to restore deletion of %s: %w", edit.FilePath, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return fmt.Errorf("failed to restore %s: %w", edit.FilePath, err)
		}
		if err := os.WriteFile(abs, []byte(edit.NewContent), 0o644); err != nil {
			return fmt.Errorf("failed to restore %s: %w", edit.FilePath, err)
		}
	}
	return nil
}

func (o *Orchestrator) stagePlanning(ctx context.Context, run *types.RunState, h *runHandle) types.Step {
	sb, _, err := o.ensureSandbox(ctx, run, h)
	if err != nil {
		o.recordError(run, "planning", err)
		return types.StepPlanningFailed
	}

	repo, err := o.store.GetRepository(ctx, run.RepositoryID)
	if err != nil {
		o.recordError(run, "planning", err)
		return types.StepPlanningFailed
	}

	result, err := o.planner.BuildPlan(ctx, &repo, sb, run.Task)
	if err != nil {
		o.recordError(run, "planning", err)
		return types.StepPlanningFailed
	}
	if result.Fallback {
		workflowLog.Warnf("run %s: plan generation fell back to a single-item plan", run.ID)
	}

	run.Plan = result.Plan.Items
	run.RelevantFiles = result.Plan.RelevantFiles
	run.SemanticMatches = result.Matches
	return types.StepPlanningComplete
}

func (o *Orchestrator) stageEditing(ctx context.Context, run *types.RunState, h *runHandle) types.Step {
	sb, _, err := o.ensureSandbox(ctx, run, h)
	if err != nil {
		o.recordError(run, "editing", err)
		return types.StepEditingFailed
	}

	plan := &types.Plan{Items: run.Plan, RelevantFiles: run.RelevantFiles}
	edits, err := o.editor.Execute(ctx, sb, run.Task, plan)
	if err != nil {
		o.recordError(run, "editing", err)
		return types.StepEditingFailed
	}

	run.EditedFiles = edits
	return types.StepEditingComplete
}

func (o *Orchestrator) stagePublishing(ctx context.Context, run *types.RunState, h *runHandle) types.Step {
	sb, recreated, err := o.ensureSandbox(ctx, run, h)
	if err != nil {
		o.recordError(run, "publishing", err)
		return types.StepPRFailed
	}

	// A run resumed at editing_complete enters publishing with a clean
	// clone; its edits exist only in the checkpoint and must be replayed
	// before the publisher inspects the working tree.
	if recreated && len(run.EditedFiles) > 0 {
		if err := restoreEdits(sb, run.EditedFiles); err != nil {
			o.recordError(run, "publishing", err)
			return types.StepPRFailed
		}
		workflowLog.Infof("run %s: restored %d checkpointed edits into sandbox %s", run.ID, len(run.EditedFiles), sb.ID())
	}

	res, err := o.publisher.Publish(ctx, publish.Request{
		WorkDir:    sb.WorkDir(),
		RepoURL:    run.RepoURL,
		BaseBranch: run.BaseBranch,
		Task:       run.Task,
		Edits:      run.EditedFiles,
		Token:      o.token,
	})
	if err != nil {
		o.recordError(run, "publishing", err)
		return types.StepPRFailed
	}

	run.BranchName = res.BranchName
	run.CommitHash = res.CommitHash
	run.PRURL = res.PRURL
	return types.StepPRCreated
}

// repoName derives a display name from a repository URL or local path.
func repoName(repoURL string) string {
	name := strings.TrimSuffix(repoURL, "/")
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSuffix(name, ".git")
	if name == "" || name == "." || name == "/" {
		return "repository"
	}
	return name
}
