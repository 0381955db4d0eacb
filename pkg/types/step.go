// Package types defines the shared data model for the agent workflow:
// run state, stage outcomes, plan items, chunks, and workflow events.
//
// The workflow is a strict forward-only pipeline:
//
//	indexing -> sandbox_setup -> planning -> editing -> publishing -> terminal
//
// Each stage reports a Step outcome; the orchestrator consults a closed
// transition table and never moves backward.
package types

// Step is the outcome tag a stage reports to the orchestrator.
// It is a closed set: the transition table in the workflow package
// rejects anything it does not know about.
type Step string

const (
	StepPending Step = "pending" // run created, nothing executed yet

	StepIndexingComplete Step = "indexing_complete"
	// StepIndexingSkipped is the no-op fast path: the repository's root
	// matched a known root, so nothing was re-embedded. It advances the
	// run the same way as StepIndexingComplete.
	StepIndexingSkipped Step = "indexing_skipped"
	StepIndexingFailed  Step = "indexing_failed"

	StepSandboxReady  Step = "sandbox_ready"
	StepSandboxFailed Step = "sandbox_failed"

	StepPlanningComplete Step = "planning_complete"
	StepPlanningFailed   Step = "planning_failed"

	StepEditingComplete Step = "editing_complete"
	StepEditingFailed   Step = "editing_failed"

	StepPRCreated Step = "pr_created"
	StepPRFailed  Step = "pr_failed"

	StepCancelled Step = "cancelled"
)

// Terminal reports whether the step ends the run.
func (s Step) Terminal() bool {
	switch s {
	case StepIndexingFailed, StepSandboxFailed, StepPlanningFailed,
		StepEditingFailed, StepPRCreated, StepPRFailed, StepCancelled:
		return true
	}
	return false
}

// Failed reports whether the step is a failure outcome.
func (s Step) Failed() bool {
	switch s {
	case StepIndexingFailed, StepSandboxFailed, StepPlanningFailed,
		StepEditingFailed, StepPRFailed:
		return true
	}
	return false
}

// RunStatus is the lifecycle status of an agent run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)
