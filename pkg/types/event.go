package types

import "time"

// EventType identifies a workflow event pushed to observers.
type EventType string

const (
	EventStepStart    EventType = "step_start"    // a stage began executing
	EventStepComplete EventType = "step_complete" // a stage reported its outcome
	EventRunTerminal  EventType = "run_terminal"  // the run reached a terminal step
	EventRunError     EventType = "run_error"     // an error was appended to the run
)

// Event is one entry in the ordered, best-effort progress stream for a run.
// Delivery failure never rolls back the underlying state machine.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"runId"`
	Step      Step      `json:"step,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewStepStartEvent marks the beginning of a stage.
func NewStepStartEvent(runID, stage string) *Event {
	return &Event{Type: EventStepStart, RunID: runID, Message: stage, Timestamp: time.Now()}
}

// NewStepCompleteEvent records the outcome tag a stage produced.
func NewStepCompleteEvent(runID string, step Step) *Event {
	return &Event{Type: EventStepComplete, RunID: runID, Step: step, Timestamp: time.Now()}
}

// NewRunTerminalEvent marks the run's terminal outcome.
func NewRunTerminalEvent(runID string, step Step) *Event {
	return &Event{Type: EventRunTerminal, RunID: runID, Step: step, Timestamp: time.Now()}
}

// NewRunErrorEvent records an error appended to the run's error list.
func NewRunErrorEvent(runID, message string) *Event {
	return &Event{Type: EventRunError, RunID: runID, Message: message, Timestamp: time.Now()}
}
