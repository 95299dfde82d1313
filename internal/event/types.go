package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "run.accepted", "run.progress").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeRunAccepted   = "run.accepted"
	TypeRunProgress   = "run.progress"
	TypeRunCompleted  = "run.completed"
	TypePhaseFinished = "phase.finished"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Run identifies the run an event belongs to and where its messages go.
type Run struct {
	RequestID string
	UserID    string
	ChannelID string
}

// -----------------------------------------------------------------------------
// Run Lifecycle Events
// -----------------------------------------------------------------------------

// RunAcceptedEvent is emitted once a new run holds a session. Its message
// becomes the root of the run's chat thread.
type RunAcceptedEvent struct {
	baseEvent
	Run
	Mode    string
	Idea    string
	Variant string // "idea" or "spec"
}

// NewRunAcceptedEvent creates a RunAcceptedEvent.
func NewRunAcceptedEvent(run Run, mode, idea, variant string) RunAcceptedEvent {
	return RunAcceptedEvent{
		baseEvent: newBaseEvent(TypeRunAccepted),
		Run:       run,
		Mode:      mode,
		Idea:      idea,
		Variant:   variant,
	}
}

// ProgressEvent carries a human-readable progress line for a run's thread.
type ProgressEvent struct {
	baseEvent
	Run
	Phase   string
	Message string
	// Details are shown as labelled fields when non-empty.
	Details map[string]string
}

// NewProgressEvent creates a ProgressEvent.
func NewProgressEvent(run Run, phase, message string) ProgressEvent {
	return ProgressEvent{
		baseEvent: newBaseEvent(TypeRunProgress),
		Run:       run,
		Phase:     phase,
		Message:   message,
	}
}

// WithDetails returns a copy of e carrying details.
func (e ProgressEvent) WithDetails(details map[string]string) ProgressEvent {
	e.Details = details
	return e
}

// RunCompletedEvent is emitted exactly once per accepted run.
type RunCompletedEvent struct {
	baseEvent
	Run
	Success     bool
	Cancelled   bool
	DeployURL   string
	ProjectPath string
	DisplayName string
	Err         error
	Duration    time.Duration
}

// NewRunCompletedEvent creates a RunCompletedEvent.
func NewRunCompletedEvent(run Run) RunCompletedEvent {
	return RunCompletedEvent{
		baseEvent: newBaseEvent(TypeRunCompleted),
		Run:       run,
	}
}

// Outcome returns "success", "cancelled" or "error".
func (e RunCompletedEvent) Outcome() string {
	switch {
	case e.Cancelled:
		return "cancelled"
	case e.Success:
		return "success"
	default:
		return "error"
	}
}

// -----------------------------------------------------------------------------
// Phase Events
// -----------------------------------------------------------------------------

// PhaseFinishedEvent is emitted when a pipeline phase ends, successfully or
// not. Metrics subscribe to it.
type PhaseFinishedEvent struct {
	baseEvent
	Run
	Phase    string
	Outcome  string // "success", "error" or "cancelled"
	Duration time.Duration
}

// NewPhaseFinishedEvent creates a PhaseFinishedEvent.
func NewPhaseFinishedEvent(run Run, phase, outcome string, d time.Duration) PhaseFinishedEvent {
	return PhaseFinishedEvent{
		baseEvent: newBaseEvent(TypePhaseFinished),
		Run:       run,
		Phase:     phase,
		Outcome:   outcome,
		Duration:  d,
	}
}
