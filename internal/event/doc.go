// Package event provides a pub-sub event bus that decouples the pipeline
// from everything that reacts to it.
//
// The orchestrator and the command dispatcher publish run events; chat
// delivery and metrics subscribe. Neither side knows about the other.
//
// # Main Types
//
//   - [Event]: interface implemented by all events (EventType, Timestamp)
//   - [Bus]: synchronous, panic-safe dispatcher
//   - [Handler]: func(Event)
//
// # Event Categories
//
// Run lifecycle:
//   - [RunAcceptedEvent] ("run.accepted"): a run now holds a session
//   - [ProgressEvent] ("run.progress"): a human-readable progress line
//   - [RunCompletedEvent] ("run.completed"): success, failure or cancellation
//
// Phases:
//   - [PhaseFinishedEvent] ("phase.finished"): duration and outcome of one phase
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. Handlers run synchronously on the
// publishing goroutine, in registration order, specific subscribers before
// wildcard ones.
//
// # Basic Usage
//
//	bus := event.NewBus(event.WithLogger(logger))
//
//	bus.Subscribe(event.TypeRunProgress, func(e event.Event) {
//	    p := e.(event.ProgressEvent)
//	    fmt.Println(p.RequestID, p.Message)
//	})
//
//	bus.Publish(event.NewProgressEvent(run, "build", "Building the web bundle"))
package event
