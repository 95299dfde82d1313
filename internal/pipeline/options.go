package pipeline

import (
	"time"

	"github.com/Iron-Ham/tinytree/internal/logging"
	"github.com/Iron-Ham/tinytree/internal/prompt"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCancelGrace sets the SIGTERM → SIGKILL window used by Cancel.
func WithCancelGrace(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.grace = d
		}
	}
}

// WithPromptBuilder replaces the default prompt builder.
func WithPromptBuilder(b *prompt.Builder) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.prompts = b
		}
	}
}

// WithClock sets the time source used for project names and durations.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}
