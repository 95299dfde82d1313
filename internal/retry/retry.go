// Package retry provides a bounded retry policy for flaky external calls.
//
// The policy is stateless: it holds only the attempt bound and the base
// delay. Between attempts it waits BaseDelay multiplied by the number of the
// attempt that just failed, so the defaults (3 attempts, 1s) wait 1s and
// then 2s. Only chat notification delivery is retried in tinytree; pipeline
// phases never are.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Iron-Ham/tinytree/internal/logging"
)

// Defaults used when a Policy field is zero.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Policy bounds how many times an operation is attempted and how long to wait
// between attempts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Name labels log entries, e.g. "slack.post".
	Name   string
	Logger *logging.Logger

	// sleep waits for d or until ctx is done. Tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns a Policy with the default bound and delay.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

// WithLogger returns a copy of p that logs intermediate failures to logger.
func (p Policy) WithLogger(logger *logging.Logger) Policy {
	p.Logger = logger
	return p
}

// Delay returns how long to wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base < 0 {
		base = 0
	}
	return base * time.Duration(attempt)
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// Run calls op until it succeeds, returns a permanent error, or the attempt
// bound is reached. See Do.
func (p Policy) Run(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do calls op up to p.MaxAttempts times and returns the first success.
// After the final failure it returns that attempt's error. Errors wrapped by
// Permanent end the loop immediately. If ctx ends while waiting between
// attempts, Do returns the context error joined with the last failure.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := p.attempts()
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				return zero, err
			}
			return zero, errors.Join(err, lastErr)
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}

		lastErr = err
		if attempt == maxAttempts {
			break
		}

		delay := p.Delay(attempt)
		if p.Logger != nil {
			p.Logger.Warn("attempt failed, retrying",
				"operation", p.Name,
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"delay_ms", delay.Milliseconds(),
				"error", err.Error(),
			)
		}

		if err := sleep(ctx, delay); err != nil {
			return zero, errors.Join(err, lastErr)
		}
	}

	return zero, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.err)
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err as not worth retrying. Do returns the wrapped error
// as-is without further attempts. Permanent(nil) returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
