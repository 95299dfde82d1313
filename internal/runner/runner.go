// Package runner launches external command-line tools (the AI code
// generator, the Flutter SDK, the Firebase CLI) with bounded output capture,
// a wall-clock timeout and graceful cancellation.
//
// Every invocation is self-contained: its own capture buffers, its own
// process group and an explicit environment. Nothing is inherited from the
// server's environment unless the caller lists it in Invocation.Env.
package runner

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Iron-Ham/tinytree/internal/capture"
	"github.com/Iron-Ham/tinytree/internal/errors"
	"github.com/Iron-Ham/tinytree/internal/logging"
)

// DefaultCancelGrace is how long a cancelled process has between SIGTERM
// and SIGKILL.
const DefaultCancelGrace = 5 * time.Second

// defaultWaitDelay bounds how long Run waits for output pipes to drain after
// the process has exited. A grandchild holding the pipes open cannot stall
// a run forever.
const defaultWaitDelay = 2 * time.Second

// Invocation describes one external tool call.
type Invocation struct {
	// Name identifies the tool in errors and logs ("claude", "flutter", "firebase").
	Name string
	// Command is the executable path. Empty is a configuration error.
	Command string
	Args    []string
	// Input, if non-empty, is written to stdin, which is then closed.
	Input string
	Dir   string
	// Env is the complete environment of the child. Nil means an empty
	// environment.
	Env []string
	// Timeout is the wall-clock budget. Zero means no timeout.
	Timeout time.Duration
	// MaxLines is the capacity of each capture window.
	MaxLines int
	// SummaryLines is how many lines an error summary carries.
	SummaryLines int
	// Setting names the config key for Command, used in configuration errors.
	Setting string
	// OnStart is called with the process handle right after launch.
	OnStart func(*Process)
}

// Runner executes Invocations. The zero value is not usable; use New.
type Runner struct {
	logger    *logging.Logger
	grace     time.Duration
	waitDelay time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used for per-line debug output.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithCancelGrace sets the SIGTERM → SIGKILL grace window used when the
// invocation context is cancelled.
func WithCancelGrace(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.grace = d
		}
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		logger:    logging.NopLogger(),
		grace:     DefaultCancelGrace,
		waitDelay: defaultWaitDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CancelGrace returns the grace window between SIGTERM and SIGKILL.
func (r *Runner) CancelGrace() time.Duration {
	return r.grace
}

// Run launches inv and waits for it to finish.
//
// On exit code 0 it returns the retained stdout window. Otherwise it returns
// one of:
//   - *errors.ConfigError when inv.Command is empty (nothing is launched)
//   - *errors.LaunchError when the process could not be started
//   - *errors.TimeoutError when inv.Timeout elapsed (the process group is killed)
//   - *errors.ExitError when the process exited nonzero
//   - an error matching errors.ErrCanceled when ctx was cancelled (the
//     process group gets SIGTERM, then SIGKILL after the grace window)
func (r *Runner) Run(ctx context.Context, inv Invocation) (string, error) {
	name := inv.Name
	if name == "" {
		name = inv.Command
	}
	if inv.Command == "" {
		setting := inv.Setting
		if setting == "" {
			setting = name
		}
		return "", errors.NewConfigError(setting, fmt.Sprintf("%s command path is not set", name))
	}
	if err := ctx.Err(); err != nil {
		return "", errors.Wrapf(errors.ErrCanceled, "%s not started", name)
	}

	log := r.logger.With("tool", name)
	sc := capture.NewStreamCapture(capture.Options{
		MaxLines:     inv.MaxLines,
		SummaryLines: inv.SummaryLines,
		OnStdoutLine: func(line string) { log.Debug("stdout", "line", line) },
		OnStderrLine: func(line string) { log.Warn("stderr", "line", line) },
	})

	cmd := exec.Command(inv.Command, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = append([]string{}, inv.Env...)
	cmd.Stdout = sc.StdoutWriter()
	cmd.Stderr = sc.StderrWriter()
	cmd.WaitDelay = r.waitDelay
	if inv.Input != "" {
		cmd.Stdin = strings.NewReader(inv.Input)
	}
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		log.Error("failed to launch", "command", inv.Command, "error", err.Error())
		return "", errors.NewLaunchError(name, inv.Command, err)
	}

	proc := newProcess(cmd.Process)
	log = log.With("pid", proc.Pid())
	log.Info("process started", "args", len(inv.Args), "timeout", inv.Timeout.String())
	if inv.OnStart != nil {
		inv.OnStart(proc)
	}

	waitCh := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		proc.markExited()
		waitCh <- err
	}()

	var timeout <-chan time.Time
	if inv.Timeout > 0 {
		timer := time.NewTimer(inv.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var waitErr error
	select {
	case waitErr = <-waitCh:
	case <-timeout:
		log.Warn("process timed out, killing", "timeout", inv.Timeout.String())
		proc.Kill()
		<-waitCh
		sc.Flush()
		return "", errors.NewTimeoutError(name, inv.Timeout).WithSummary(sc.ErrorSummary())
	case <-ctx.Done():
		log.Info("process cancelled, terminating", "grace", r.grace.String())
		proc.Terminate(r.grace)
		<-waitCh
		sc.Flush()
		return "", errors.Wrapf(errors.ErrCanceled, "%s interrupted", name)
	}

	sc.Flush()
	stats := sc.Stats()

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			// A cancel from another goroutine may have signalled the
			// process before ctx was observed as done.
			if proc.terminated() {
				return "", errors.Wrapf(errors.ErrCanceled, "%s interrupted", name)
			}
			log.Warn("process exited with error",
				"exit_code", exitErr.ExitCode(),
				"stdout_lines", stats.OutputLines,
				"stderr_lines", stats.ErrorLines,
			)
			return "", errors.NewExitError(name, exitErr.ExitCode(), sc.ErrorSummary())
		}
		return "", errors.Wrapf(waitErr, "%s: wait failed", name)
	}

	log.Info("process finished", "stdout_lines", stats.OutputLines, "stderr_lines", stats.ErrorLines)
	return sc.Output(), nil
}
