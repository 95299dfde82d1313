package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/tinytree/internal/command"
	"github.com/Iron-Ham/tinytree/internal/config"
	"github.com/Iron-Ham/tinytree/internal/errors"
	"github.com/Iron-Ham/tinytree/internal/event"
	"github.com/Iron-Ham/tinytree/internal/notify"
	"github.com/Iron-Ham/tinytree/internal/session"
)

// Identity of runs started from the terminal.
const (
	consoleUser    = "local"
	consoleChannel = "console"
)

var runSpecFile string

var runCmd = &cobra.Command{
	Use:   "run [light|full] <idea...>",
	Short: "Generate, build and deploy one app from the terminal",
	Long: `Generate, build and deploy one app without Slack. Progress is
printed to the terminal instead of a chat thread.

Examples:
  tinytree run light a habit tracker with streaks
  tinytree run full a recipe box with shopping lists
  tinytree run --spec docs/recipe-box.md full

With --spec the document replaces the idea and the optional argument selects
the mode (default: light). Ctrl-C cancels the run.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runSpecFile, "spec", "s", "", "markdown specification document to build from")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	var doc string
	var mode session.Mode
	if runSpecFile != "" {
		if len(args) > 1 {
			return fmt.Errorf("with --spec, at most one argument (the mode) is accepted")
		}
		if len(args) == 1 {
			m, err := session.ParseMode(args[0])
			if err != nil {
				return err
			}
			mode = m
		}
		data, err := os.ReadFile(runSpecFile)
		if err != nil {
			return errors.Wrapf(err, "read spec %s", runSpecFile)
		}
		doc = string(data)
	} else if len(args) < 2 {
		return fmt.Errorf("usage: %s", cmd.Use)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if errs := cfg.ValidateForRun(); len(errs) > 0 {
		return config.ValidationErrors(errs)
	}

	// The terminal is for progress; records go to the log files only.
	logCfg := cfg.Logging
	logCfg.Console = logCfg.Dir == ""
	logger, err := newLogger(logCfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, notify.NewConsolePoster(cmd.OutOrStdout()), logger)
	if err != nil {
		return err
	}
	outcome := watchOutcome(a.bus)

	if runSpecFile != "" {
		_, err = a.dispatcher.HandleSpecDocument(ctx, consoleUser, consoleChannel, mode, doc)
	} else {
		err = a.dispatcher.Handle(ctx, command.Context{
			UserID:    consoleUser,
			ChannelID: consoleChannel,
			Text:      "new " + strings.Join(args, " "),
		})
	}

	// Let the final messages reach the terminal even after Ctrl-C.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.CancelGrace()+notifyDrainTimeout)
	defer cancel()
	if closeErr := a.close(drainCtx); closeErr != nil {
		logger.Warn("pending notifications dropped", "error", closeErr.Error())
	}
	if err != nil {
		return err
	}
	return outcome.err()
}

// notifyDrainTimeout bounds how long run waits for queued messages.
const notifyDrainTimeout = 10 * time.Second

// runOutcome records how the terminal's run ended.
type runOutcome struct {
	mu        sync.Mutex
	accepted  bool
	completed *event.RunCompletedEvent
}

func watchOutcome(bus *event.Bus) *runOutcome {
	o := &runOutcome{}
	bus.Subscribe(event.TypeRunAccepted, func(e event.Event) {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.accepted = true
	})
	bus.Subscribe(event.TypeRunCompleted, func(e event.Event) {
		ev := e.(event.RunCompletedEvent)
		o.mu.Lock()
		defer o.mu.Unlock()
		o.completed = &ev
	})
	return o
}

// err maps the run's outcome to the command's exit status.
func (o *runOutcome) err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case !o.accepted:
		return fmt.Errorf("no run was started")
	case o.completed == nil:
		return fmt.Errorf("run did not complete")
	case o.completed.Outcome() == "success":
		return nil
	case o.completed.Outcome() == "cancelled":
		return errors.Wrap(errors.ErrCanceled, "run")
	case o.completed.Err != nil:
		return o.completed.Err
	default:
		return fmt.Errorf("run failed")
	}
}
