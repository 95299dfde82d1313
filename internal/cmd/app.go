package cmd

import (
	"context"
	"os"

	"golang.org/x/time/rate"

	"github.com/Iron-Ham/tinytree/internal/build"
	"github.com/Iron-Ham/tinytree/internal/command"
	"github.com/Iron-Ham/tinytree/internal/config"
	"github.com/Iron-Ham/tinytree/internal/deploy"
	"github.com/Iron-Ham/tinytree/internal/errors"
	"github.com/Iron-Ham/tinytree/internal/event"
	"github.com/Iron-Ham/tinytree/internal/generate"
	"github.com/Iron-Ham/tinytree/internal/logging"
	"github.com/Iron-Ham/tinytree/internal/metrics"
	"github.com/Iron-Ham/tinytree/internal/notify"
	"github.com/Iron-Ham/tinytree/internal/pipeline"
	"github.com/Iron-Ham/tinytree/internal/retry"
	"github.com/Iron-Ham/tinytree/internal/runner"
	"github.com/Iron-Ham/tinytree/internal/session"
	"github.com/Iron-Ham/tinytree/internal/thread"
)

// app is one wired pipeline: sessions, the event bus, the tool
// collaborators, chat delivery and the command dispatcher.
type app struct {
	logger     *logging.Logger
	sessions   *session.Store
	bus        *event.Bus
	threads    *thread.Store
	messenger  *notify.Messenger
	listener   *notify.Listener
	dispatcher *command.Dispatcher
	metrics    *metrics.Metrics
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	return logging.New(logging.Options{
		Dir:   cfg.Dir,
		Level: cfg.Level,
		Rotation: logging.RotationConfig{
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		},
		Console: cfg.Console,
	})
}

// childEnv returns the environment for generation and deployment, and the
// stricter one for builds.
func childEnv(cfg config.EnvConfig, environ []string) (base, build []string, err error) {
	base, err = runner.FilterEnv(environ, cfg.Allow, cfg.Deny)
	if err != nil {
		return nil, nil, errors.Wrap(err, "env filter")
	}
	build, err = runner.FilterEnv(base, []string{runner.MatchAll}, cfg.BuildDeny)
	if err != nil {
		return nil, nil, errors.Wrap(err, "build env filter")
	}
	return base, build, nil
}

// newApp wires the pipeline around poster. Runs are children of ctx. The
// listener is started; call close to drain it.
func newApp(ctx context.Context, cfg *config.Config, poster notify.Poster, logger *logging.Logger) (*app, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	baseEnv, buildEnv, err := childEnv(cfg.Env, os.Environ())
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore()
	bus := event.NewBus(event.WithLogger(logger))
	threads := thread.NewStore()
	m := metrics.New(sessions)

	tools := runner.New(
		runner.WithLogger(logger.With("component", "runner")),
		runner.WithCancelGrace(cfg.Timeouts.CancelGrace()),
	)

	orchestrator, err := pipeline.New(pipeline.Config{
		Sessions: sessions,
		Bus:      bus,
		Generator: generate.NewClaudeGenerator(tools, generate.Config{
			Command:       cfg.Tools.ClaudePath,
			Args:          cfg.Tools.ClaudeArgs,
			Dir:           cfg.Project.Root,
			Timeout:       cfg.Timeouts.GenerateTimeout(),
			MaxLines:      cfg.Capture.GenerateLines,
			Env:           baseEnv,
			PromptOnStdin: cfg.Tools.PromptOnStdin,
		}, logger.With("component", "generate")),
		Builder: build.NewFlutterBuilder(tools, build.Config{
			Command:  cfg.Tools.FlutterPath,
			Timeout:  cfg.Timeouts.BuildTimeout(),
			MaxLines: cfg.Capture.BuildLines,
			Env:      buildEnv,
		}, logger.With("component", "build")),
		Deployer: deploy.NewFirebaseDeployer(tools, deploy.Config{
			Command:   cfg.Tools.FirebasePath,
			ProjectID: cfg.Firebase.ProjectID,
			Timeout:   cfg.Timeouts.DeployTimeout(),
			MaxLines:  cfg.Capture.DeployLines,
			Env:       baseEnv,
		}, logger.With("component", "deploy")),
		ProjectRoot: cfg.Project.Root,
		AppsDir:     cfg.Project.AppsDir,
	},
		pipeline.WithLogger(logger.With("component", "pipeline")),
		pipeline.WithCancelGrace(cfg.Timeouts.CancelGrace()),
	)
	if err != nil {
		return nil, err
	}

	policy := retry.Policy{
		MaxAttempts: cfg.Notify.MaxAttempts,
		BaseDelay:   cfg.Notify.BaseDelay(),
		Name:        "chat.post",
	}
	messenger := notify.NewMessenger(poster, threads,
		notify.WithRetryPolicy(policy.WithLogger(logger)),
		notify.WithRateLimit(rate.Limit(cfg.Notify.RatePerSecond), cfg.Notify.Burst),
		notify.WithMessengerLogger(logger.With("component", "notify")),
		notify.WithObserver(m.RecordNotification),
	)
	var dispatcher *command.Dispatcher
	listener := notify.NewListener(bus, messenger,
		notify.WithListenerLogger(logger.With("component", "notify")),
		notify.WithQueueSize(cfg.Notify.QueueSize),
		notify.WithSettled(func(ev event.RunCompletedEvent) { dispatcher.Settle(ev) }),
	)

	dispatcher, err = command.NewDispatcher(command.Config{
		Sessions: sessions,
		Pipeline: orchestrator,
		Bus:      bus,
		Replies:  messenger,
	},
		command.WithLogger(logger.With("component", "command")),
		command.WithBaseContext(ctx),
		command.WithDeferredRemoval(),
	)
	if err != nil {
		return nil, err
	}

	m.Subscribe(bus)
	listener.Start()

	return &app{
		logger:     logger,
		sessions:   sessions,
		bus:        bus,
		threads:    threads,
		messenger:  messenger,
		listener:   listener,
		dispatcher: dispatcher,
		metrics:    m,
	}, nil
}

// close waits for runs to finish, then drains pending chat messages until
// ctx is done.
func (a *app) close(ctx context.Context) error {
	a.dispatcher.Wait()
	err := a.listener.Stop(ctx)
	a.metrics.Unsubscribe(a.bus)
	return err
}
