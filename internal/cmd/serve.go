package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/Iron-Ham/tinytree/internal/config"
	"github.com/Iron-Ham/tinytree/internal/errors"
	"github.com/Iron-Ham/tinytree/internal/logging"
	"github.com/Iron-Ham/tinytree/internal/server"
	"github.com/Iron-Ham/tinytree/internal/slackbridge"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Slack bot and HTTP server",
	Long: `Run the Slack bot and HTTP server.

Slash commands arrive over Socket Mode when slack.socket_mode is true (the
default) and as signed HTTP requests on POST /slack/commands otherwise.
The server also exposes GET /health, GET /metrics and, when
server.api_token is set, POST /api/specs.

SIGINT or SIGTERM cancels running pipelines, delivers their final messages
and exits.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if errs := cfg.ValidateForServe(); len(errs) > 0 {
		return config.ValidationErrors(errs)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := slack.New(cfg.Slack.BotToken, slack.OptionAppLevelToken(cfg.Slack.AppToken))
	a, err := newApp(ctx, cfg, slackbridge.NewPoster(api), logger)
	if err != nil {
		return err
	}
	watchConfig(logger)

	srvCfg := server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Server.Port),
		Specs:           a.dispatcher,
		APIToken:        cfg.Server.APIToken,
		SpecRate:        rate.Limit(float64(cfg.Server.SpecRatePerMinute) / 60),
		SpecBurst:       cfg.Server.SpecBurst,
		Metrics:         a.metrics.Handler(),
		Sessions:        a.sessions,
		ShutdownTimeout: cfg.Server.ShutdownTimeout(),
	}
	if !cfg.Slack.SocketMode {
		srvCfg.Commands = a.dispatcher
		srvCfg.SigningSecret = cfg.Slack.SigningSecret
	}
	srv, err := server.New(srvCfg, server.WithLogger(logger.With("component", "server")), server.WithBaseContext(ctx))
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	if cfg.Slack.SocketMode {
		socket := slackbridge.NewSocketListener(api, a.dispatcher,
			slackbridge.WithLogger(logger.With("component", "socketmode")))
		go func() { errCh <- socket.Run(ctx) }()
	}
	logger.Info("tinytree started",
		"port", cfg.Server.Port,
		"socket_mode", cfg.Slack.SocketMode,
		"project_root", cfg.Project.Root,
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		stop()
	}
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	logger.Info("shutting down", "active_sessions", a.sessions.ActiveCount())

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := a.close(drainCtx); err != nil {
		logger.Warn("pending notifications dropped", "error", err.Error())
	}
	srv.Wait()
	return runErr
}

// watchConfig reloads the log level when the config file changes. Other
// settings take effect on restart.
func watchConfig(logger *logging.Logger) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level := logging.ParseLevel(viper.GetString("logging.level"))
		if level == logger.Level() {
			return
		}
		logger.SetLevel(level)
		logger.Info("log level changed", "level", level, "file", e.Name)
	})
	viper.WatchConfig()
}
