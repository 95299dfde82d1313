package slackbridge

import (
	"context"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/Iron-Ham/tinytree/internal/logging"
)

// SocketListener receives slash commands over Socket Mode and routes them to
// a CommandHandler. The slack.Client must carry an app-level token
// (slack.OptionAppLevelToken).
type SocketListener struct {
	client  *socketmode.Client
	handler CommandHandler
	logger  *logging.Logger

	wg sync.WaitGroup
}

// SocketOption configures a SocketListener.
type SocketOption func(*SocketListener)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) SocketOption {
	return func(l *SocketListener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewSocketListener creates a SocketListener.
func NewSocketListener(api *slack.Client, handler CommandHandler, opts ...SocketOption) *SocketListener {
	l := &SocketListener{
		client:  socketmode.New(api),
		handler: handler,
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run connects and handles events until ctx is cancelled. Commands already
// being handled finish before Run returns.
func (l *SocketListener) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- l.client.RunContext(runCtx)
	}()

	defer l.wg.Wait()
	for {
		select {
		case <-runCtx.Done():
			return <-errCh
		case err := <-errCh:
			return err
		case evt, ok := <-l.client.Events:
			if !ok {
				return <-errCh
			}
			l.handleEvent(runCtx, evt, l.client.Ack)
		}
	}
}

func (l *SocketListener) handleEvent(ctx context.Context, evt socketmode.Event, ack func(socketmode.Request, ...interface{})) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		l.logger.Debug("connecting to slack socket mode")
	case socketmode.EventTypeConnected:
		l.logger.Info("connected to slack socket mode")
	case socketmode.EventTypeConnectionError:
		l.logger.Warn("slack socket mode connection error", "data", evt.Data)
	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			l.logger.Warn("unexpected slash command payload")
			return
		}
		if evt.Request != nil {
			ack(*evt.Request)
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			if err := Route(ctx, l.handler, cmd); err != nil {
				l.logger.WithUser(cmd.UserID).Error("slash command failed",
					"command", cmd.Command, "error", err.Error())
			}
		}()
	default:
		if evt.Request != nil {
			ack(*evt.Request)
		}
	}
}
