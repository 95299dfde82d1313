package command

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/tinytree/internal/errors"
	"github.com/Iron-Ham/tinytree/internal/event"
	"github.com/Iron-Ham/tinytree/internal/logging"
	"github.com/Iron-Ham/tinytree/internal/pipeline"
	"github.com/Iron-Ham/tinytree/internal/session"
	"github.com/Iron-Ham/tinytree/internal/specdoc"
)

// Pipeline runs and cancels requests.
type Pipeline interface {
	Execute(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Cancel(userID string) bool
}

// Replier posts a top-level reply to a channel. notify.Messenger satisfies
// it.
type Replier interface {
	PostToChannel(ctx context.Context, channel, text, requestID string) (string, error)
}

// Context is one incoming command.
type Context struct {
	UserID    string
	ChannelID string
	Text      string
}

// Config holds the Dispatcher's dependencies.
type Config struct {
	Sessions *session.Store
	Pipeline Pipeline
	Bus      *event.Bus
	Replies  Replier
}

// Dispatcher runs parsed commands. New runs execute on their own goroutine;
// Wait blocks until they have all finished.
type Dispatcher struct {
	cfg     Config
	logger  *logging.Logger
	now     func() time.Time
	baseCtx context.Context
	// deferRemoval leaves finished sessions in place until Settle.
	deferRemoval bool

	wg sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock sets the time source for request ids and elapsed times.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithBaseContext sets the parent context of every run. Cancelling it
// cancels all runs, e.g. on shutdown.
func WithBaseContext(ctx context.Context) Option {
	return func(d *Dispatcher) {
		if ctx != nil {
			d.baseCtx = ctx
		}
	}
}

// WithDeferredRemoval keeps a finished run's session until Settle is called
// for it, e.g. once its final message has been delivered.
func WithDeferredRemoval() Option {
	return func(d *Dispatcher) {
		d.deferRemoval = true
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg Config, opts ...Option) (*Dispatcher, error) {
	switch {
	case cfg.Sessions == nil:
		return nil, errors.New("command: Sessions is required")
	case cfg.Pipeline == nil:
		return nil, errors.New("command: Pipeline is required")
	case cfg.Bus == nil:
		return nil, errors.New("command: Bus is required")
	case cfg.Replies == nil:
		return nil, errors.New("command: Replies is required")
	}
	d := &Dispatcher{
		cfg:     cfg,
		logger:  logging.NopLogger(),
		now:     time.Now,
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Handle parses c.Text and runs the command. The returned error is a reply
// delivery failure; command outcomes are reported to the channel.
func (d *Dispatcher) Handle(ctx context.Context, c Context) error {
	cmd := Parse(c.Text)
	d.logger.WithUser(c.UserID).Debug("command received", "kind", string(cmd.Kind), "channel", c.ChannelID)

	switch cmd.Kind {
	case KindNew:
		_, err := d.start(ctx, c.UserID, c.ChannelID, cmd.Mode, cmd.Idea, "")
		return ignoreBusy(err)
	case KindCancel:
		return d.cancel(ctx, c)
	case KindStatus:
		return d.status(ctx, c)
	case KindRename:
		return d.rename(ctx, c, cmd.Name)
	default:
		text := ReplyUsage
		if missingMode(cmd.Raw) {
			text = ReplyModeHint
		}
		return d.reply(ctx, c.ChannelID, text)
	}
}

// HandleLegacy handles the deprecated `/mvp <idea>` command: it posts a
// deprecation notice and starts a light run.
func (d *Dispatcher) HandleLegacy(ctx context.Context, c Context) error {
	if err := d.reply(ctx, c.ChannelID, ReplyLegacyNotice); err != nil {
		d.logger.Warn("legacy notice not delivered", "error", err.Error())
	}
	idea := strings.TrimSpace(c.Text)
	if idea == "" {
		idea = legacyDefaultIdea
	}
	_, err := d.start(ctx, c.UserID, c.ChannelID, session.ModeLight, idea, "")
	return ignoreBusy(err)
}

// HandleSpecDocument starts a run from a specification document and returns
// its request id. A busy user gets a *errors.BusyError.
func (d *Dispatcher) HandleSpecDocument(ctx context.Context, userID, channelID string, mode session.Mode, doc string) (string, error) {
	if strings.TrimSpace(doc) == "" {
		return "", errors.Wrap(errors.ErrInvalidInput, "document is empty")
	}
	if mode == "" {
		mode = session.ModeLight
	}
	return d.start(ctx, userID, channelID, mode, specdoc.Title(doc), doc)
}

// Wait blocks until every run started by this Dispatcher has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) start(ctx context.Context, userID, channelID string, mode session.Mode, idea, doc string) (string, error) {
	if d.cfg.Sessions.IsUserBusy(userID) {
		return "", d.busy(ctx, userID, channelID)
	}

	requestID := pipeline.NewRequestID(userID, d.now())
	if _, err := d.cfg.Sessions.Create(requestID, userID, channelID, mode, idea); err != nil {
		if errors.Is(err, errors.ErrUserBusy) {
			return "", d.busy(ctx, userID, channelID)
		}
		return "", err
	}

	req := pipeline.Request{
		RequestID: requestID,
		UserID:    userID,
		ChannelID: channelID,
		Mode:      mode,
		Idea:      idea,
		Document:  doc,
	}
	d.cfg.Bus.Publish(event.NewRunAcceptedEvent(runOf(req), mode.String(), idea, string(req.Variant())))
	d.logger.WithRequest(requestID).WithUser(userID).Info("run accepted",
		"mode", mode.String(), "variant", string(req.Variant()))

	d.wg.Add(1)
	go d.run(req)
	return requestID, nil
}

func (d *Dispatcher) run(req pipeline.Request) {
	defer d.wg.Done()
	logger := d.logger.WithRequest(req.RequestID).WithUser(req.UserID)
	started := d.now()

	res, err := d.cfg.Pipeline.Execute(d.baseCtx, req)

	ev := event.NewRunCompletedEvent(runOf(req))
	ev.Duration = d.now().Sub(started)
	ev.DisplayName = req.Idea
	if sess, ok := d.cfg.Sessions.FindByUserID(req.UserID); ok && sess.RequestID == req.RequestID {
		ev.DisplayName = sess.Name()
	}
	switch {
	case err == nil:
		ev.Success = true
		ev.DeployURL = res.DeployURL
		ev.ProjectPath = res.ProjectPath
	case errors.Is(err, errors.ErrCanceled):
		ev.Cancelled = true
	default:
		ev.Err = err
		logger.Error("run failed", "error", err.Error())
	}
	d.cfg.Bus.Publish(ev)

	if !d.deferRemoval {
		d.cfg.Sessions.DeleteRequest(req.UserID, req.RequestID)
	}
	logger.Info("run ended", "outcome", ev.Outcome(), "duration_ms", ev.Duration.Milliseconds())
}

// Settle removes the session of a finished run. A newer session the user
// started in the meantime is kept.
func (d *Dispatcher) Settle(ev event.RunCompletedEvent) {
	d.cfg.Sessions.DeleteRequest(ev.UserID, ev.RequestID)
}

func (d *Dispatcher) busy(ctx context.Context, userID, channelID string) error {
	status := ""
	if sess, ok := d.cfg.Sessions.FindByUserID(userID); ok {
		status = sess.Status.String()
	}
	if err := d.reply(ctx, channelID, ReplyBusy); err != nil {
		return err
	}
	return errors.NewBusyError(userID, status)
}

func (d *Dispatcher) cancel(ctx context.Context, c Context) error {
	if d.cfg.Pipeline.Cancel(c.UserID) {
		d.logger.WithUser(c.UserID).Info("run cancelled by user")
		return d.reply(ctx, c.ChannelID, ReplyCancelled)
	}
	return d.reply(ctx, c.ChannelID, ReplyNothingToCancel)
}

func (d *Dispatcher) status(ctx context.Context, c Context) error {
	sess, ok := d.cfg.Sessions.FindByUserID(c.UserID)
	if !ok {
		return d.reply(ctx, c.ChannelID, ReplyNoJob)
	}
	return d.reply(ctx, c.ChannelID, StatusText(sess, d.now()))
}

func (d *Dispatcher) rename(ctx context.Context, c Context, name string) error {
	if sess, ok := d.cfg.Sessions.FindByUserID(c.UserID); !ok || sess.Status.IsTerminal() {
		return d.reply(ctx, c.ChannelID, ReplyNothingToRename)
	}
	d.cfg.Sessions.Rename(c.UserID, name)
	return d.reply(ctx, c.ChannelID, RenamedText(name))
}

func (d *Dispatcher) reply(ctx context.Context, channelID, text string) error {
	_, err := d.cfg.Replies.PostToChannel(ctx, channelID, text, "")
	return err
}

func runOf(req pipeline.Request) event.Run {
	return event.Run{RequestID: req.RequestID, UserID: req.UserID, ChannelID: req.ChannelID}
}

func ignoreBusy(err error) error {
	if errors.Is(err, errors.ErrUserBusy) {
		return nil
	}
	return err
}
