// Package server is tinytree's HTTP surface: Slack slash commands, spec
// document uploads, health and metrics.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/Iron-Ham/tinytree/internal/errors"
	"github.com/Iron-Ham/tinytree/internal/logging"
	"github.com/Iron-Ham/tinytree/internal/session"
	"github.com/Iron-Ham/tinytree/internal/slackbridge"
)

// Defaults for the spec upload endpoint.
const (
	DefaultSpecRate        = rate.Limit(6.0 / 60.0) // six per minute
	DefaultSpecBurst       = 2
	DefaultShutdownTimeout = 30 * time.Second
	MaxSpecBytes           = 1 << 20
)

// SpecHandler starts a run from a specification document.
// command.Dispatcher satisfies it.
type SpecHandler interface {
	HandleSpecDocument(ctx context.Context, userID, channelID string, mode session.Mode, doc string) (string, error)
}

// ActiveCounter reports the number of non-terminal sessions.
type ActiveCounter interface {
	ActiveCount() int
}

// Config holds the server's dependencies. Routes whose dependency is unset
// are not mounted.
type Config struct {
	Addr string

	// Commands and SigningSecret enable POST /slack/commands.
	Commands      slackbridge.CommandHandler
	SigningSecret string

	// Specs and APIToken enable POST /api/specs.
	Specs     SpecHandler
	APIToken  string
	SpecRate  rate.Limit
	SpecBurst int

	// Metrics is served on GET /metrics.
	Metrics  http.Handler
	Sessions ActiveCounter

	ShutdownTimeout time.Duration
}

// Server serves the HTTP routes.
type Server struct {
	cfg      Config
	logger   *logging.Logger
	router   chi.Router
	limiters *ipLimiter

	// baseCtx is the parent of asynchronously dispatched slash commands.
	baseCtx context.Context
	wg      sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBaseContext sets the parent context of dispatched slash commands.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) {
		if ctx != nil {
			s.baseCtx = ctx
		}
	}
}

// New creates a Server.
func New(cfg Config, opts ...Option) (*Server, error) {
	if cfg.Commands != nil && cfg.SigningSecret == "" {
		return nil, errors.NewConfigError("slack.signing_secret", "slash commands over HTTP need a signing secret")
	}
	if cfg.SpecRate <= 0 {
		cfg.SpecRate = DefaultSpecRate
	}
	if cfg.SpecBurst <= 0 {
		cfg.SpecBurst = DefaultSpecBurst
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	s := &Server{
		cfg:     cfg,
		logger:  logging.NopLogger(),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limiters = newIPLimiter(cfg.SpecRate, cfg.SpecBurst)
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(recovery(s.logger))

	r.Get("/health", s.health)
	if s.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.Metrics)
	}

	if s.cfg.Commands != nil {
		r.With(slackbridge.Middleware(s.cfg.SigningSecret)).Post("/slack/commands", s.slashCommand)
	}

	if s.cfg.Specs != nil && s.cfg.APIToken != "" {
		r.Route("/api", func(r chi.Router) {
			r.Use(bearerAuth(s.cfg.APIToken))
			r.With(s.rateLimit).Post("/specs", s.uploadSpec)
		})
	}
	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// and waits for dispatched slash commands.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.cfg.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	err := srv.Shutdown(shutdownCtx)
	s.wg.Wait()
	return err
}

// Wait blocks until dispatched slash commands have been handled.
func (s *Server) Wait() {
	s.wg.Wait()
}
