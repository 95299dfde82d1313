package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Iron-Ham/tinytree/internal/errors"
	"github.com/Iron-Ham/tinytree/internal/event"
	"github.com/Iron-Ham/tinytree/internal/logging"
	"github.com/Iron-Ham/tinytree/internal/prompt"
	"github.com/Iron-Ham/tinytree/internal/runner"
	"github.com/Iron-Ham/tinytree/internal/session"
	"github.com/Iron-Ham/tinytree/internal/specdoc"
)

// Progress messages published before each phase.
const (
	msgPlan         = "📋 Designing the implementation plan..."
	msgSpecAnalysis = "📋 Analyzing the specification..."
	msgImplement    = "🔨 Implementing the MVP..."
	msgBuild        = "📦 Building for Flutter Web..."
	msgDeploy       = "🚀 Deploying to Firebase..."
	msgSpecStart    = "📄 Starting an MVP from the specification: %q"
	msgDeployed     = "✅ Deployed!\n🔗 %s"
)

// Orchestrator runs requests through the phase sequence and cancels them on
// demand. It is safe for concurrent use; each request runs on its caller's
// goroutine.
type Orchestrator struct {
	cfg     Config
	logger  *logging.Logger
	prompts *prompt.Builder
	grace   time.Duration
	now     func() time.Time

	mu   sync.Mutex
	runs map[string]activeRun // userID -> run
}

type activeRun struct {
	requestID string
	cancel    context.CancelFunc
}

// phase is one step of a run. next is the status the session moves to when
// the step succeeds.
type phase struct {
	name    string
	message string
	next    session.Status
	run     func(ctx context.Context, onStart func(*runner.Process)) error
}

// New creates an Orchestrator.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	switch {
	case cfg.Sessions == nil:
		return nil, errors.New("pipeline: Sessions is required")
	case cfg.Bus == nil:
		return nil, errors.New("pipeline: Bus is required")
	case cfg.Generator == nil:
		return nil, errors.New("pipeline: Generator is required")
	case cfg.Builder == nil:
		return nil, errors.New("pipeline: Builder is required")
	case cfg.Deployer == nil:
		return nil, errors.New("pipeline: Deployer is required")
	case cfg.ProjectRoot == "":
		return nil, errors.New("pipeline: ProjectRoot is required")
	}
	if cfg.AppsDir == "" {
		cfg.AppsDir = DefaultAppsDir
	}

	o := &Orchestrator{
		cfg:     cfg,
		logger:  logging.NopLogger(),
		prompts: prompt.NewBuilder(),
		grace:   runner.DefaultCancelGrace,
		now:     time.Now,
		runs:    make(map[string]activeRun),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Execute runs req to completion. The user's session for req.RequestID must
// already exist. On failure the error is a *errors.PhaseError naming the
// failed phase; a cancelled run's error also matches errors.ErrCanceled.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if sess, ok := o.cfg.Sessions.FindByUserID(req.UserID); !ok || sess.RequestID != req.RequestID {
		return nil, errors.Wrapf(errors.ErrSessionNotFound, "request %s", req.RequestID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.register(req.UserID, req.RequestID, cancel)
	defer o.unregister(req.UserID, req.RequestID)

	started := o.now()
	logger := o.logger.WithRequest(req.RequestID).WithUser(req.UserID)
	o.cfg.Sessions.Advance(req.UserID, req.RequestID, session.StatusPlanning)

	variant := req.Variant()
	title := req.Idea
	if variant == VariantSpec {
		title = specdoc.Title(req.Document)
		o.progress(req, "", fmt.Sprintf(msgSpecStart, title))
	}
	name := ProjectName(title, started)
	res := &Result{
		ProjectName: name,
		ProjectPath: filepath.Join(o.cfg.ProjectRoot, o.cfg.AppsDir, name),
		Title:       title,
	}

	logger.Info("run started",
		"mode", req.Mode.String(),
		"variant", string(variant),
		"project", res.ProjectPath,
	)

	for _, ph := range o.phases(req, res) {
		if err := o.runPhase(runCtx, req, ph, logger); err != nil {
			if runCtx.Err() != nil && !errors.Is(err, errors.ErrCanceled) {
				err = fmt.Errorf("%w: %w", errors.ErrCanceled, err)
			}
			return nil, o.fail(req, ph.name, err, logger)
		}
	}

	duration := o.now().Sub(started)
	o.cfg.Bus.Publish(event.NewProgressEvent(req.run(), PhaseDeploy, fmt.Sprintf(msgDeployed, res.DeployURL)).
		WithDetails(map[string]string{
			"Project":  res.ProjectName,
			"Duration": duration.Truncate(time.Second).String(),
		}))
	logger.Info("run finished", "url", res.DeployURL, "duration_ms", duration.Milliseconds())
	return res, nil
}

// phases returns the phase sequence for req. Every phase writes into res.
func (o *Orchestrator) phases(req Request, res *Result) []phase {
	pctx := &prompt.Context{
		Mode:        req.Mode,
		Idea:        req.Idea,
		Document:    req.Document,
		ProjectPath: res.ProjectPath,
	}
	generate := func(p prompt.Phase) func(context.Context, func(*runner.Process)) error {
		return func(ctx context.Context, onStart func(*runner.Process)) error {
			c := *pctx
			c.Phase = p
			text, err := o.prompts.Build(&c)
			if err != nil {
				return err
			}
			_, err = o.cfg.Generator.Generate(ctx, text, onStart)
			return err
		}
	}

	var steps []phase
	if req.Variant() == VariantSpec {
		steps = append(steps,
			phase{PhaseSpecAnalysis, msgSpecAnalysis, session.StatusImplementing, generate(prompt.PhaseSpecAnalysis)},
			phase{PhaseImplement, msgImplement, session.StatusBuilding, generate(prompt.PhaseImplementFromSpec)},
		)
	} else {
		steps = append(steps,
			phase{PhasePlan, msgPlan, session.StatusImplementing, generate(prompt.PhaseDesign)},
			phase{PhaseImplement, msgImplement, session.StatusBuilding, generate(prompt.PhaseImplement)},
		)
	}
	return append(steps,
		phase{PhaseBuild, msgBuild, session.StatusDeploying, func(ctx context.Context, onStart func(*runner.Process)) error {
			return o.cfg.Builder.Build(ctx, res.ProjectPath, onStart)
		}},
		phase{PhaseDeploy, msgDeploy, session.StatusDone, func(ctx context.Context, onStart func(*runner.Process)) error {
			url, err := o.cfg.Deployer.Deploy(ctx, res.ProjectPath, res.ProjectName, onStart)
			res.DeployURL = url
			return err
		}},
	)
}

func (o *Orchestrator) runPhase(ctx context.Context, req Request, ph phase, logger *logging.Logger) error {
	if ctx.Err() != nil {
		return errors.Wrapf(errors.ErrCanceled, "%s not started", ph.name)
	}
	logger = logger.WithPhase(ph.name)

	o.progress(req, ph.name, ph.message)
	o.cfg.Sessions.UpdateRequest(req.UserID, req.RequestID, func(s *session.Session) {
		s.Phase = ph.name
	})

	onStart := func(p *runner.Process) {
		o.cfg.Sessions.UpdateRequest(req.UserID, req.RequestID, func(s *session.Session) {
			s.Process = p
		})
	}

	started := o.now()
	logger.Info("phase started")
	err := ph.run(ctx, onStart)
	duration := o.now().Sub(started)

	o.cfg.Sessions.UpdateRequest(req.UserID, req.RequestID, func(s *session.Session) {
		s.Process = nil
	})

	outcome := "success"
	switch {
	case err != nil && (ctx.Err() != nil || errors.Is(err, errors.ErrCanceled)):
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	}
	o.cfg.Bus.Publish(event.NewPhaseFinishedEvent(req.run(), ph.name, outcome, duration))
	if err != nil {
		return err
	}

	// A cancel that lands after the child exited cleanly still wins.
	if !o.cfg.Sessions.Advance(req.UserID, req.RequestID, ph.next) {
		return errors.Wrapf(errors.ErrCanceled, "%s finished after cancellation", ph.name)
	}
	logger.Info("phase finished", "duration_ms", duration.Milliseconds())
	return nil
}

func (o *Orchestrator) fail(req Request, phaseName string, err error, logger *logging.Logger) error {
	perr := errors.NewPhaseError(phaseName, err).WithRequestID(req.RequestID)
	if errors.Is(err, errors.ErrCanceled) {
		// Cancel already recorded the status. A parent context cancelled
		// without Cancel (shutdown) still needs it.
		o.cfg.Sessions.Advance(req.UserID, req.RequestID, session.StatusCancelled)
		logger.Info("run cancelled", "phase", phaseName)
		return perr
	}
	o.cfg.Sessions.Advance(req.UserID, req.RequestID, session.StatusError)
	logger.Failure("run failed", err, "phase", phaseName)
	return perr
}

// Cancel cancels the user's running request. It returns true when the user
// held a non-terminal session.
func (o *Orchestrator) Cancel(userID string) bool {
	sess, ok := o.cfg.Sessions.FindByUserID(userID)
	if !ok || sess.Status.IsTerminal() {
		return false
	}
	if !o.cfg.Sessions.Advance(userID, sess.RequestID, session.StatusCancelled) {
		return false
	}

	logger := o.logger.WithRequest(sess.RequestID).WithUser(userID)
	if proc, ok := o.cfg.Sessions.Process(userID); ok {
		logger.Info("terminating child process", "pid", proc.Pid(), "grace", o.grace.String())
		proc.Terminate(o.grace)
	}

	o.mu.Lock()
	if r, ok := o.runs[userID]; ok && r.requestID == sess.RequestID {
		r.cancel()
	}
	o.mu.Unlock()

	logger.Info("run cancel requested", "status_before", sess.Status.String())
	return true
}

func (o *Orchestrator) progress(req Request, phaseName, message string) {
	o.cfg.Bus.Publish(event.NewProgressEvent(req.run(), phaseName, message))
}

func (o *Orchestrator) register(userID, requestID string, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs[userID] = activeRun{requestID: requestID, cancel: cancel}
}

func (o *Orchestrator) unregister(userID, requestID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r, ok := o.runs[userID]; ok && r.requestID == requestID {
		delete(o.runs, userID)
	}
}
