package pipeline

import (
	"context"
	"strings"

	"github.com/Iron-Ham/tinytree/internal/errors"
	"github.com/Iron-Ham/tinytree/internal/event"
	"github.com/Iron-Ham/tinytree/internal/runner"
	"github.com/Iron-Ham/tinytree/internal/session"
)

// Phase names, as they appear in logs, metrics and errors.
const (
	PhasePlan         = "plan"
	PhaseSpecAnalysis = "spec_analysis"
	PhaseImplement    = "implement"
	PhaseBuild        = "build"
	PhaseDeploy       = "deploy"
)

// Variant is the kind of input a run starts from.
type Variant string

const (
	// VariantIdea starts from a one-line idea.
	VariantIdea Variant = "idea"
	// VariantSpec starts from a specification document.
	VariantSpec Variant = "spec"
)

// Generator runs the AI code-generation tool with a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, onStart func(*runner.Process)) (string, error)
}

// Builder compiles a project into a web bundle.
type Builder interface {
	Build(ctx context.Context, projectPath string, onStart func(*runner.Process)) error
}

// Deployer publishes a built project and returns its public URL.
type Deployer interface {
	Deploy(ctx context.Context, projectPath, siteName string, onStart func(*runner.Process)) (string, error)
}

// Config holds the required dependencies of an Orchestrator.
type Config struct {
	Sessions  *session.Store
	Bus       *event.Bus
	Generator Generator
	Builder   Builder
	Deployer  Deployer
	// ProjectRoot is the working directory of the generator.
	ProjectRoot string
	// AppsDir is the directory under ProjectRoot that holds generated
	// projects. Defaults to "apps".
	AppsDir string
}

// DefaultAppsDir is used when Config.AppsDir is empty.
const DefaultAppsDir = "apps"

// Request is one run. A non-empty Document selects the specification
// variant; otherwise Idea is used.
type Request struct {
	RequestID string
	UserID    string
	ChannelID string
	Mode      session.Mode
	Idea      string
	Document  string
}

// Variant reports which phase sequence the request runs.
func (r Request) Variant() Variant {
	if strings.TrimSpace(r.Document) != "" {
		return VariantSpec
	}
	return VariantIdea
}

func (r Request) run() event.Run {
	return event.Run{RequestID: r.RequestID, UserID: r.UserID, ChannelID: r.ChannelID}
}

func (r Request) validate() error {
	switch {
	case r.RequestID == "":
		return errors.Wrap(errors.ErrInvalidInput, "request id is required")
	case r.UserID == "":
		return errors.Wrap(errors.ErrInvalidInput, "user id is required")
	case r.Variant() == VariantIdea && strings.TrimSpace(r.Idea) == "":
		return errors.Wrap(errors.ErrInvalidInput, "idea or document is required")
	}
	return nil
}

// Result describes a deployed app.
type Result struct {
	DeployURL   string
	ProjectName string
	ProjectPath string
	// Title is the idea, or the document title for the specification variant.
	Title string
}
