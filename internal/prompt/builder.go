// Package prompt builds the instructions handed to the code-generation tool
// for each pipeline phase.
package prompt

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/tinytree/internal/session"
)

// File names the generated project uses to hand context between phases.
const (
	PlanFileName = "PLAN.md"
	SpecFileName = "SPEC.md"
)

// Phase identifies which prompt is being built.
type Phase string

const (
	PhaseDesign            Phase = "design"
	PhaseImplement         Phase = "implement"
	PhaseSpecAnalysis      Phase = "spec_analysis"
	PhaseImplementFromSpec Phase = "implement_from_spec"
)

// Context provides the information needed to build any prompt.
// Not every field is required for every phase.
type Context struct {
	Phase Phase

	// Mode selects the scope limits written into the prompt.
	Mode session.Mode

	// Idea is the user's one-line request (design phase).
	Idea string

	// Document is the full specification document (spec analysis phase).
	Document string

	// ProjectPath is the absolute directory the project lives in.
	ProjectPath string
}

// Validation errors
var (
	ErrNilContext       = errors.New("prompt context is nil")
	ErrInvalidPhase     = errors.New("invalid or empty phase")
	ErrEmptyIdea        = errors.New("idea is required")
	ErrEmptyDocument    = errors.New("specification document is required")
	ErrEmptyProjectPath = errors.New("project path is required")
)

// Scope is the size limit a generated app is held to.
type Scope struct {
	TimeBudget  string
	MaxFeatures int
	MaxScreens  int
	// Storage describes where app state may live.
	Storage string
}

// ScopeFor returns the limits for a mode. Unknown modes get the light scope.
func ScopeFor(mode session.Mode) Scope {
	if mode == session.ModeFull {
		return Scope{
			TimeBudget:  "half a day",
			MaxFeatures: 6,
			MaxScreens:  5,
			Storage:     "local persistence only (SharedPreferences), no backend server",
		}
	}
	return Scope{
		TimeBudget:  "one hour",
		MaxFeatures: 3,
		MaxScreens:  3,
		Storage:     "local in-memory state only, no server",
	}
}

// Builder turns a Context into prompt text.
type Builder struct{}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build dispatches on ctx.Phase.
func (b *Builder) Build(ctx *Context) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	switch ctx.Phase {
	case PhaseDesign:
		return b.Design(ctx)
	case PhaseImplement:
		return b.Implement(ctx)
	case PhaseSpecAnalysis:
		return b.SpecAnalysis(ctx)
	case PhaseImplementFromSpec:
		return b.ImplementFromSpec(ctx)
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPhase, ctx.Phase)
	}
}

// Design builds the prompt that creates the project and writes PLAN.md.
func (b *Builder) Design(ctx *Context) (string, error) {
	if err := validate(ctx, true, false); err != nil {
		return "", err
	}
	s := ScopeFor(ctx.Mode)
	return fmt.Sprintf(DesignPromptTemplate,
		s.TimeBudget,
		strings.TrimSpace(ctx.Idea),
		ctx.ProjectPath,
		s.MaxFeatures,
		s.MaxScreens,
		s.Storage,
		PlanFileName,
	), nil
}

// Implement builds the prompt that implements PLAN.md.
func (b *Builder) Implement(ctx *Context) (string, error) {
	if err := validate(ctx, false, false); err != nil {
		return "", err
	}
	return fmt.Sprintf(ImplementPromptTemplate,
		filepath.Join(ctx.ProjectPath, PlanFileName),
		extraConstraints(ctx.Mode),
	), nil
}

// SpecAnalysis builds the prompt that stores the document as SPEC.md and
// reduces it to a PLAN.md the scope allows.
func (b *Builder) SpecAnalysis(ctx *Context) (string, error) {
	if err := validate(ctx, false, true); err != nil {
		return "", err
	}
	s := ScopeFor(ctx.Mode)
	return fmt.Sprintf(SpecAnalysisPromptTemplate,
		strings.TrimSpace(ctx.Document),
		ctx.ProjectPath,
		filepath.Join(ctx.ProjectPath, SpecFileName),
		s.TimeBudget,
		filepath.Join(ctx.ProjectPath, PlanFileName),
		s.MaxFeatures,
		s.MaxScreens,
		s.Storage,
		PlanFileName,
	), nil
}

// ImplementFromSpec builds the prompt that implements PLAN.md with SPEC.md
// as reference.
func (b *Builder) ImplementFromSpec(ctx *Context) (string, error) {
	if err := validate(ctx, false, false); err != nil {
		return "", err
	}
	return fmt.Sprintf(ImplementFromSpecPromptTemplate,
		filepath.Join(ctx.ProjectPath, PlanFileName),
		filepath.Join(ctx.ProjectPath, SpecFileName),
		PlanFileName,
		SpecFileName,
		extraConstraints(ctx.Mode),
	), nil
}

func validate(ctx *Context, needIdea, needDocument bool) error {
	if ctx == nil {
		return ErrNilContext
	}
	if strings.TrimSpace(ctx.ProjectPath) == "" {
		return ErrEmptyProjectPath
	}
	if needIdea && strings.TrimSpace(ctx.Idea) == "" {
		return ErrEmptyIdea
	}
	if needDocument && strings.TrimSpace(ctx.Document) == "" {
		return ErrEmptyDocument
	}
	return nil
}

func extraConstraints(mode session.Mode) string {
	if mode == session.ModeFull {
		return "- Split widgets into separate files under lib/\n- Add widget tests for the core flows\n"
	}
	return ""
}
