// Package generate drives the AI code-generation CLI.
package generate

import (
	"context"
	"time"

	"github.com/Iron-Ham/tinytree/internal/capture"
	"github.com/Iron-Ham/tinytree/internal/logging"
	"github.com/Iron-Ham/tinytree/internal/runner"
)

// DefaultTimeout bounds one generation call.
const DefaultTimeout = 30 * time.Minute

// DefaultArgs run the tool non-interactively with file and shell access.
var DefaultArgs = []string{"--print", "--dangerously-skip-permissions"}

// ToolRunner runs one external tool invocation.
type ToolRunner interface {
	Run(ctx context.Context, inv runner.Invocation) (string, error)
}

// Config controls the generator invocation.
type Config struct {
	// Command is the path of the CLI. Empty is reported as a configuration
	// error when Generate is called.
	Command string
	Args    []string
	// Dir is the working directory, normally the project root.
	Dir      string
	Timeout  time.Duration
	MaxLines int
	Env      []string
	// PromptOnStdin passes the prompt on stdin instead of as the last
	// argument. Long specification documents can exceed argv limits.
	PromptOnStdin bool
}

// ClaudeGenerator runs the Claude Code CLI with a prompt.
type ClaudeGenerator struct {
	runner ToolRunner
	cfg    Config
	logger *logging.Logger
}

// NewClaudeGenerator creates a ClaudeGenerator. Zero config fields other
// than Command fall back to the defaults.
func NewClaudeGenerator(r ToolRunner, cfg Config, logger *logging.Logger) *ClaudeGenerator {
	if cfg.Args == nil {
		cfg.Args = DefaultArgs
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = capture.GenerateMaxLines
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &ClaudeGenerator{runner: r, cfg: cfg, logger: logger}
}

// Generate runs the CLI with prompt and returns the retained stdout.
func (g *ClaudeGenerator) Generate(ctx context.Context, prompt string, onStart func(*runner.Process)) (string, error) {
	inv := runner.Invocation{
		Name:     "claude",
		Command:  g.cfg.Command,
		Args:     append([]string(nil), g.cfg.Args...),
		Dir:      g.cfg.Dir,
		Env:      g.cfg.Env,
		Timeout:  g.cfg.Timeout,
		MaxLines: g.cfg.MaxLines,
		Setting:  "tools.claude_path",
		OnStart:  onStart,
	}
	if g.cfg.PromptOnStdin {
		inv.Input = prompt
	} else {
		inv.Args = append(inv.Args, prompt)
	}

	g.logger.Debug("starting code generation", "prompt_bytes", len(prompt), "dir", g.cfg.Dir)
	return g.runner.Run(ctx, inv)
}
