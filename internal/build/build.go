// Package build compiles a generated project into a deployable web bundle.
package build

import (
	"context"
	"time"

	"github.com/Iron-Ham/tinytree/internal/capture"
	"github.com/Iron-Ham/tinytree/internal/logging"
	"github.com/Iron-Ham/tinytree/internal/runner"
)

// Defaults for the Flutter web build.
const (
	DefaultCommand = "flutter"
	DefaultTimeout = 10 * time.Minute
)

// DefaultArgs builds a release web bundle into build/web.
var DefaultArgs = []string{"build", "web", "--release"}

// DefaultEnvDeny lists editor and IDE variables that are stripped from the
// build environment. Some of them make the Flutter tool try to attach to a
// host IDE.
var DefaultEnvDeny = []string{
	"VSCODE_*",
	"TERM_PROGRAM*",
	"ELECTRON_RUN_AS_NODE",
	"INTELLIJ_*",
	"JETBRAINS_*",
	"IDEA_*",
	"ANDROID_STUDIO_*",
}

// ToolRunner runs one external tool invocation.
type ToolRunner interface {
	Run(ctx context.Context, inv runner.Invocation) (string, error)
}

// Config controls the build invocation.
type Config struct {
	Command  string
	Args     []string
	Timeout  time.Duration
	MaxLines int
	// Env is the complete child environment.
	Env []string
}

// FlutterBuilder runs `flutter build web --release` in a project directory.
type FlutterBuilder struct {
	runner ToolRunner
	cfg    Config
	logger *logging.Logger
}

// NewFlutterBuilder creates a FlutterBuilder. Zero config fields fall back
// to the defaults.
func NewFlutterBuilder(r ToolRunner, cfg Config, logger *logging.Logger) *FlutterBuilder {
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
	}
	if len(cfg.Args) == 0 {
		cfg.Args = DefaultArgs
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = capture.BuildMaxLines
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &FlutterBuilder{runner: r, cfg: cfg, logger: logger}
}

// Build compiles the project at projectPath. onStart, if set, receives the
// process handle so the caller can cancel it.
func (b *FlutterBuilder) Build(ctx context.Context, projectPath string, onStart func(*runner.Process)) error {
	started := time.Now()
	_, err := b.runner.Run(ctx, runner.Invocation{
		Name:     "flutter",
		Command:  b.cfg.Command,
		Args:     append([]string(nil), b.cfg.Args...),
		Dir:      projectPath,
		Env:      b.cfg.Env,
		Timeout:  b.cfg.Timeout,
		MaxLines: b.cfg.MaxLines,
		Setting:  "tools.flutter_path",
		OnStart:  onStart,
	})
	if err != nil {
		return err
	}
	b.logger.Info("web build finished",
		"project", projectPath,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}
