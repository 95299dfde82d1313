package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes the generic environment variable of every key, e.g.
// TINYTREE_FIREBASE_PROJECT_ID for firebase.project_id.
const EnvPrefix = "TINYTREE"

// Config represents the complete tinytree configuration
type Config struct {
	Tools    ToolsConfig    `mapstructure:"tools" yaml:"tools"`
	Project  ProjectConfig  `mapstructure:"project" yaml:"project"`
	Firebase FirebaseConfig `mapstructure:"firebase" yaml:"firebase"`
	Slack    SlackConfig    `mapstructure:"slack" yaml:"slack"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`
	Capture  CaptureConfig  `mapstructure:"capture" yaml:"capture"`
	Env      EnvConfig      `mapstructure:"env" yaml:"env"`
	Notify   NotifyConfig   `mapstructure:"notify" yaml:"notify"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// ToolsConfig locates the external command-line tools
type ToolsConfig struct {
	// ClaudePath is the Claude Code CLI (env: CLAUDE_CODE_PATH)
	ClaudePath string `mapstructure:"claude_path" yaml:"claude_path"`
	// ClaudeArgs are passed before the prompt (default: --print --dangerously-skip-permissions)
	ClaudeArgs []string `mapstructure:"claude_args" yaml:"claude_args"`
	// PromptOnStdin sends the prompt on stdin instead of argv (default: false)
	PromptOnStdin bool `mapstructure:"prompt_on_stdin" yaml:"prompt_on_stdin"`
	// FlutterPath is the Flutter CLI (default: "flutter" on PATH)
	FlutterPath string `mapstructure:"flutter_path" yaml:"flutter_path"`
	// FirebasePath is the Firebase CLI (default: "firebase" on PATH)
	FirebasePath string `mapstructure:"firebase_path" yaml:"firebase_path"`
}

// ProjectConfig controls where generated apps are written
type ProjectConfig struct {
	// Root is the workspace the generator runs in (env: TINY_TREE_PATH)
	Root string `mapstructure:"root" yaml:"root"`
	// AppsDir is the directory under Root that holds one directory per run (default: "apps")
	AppsDir string `mapstructure:"apps_dir" yaml:"apps_dir"`
}

// FirebaseConfig controls hosting deploys
type FirebaseConfig struct {
	// ProjectID is the Firebase project (env: FIREBASE_PROJECT_ID)
	ProjectID string `mapstructure:"project_id" yaml:"project_id"`
}

// SlackConfig holds the Slack app credentials
type SlackConfig struct {
	// BotToken is the xoxb- token used to post messages (env: SLACK_BOT_TOKEN)
	BotToken string `mapstructure:"bot_token" yaml:"bot_token"`
	// SigningSecret verifies HTTP slash commands (env: SLACK_SIGNING_SECRET)
	SigningSecret string `mapstructure:"signing_secret" yaml:"signing_secret"`
	// AppToken is the xapp- token for Socket Mode (env: SLACK_APP_TOKEN)
	AppToken string `mapstructure:"app_token" yaml:"app_token"`
	// SocketMode receives slash commands over a websocket instead of HTTP (default: true)
	SocketMode bool `mapstructure:"socket_mode" yaml:"socket_mode"`
}

// ServerConfig controls the HTTP server
type ServerConfig struct {
	// Port is the listen port (env: PORT, default: 3000)
	Port int `mapstructure:"port" yaml:"port"`
	// APIToken is the bearer token for POST /api/specs; empty disables the endpoint
	APIToken string `mapstructure:"api_token" yaml:"api_token"`
	// SpecRatePerMinute limits spec uploads per client IP (default: 6)
	SpecRatePerMinute int `mapstructure:"spec_rate_per_minute" yaml:"spec_rate_per_minute"`
	// SpecBurst is the burst size of the spec upload limit (default: 2)
	SpecBurst int `mapstructure:"spec_burst" yaml:"spec_burst"`
	// ShutdownTimeoutSeconds bounds graceful shutdown (default: 30)
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// TimeoutsConfig bounds each class of external call
type TimeoutsConfig struct {
	// GenerateMinutes bounds one AI generation call (default: 30)
	GenerateMinutes int `mapstructure:"generate_minutes" yaml:"generate_minutes"`
	// BuildMinutes bounds the web build (default: 10)
	BuildMinutes int `mapstructure:"build_minutes" yaml:"build_minutes"`
	// DeployMinutes bounds the hosting deploy (default: 5)
	DeployMinutes int `mapstructure:"deploy_minutes" yaml:"deploy_minutes"`
	// CancelGraceSeconds is the wait between SIGTERM and SIGKILL on cancel (default: 5)
	CancelGraceSeconds int `mapstructure:"cancel_grace_seconds" yaml:"cancel_grace_seconds"`
}

// CaptureConfig sets how many output lines each invocation class retains
type CaptureConfig struct {
	GenerateLines int `mapstructure:"generate_lines" yaml:"generate_lines"`
	BuildLines    int `mapstructure:"build_lines" yaml:"build_lines"`
	DeployLines   int `mapstructure:"deploy_lines" yaml:"deploy_lines"`
}

// EnvConfig selects the environment forwarded to child processes.
// Patterns are globs matched against variable names.
type EnvConfig struct {
	// Allow keeps only matching variables; empty forwards nothing
	Allow []string `mapstructure:"allow" yaml:"allow"`
	// Deny drops matching variables from every child
	Deny []string `mapstructure:"deny" yaml:"deny"`
	// BuildDeny additionally drops matching variables from the build (default: IDE variables)
	BuildDeny []string `mapstructure:"build_deny" yaml:"build_deny"`
}

// NotifyConfig controls chat delivery
type NotifyConfig struct {
	// RatePerSecond is the sustained outbound message rate (default: 1)
	RatePerSecond float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	// Burst is the number of messages allowed above the rate (default: 3)
	Burst int `mapstructure:"burst" yaml:"burst"`
	// MaxAttempts bounds delivery retries (default: 3)
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	// BaseDelayMs is the linear backoff unit between attempts (default: 1000)
	BaseDelayMs int `mapstructure:"base_delay_ms" yaml:"base_delay_ms"`
	// QueueSize is the number of events buffered for delivery (default: 256)
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// LoggingConfig controls the log files
type LoggingConfig struct {
	// Dir holds combined.log and error.log; empty disables log files (default: "logs")
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files (default: false)
	Compress bool `mapstructure:"compress" yaml:"compress"`
	// Console mirrors log records to stderr (default: true)
	Console bool `mapstructure:"console" yaml:"console"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Tools: ToolsConfig{
			ClaudeArgs:   []string{"--print", "--dangerously-skip-permissions"},
			FlutterPath:  "flutter",
			FirebasePath: "firebase",
		},
		Project: ProjectConfig{
			AppsDir: "apps",
		},
		Slack: SlackConfig{
			SocketMode: true,
		},
		Server: ServerConfig{
			Port:                   3000,
			SpecRatePerMinute:      6,
			SpecBurst:              2,
			ShutdownTimeoutSeconds: 30,
		},
		Timeouts: TimeoutsConfig{
			GenerateMinutes:    30,
			BuildMinutes:       10,
			DeployMinutes:      5,
			CancelGraceSeconds: 5,
		},
		Capture: CaptureConfig{
			GenerateLines: 500,
			BuildLines:    300,
			DeployLines:   200,
		},
		Env: EnvConfig{
			Allow: []string{
				"PATH", "HOME", "USER", "LANG", "LC_*", "TMPDIR", "SHELL", "XDG_*",
				"FLUTTER_*", "PUB_*", "ANDROID_*", "JAVA_HOME",
				"GOOGLE_APPLICATION_CREDENTIALS", "FIREBASE_TOKEN",
				"ANTHROPIC_*", "CLAUDE_*",
			},
			Deny: []string{},
			BuildDeny: []string{
				"VSCODE_*", "TERM_PROGRAM*", "ELECTRON_RUN_AS_NODE",
				"INTELLIJ_*", "JETBRAINS_*", "IDEA_*", "ANDROID_STUDIO_*",
			},
		},
		Notify: NotifyConfig{
			RatePerSecond: 1,
			Burst:         3,
			MaxAttempts:   3,
			BaseDelayMs:   1000,
			QueueSize:     256,
		},
		Logging: LoggingConfig{
			Dir:        "logs",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
			Console:    true,
		},
	}
}

// legacyEnv maps keys to the environment variable names the deployment
// already uses. They take precedence over the TINYTREE_ names.
var legacyEnv = map[string]string{
	"tools.claude_path":    "CLAUDE_CODE_PATH",
	"project.root":         "TINY_TREE_PATH",
	"firebase.project_id":  "FIREBASE_PROJECT_ID",
	"slack.bot_token":      "SLACK_BOT_TOKEN",
	"slack.signing_secret": "SLACK_SIGNING_SECRET",
	"slack.app_token":      "SLACK_APP_TOKEN",
	"server.port":          "PORT",
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Tools defaults
	viper.SetDefault("tools.claude_path", defaults.Tools.ClaudePath)
	viper.SetDefault("tools.claude_args", defaults.Tools.ClaudeArgs)
	viper.SetDefault("tools.prompt_on_stdin", defaults.Tools.PromptOnStdin)
	viper.SetDefault("tools.flutter_path", defaults.Tools.FlutterPath)
	viper.SetDefault("tools.firebase_path", defaults.Tools.FirebasePath)

	// Project defaults
	viper.SetDefault("project.root", defaults.Project.Root)
	viper.SetDefault("project.apps_dir", defaults.Project.AppsDir)

	// Firebase defaults
	viper.SetDefault("firebase.project_id", defaults.Firebase.ProjectID)

	// Slack defaults
	viper.SetDefault("slack.bot_token", defaults.Slack.BotToken)
	viper.SetDefault("slack.signing_secret", defaults.Slack.SigningSecret)
	viper.SetDefault("slack.app_token", defaults.Slack.AppToken)
	viper.SetDefault("slack.socket_mode", defaults.Slack.SocketMode)

	// Server defaults
	viper.SetDefault("server.port", defaults.Server.Port)
	viper.SetDefault("server.api_token", defaults.Server.APIToken)
	viper.SetDefault("server.spec_rate_per_minute", defaults.Server.SpecRatePerMinute)
	viper.SetDefault("server.spec_burst", defaults.Server.SpecBurst)
	viper.SetDefault("server.shutdown_timeout_seconds", defaults.Server.ShutdownTimeoutSeconds)

	// Timeout defaults
	viper.SetDefault("timeouts.generate_minutes", defaults.Timeouts.GenerateMinutes)
	viper.SetDefault("timeouts.build_minutes", defaults.Timeouts.BuildMinutes)
	viper.SetDefault("timeouts.deploy_minutes", defaults.Timeouts.DeployMinutes)
	viper.SetDefault("timeouts.cancel_grace_seconds", defaults.Timeouts.CancelGraceSeconds)

	// Capture defaults
	viper.SetDefault("capture.generate_lines", defaults.Capture.GenerateLines)
	viper.SetDefault("capture.build_lines", defaults.Capture.BuildLines)
	viper.SetDefault("capture.deploy_lines", defaults.Capture.DeployLines)

	// Env defaults
	viper.SetDefault("env.allow", defaults.Env.Allow)
	viper.SetDefault("env.deny", defaults.Env.Deny)
	viper.SetDefault("env.build_deny", defaults.Env.BuildDeny)

	// Notify defaults
	viper.SetDefault("notify.rate_per_second", defaults.Notify.RatePerSecond)
	viper.SetDefault("notify.burst", defaults.Notify.Burst)
	viper.SetDefault("notify.max_attempts", defaults.Notify.MaxAttempts)
	viper.SetDefault("notify.base_delay_ms", defaults.Notify.BaseDelayMs)
	viper.SetDefault("notify.queue_size", defaults.Notify.QueueSize)

	// Logging defaults
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)
	viper.SetDefault("logging.console", defaults.Logging.Console)
}

// BindEnv enables TINYTREE_* variables for every key and binds the legacy
// variable names.
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	// Replace dots with underscores for nested keys in env vars
	// e.g., TINYTREE_TIMEOUTS_BUILD_MINUTES for timeouts.build_minutes
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	for key, name := range legacyEnv {
		generic := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = viper.BindEnv(key, name, generic)
	}
}

// LegacyEnvName returns the legacy environment variable bound to key, if any.
func LegacyEnvName(key string) (string, bool) {
	name, ok := legacyEnv[key]
	return name, ok
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tinytree")
	}
	// Fall back to ~/.config/tinytree
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tinytree"
	}
	return filepath.Join(home, ".config", "tinytree")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// GenerateTimeout returns the generation timeout as a time.Duration
func (c *TimeoutsConfig) GenerateTimeout() time.Duration {
	return time.Duration(c.GenerateMinutes) * time.Minute
}

// BuildTimeout returns the build timeout as a time.Duration
func (c *TimeoutsConfig) BuildTimeout() time.Duration {
	return time.Duration(c.BuildMinutes) * time.Minute
}

// DeployTimeout returns the deploy timeout as a time.Duration
func (c *TimeoutsConfig) DeployTimeout() time.Duration {
	return time.Duration(c.DeployMinutes) * time.Minute
}

// CancelGrace returns the cancel grace window as a time.Duration
func (c *TimeoutsConfig) CancelGrace() time.Duration {
	return time.Duration(c.CancelGraceSeconds) * time.Second
}

// BaseDelay returns the retry backoff unit as a time.Duration
func (c *NotifyConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown bound as a time.Duration
func (c *ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// AppsPath returns the absolute directory that holds generated apps.
// Supports ~ for home directory expansion in Root.
func (p *ProjectConfig) AppsPath() string {
	return filepath.Join(expandHome(p.Root), p.AppsDir)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}
