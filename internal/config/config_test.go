package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// resetViper gives each test a clean global viper with defaults and env
// bindings registered, as cmd does on startup.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	BindEnv()
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify default tools config
	if !slices.Equal(cfg.Tools.ClaudeArgs, []string{"--print", "--dangerously-skip-permissions"}) {
		t.Errorf("Tools.ClaudeArgs = %v", cfg.Tools.ClaudeArgs)
	}
	if cfg.Tools.FlutterPath != "flutter" || cfg.Tools.FirebasePath != "firebase" {
		t.Errorf("Tools = %+v", cfg.Tools)
	}

	// Verify default project and server config
	if cfg.Project.AppsDir != "apps" {
		t.Errorf("Project.AppsDir = %q, want %q", cfg.Project.AppsDir, "apps")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if !cfg.Slack.SocketMode {
		t.Error("Slack.SocketMode should be true by default")
	}

	// Verify timeout and capture classes
	if cfg.Timeouts.GenerateTimeout() != 30*time.Minute {
		t.Errorf("GenerateTimeout() = %v", cfg.Timeouts.GenerateTimeout())
	}
	if cfg.Timeouts.BuildTimeout() != 10*time.Minute {
		t.Errorf("BuildTimeout() = %v", cfg.Timeouts.BuildTimeout())
	}
	if cfg.Timeouts.DeployTimeout() != 5*time.Minute {
		t.Errorf("DeployTimeout() = %v", cfg.Timeouts.DeployTimeout())
	}
	if cfg.Timeouts.CancelGrace() != 5*time.Second {
		t.Errorf("CancelGrace() = %v", cfg.Timeouts.CancelGrace())
	}
	if cfg.Capture.GenerateLines != 500 || cfg.Capture.BuildLines != 300 || cfg.Capture.DeployLines != 200 {
		t.Errorf("Capture = %+v", cfg.Capture)
	}

	// Verify notify defaults match the delivery retry policy
	if cfg.Notify.MaxAttempts != 3 || cfg.Notify.BaseDelay() != time.Second {
		t.Errorf("Notify = %+v", cfg.Notify)
	}
	if !slices.Contains(cfg.Env.BuildDeny, "VSCODE_*") {
		t.Errorf("Env.BuildDeny = %v", cfg.Env.BuildDeny)
	}
	if !slices.Contains(cfg.Env.Allow, "PATH") || slices.Contains(cfg.Env.Allow, "*") {
		t.Errorf("Env.Allow = %v, want an explicit tool list", cfg.Env.Allow)
	}
}

func TestDurations(t *testing.T) {
	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"generate", (&TimeoutsConfig{GenerateMinutes: 2}).GenerateTimeout(), 2 * time.Minute},
		{"build zero", (&TimeoutsConfig{}).BuildTimeout(), 0},
		{"grace", (&TimeoutsConfig{CancelGraceSeconds: 1}).CancelGrace(), time.Second},
		{"notify delay", (&NotifyConfig{BaseDelayMs: 250}).BaseDelay(), 250 * time.Millisecond},
		{"shutdown", (&ServerConfig{ShutdownTimeoutSeconds: 30}).ShutdownTimeout(), 30 * time.Second},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestProjectConfig_AppsPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := []struct {
		root string
		want string
	}{
		{"/srv/tinytree", "/srv/tinytree/apps"},
		{"~/work", filepath.Join(home, "work", "apps")},
		{"~", filepath.Join(home, "apps")},
		{"relative", filepath.Join("relative", "apps")},
	}
	for _, tt := range tests {
		p := ProjectConfig{Root: tt.root, AppsDir: "apps"}
		if got := p.AppsPath(); got != tt.want {
			t.Errorf("AppsPath(%q) = %q, want %q", tt.root, got, tt.want)
		}
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := ConfigDir(); got != "/custom/config/tinytree" {
			t.Errorf("ConfigDir() = %q", got)
		}
		if got := ConfigFile(); got != "/custom/config/tinytree/config.yaml" {
			t.Errorf("ConfigFile() = %q", got)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, _ := os.UserHomeDir()
		if got, want := ConfigDir(), filepath.Join(home, ".config", "tinytree"); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 3000 || cfg.Project.AppsDir != "apps" {
		t.Errorf("Load() = %+v", cfg)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	resetViper(t)
	t.Setenv("CLAUDE_CODE_PATH", "/opt/claude/bin/claude")
	t.Setenv("TINY_TREE_PATH", "/srv/tinytree")
	t.Setenv("FIREBASE_PROJECT_ID", "tinytree-prod")
	t.Setenv("PORT", "8080")
	t.Setenv("TINYTREE_TIMEOUTS_BUILD_MINUTES", "12")
	t.Setenv("TINYTREE_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Tools.ClaudePath != "/opt/claude/bin/claude" {
		t.Errorf("Tools.ClaudePath = %q", cfg.Tools.ClaudePath)
	}
	if cfg.Project.Root != "/srv/tinytree" {
		t.Errorf("Project.Root = %q", cfg.Project.Root)
	}
	if cfg.Firebase.ProjectID != "tinytree-prod" {
		t.Errorf("Firebase.ProjectID = %q", cfg.Firebase.ProjectID)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Timeouts.BuildMinutes != 12 {
		t.Errorf("Timeouts.BuildMinutes = %d", cfg.Timeouts.BuildMinutes)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoad_LegacyNameWinsOverPrefixed(t *testing.T) {
	resetViper(t)
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-legacy")
	t.Setenv("TINYTREE_SLACK_BOT_TOKEN", "xoxb-prefixed")
	t.Setenv("TINYTREE_SLACK_APP_TOKEN", "xapp-prefixed")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Slack.BotToken != "xoxb-legacy" {
		t.Errorf("Slack.BotToken = %q, want the legacy variable", cfg.Slack.BotToken)
	}
	if cfg.Slack.AppToken != "xapp-prefixed" {
		t.Errorf("Slack.AppToken = %q, want the prefixed variable", cfg.Slack.AppToken)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
project:
  root: /data/tinytree
  apps_dir: generated
capture:
  build_lines: 50
env:
  deny: ["AWS_*"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}
	t.Setenv("TINYTREE_CAPTURE_BUILD_LINES", "75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Project.Root != "/data/tinytree" || cfg.Project.AppsDir != "generated" {
		t.Errorf("Project = %+v", cfg.Project)
	}
	if cfg.Capture.BuildLines != 75 {
		t.Errorf("Capture.BuildLines = %d, want the env override", cfg.Capture.BuildLines)
	}
	if cfg.Capture.DeployLines != 200 {
		t.Errorf("Capture.DeployLines = %d, want the default", cfg.Capture.DeployLines)
	}
	if !slices.Equal(cfg.Env.Deny, []string{"AWS_*"}) {
		t.Errorf("Env.Deny = %v", cfg.Env.Deny)
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	resetViper(t)
	t.Setenv("TINYTREE_NOTIFY_MAX_ATTEMPTS", "0")

	_, err := Load()
	errs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("Load() error = %v, want ValidationErrors", err)
	}
	if len(errs) != 1 || errs[0].Field != "notify.max_attempts" {
		t.Errorf("errs = %v", errs)
	}
}

func TestGet_FallsBackToDefaults(t *testing.T) {
	resetViper(t)
	t.Setenv("TINYTREE_SERVER_PORT", "0")

	if cfg := Get(); cfg.Server.Port != 3000 {
		t.Errorf("Get().Server.Port = %d, want the default", cfg.Server.Port)
	}
}
