// Package deploy publishes a built web bundle to Firebase Hosting and
// recovers the public URL from the CLI output.
package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Iron-Ham/tinytree/internal/capture"
	"github.com/Iron-Ham/tinytree/internal/errors"
	"github.com/Iron-Ham/tinytree/internal/logging"
	"github.com/Iron-Ham/tinytree/internal/runner"
)

// Defaults for the Firebase CLI.
const (
	DefaultCommand       = "firebase"
	DefaultTimeout       = 5 * time.Minute
	DefaultCreateTimeout = 2 * time.Minute
	ConfigFileName       = "firebase.json"
	PublicDir            = "build/web"
	maxSiteIDLength      = 30
)

// URLPattern matches the public URL the Firebase CLI prints after a deploy.
const URLPattern = `https://[a-z0-9-]+\.(?:web\.app|firebaseapp\.com)`

var urlRe = regexp.MustCompile(URLPattern)

// ToolRunner runs one external tool invocation.
type ToolRunner interface {
	Run(ctx context.Context, inv runner.Invocation) (string, error)
}

// Config controls the Firebase invocations.
type Config struct {
	Command   string
	ProjectID string
	Timeout   time.Duration
	MaxLines  int
	Env       []string
}

// FirebaseDeployer deploys to a per-app Firebase Hosting site.
type FirebaseDeployer struct {
	runner ToolRunner
	cfg    Config
	logger *logging.Logger
}

// NewFirebaseDeployer creates a FirebaseDeployer. Zero config fields fall
// back to the defaults; an empty ProjectID is reported by Deploy.
func NewFirebaseDeployer(r ToolRunner, cfg Config, logger *logging.Logger) *FirebaseDeployer {
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = capture.DeployMaxLines
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &FirebaseDeployer{runner: r, cfg: cfg, logger: logger}
}

// Deploy writes firebase.json into projectPath, makes sure the hosting site
// exists and deploys the bundle to it. It returns the public URL printed by
// the CLI.
func (d *FirebaseDeployer) Deploy(ctx context.Context, projectPath, siteName string, onStart func(*runner.Process)) (string, error) {
	if d.cfg.ProjectID == "" {
		return "", errors.NewConfigError("firebase.project_id", "firebase project id is not set")
	}
	site := SiteID(siteName)
	if site == "" {
		return "", errors.Wrapf(errors.ErrInvalidInput, "site name %q has no usable characters", siteName)
	}

	if err := WriteConfig(projectPath, site); err != nil {
		return "", err
	}

	// The site usually does not exist yet. When it does, the CLI fails and
	// the deploy below still succeeds.
	if _, err := d.runner.Run(ctx, runner.Invocation{
		Name:     "firebase",
		Command:  d.cfg.Command,
		Args:     []string{"hosting:sites:create", site, "--project", d.cfg.ProjectID},
		Dir:      projectPath,
		Env:      d.cfg.Env,
		Timeout:  DefaultCreateTimeout,
		MaxLines: d.cfg.MaxLines,
		Setting:  "tools.firebase_path",
		OnStart:  onStart,
	}); err != nil {
		if ctx.Err() != nil || errors.Is(err, errors.ErrToolNotConfigured) || errors.Is(err, errors.ErrLaunchFailed) {
			return "", err
		}
		d.logger.Warn("hosting site create failed, continuing", "site", site, "error", err)
	}

	output, err := d.runner.Run(ctx, runner.Invocation{
		Name:     "firebase",
		Command:  d.cfg.Command,
		Args:     []string{"deploy", "--only", "hosting:" + site, "--project", d.cfg.ProjectID},
		Dir:      projectPath,
		Env:      d.cfg.Env,
		Timeout:  d.cfg.Timeout,
		MaxLines: d.cfg.MaxLines,
		Setting:  "tools.firebase_path",
		OnStart:  onStart,
	})
	if err != nil {
		return "", err
	}

	url, err := ParseURL(output)
	if err != nil {
		return "", err
	}
	d.logger.Info("hosting deploy finished", "site", site, "url", url)
	return url, nil
}

// ParseURL returns the first hosting URL in output.
func ParseURL(output string) (string, error) {
	if url := urlRe.FindString(output); url != "" {
		return url, nil
	}
	return "", errors.NewURLParseError(URLPattern, output)
}

// SiteID converts a project name into a valid Firebase Hosting site id:
// lowercase ASCII letters, digits and hyphens, no leading or trailing
// hyphen, at most 30 characters. Long ids are shortened in the middle so
// the last segment, the project's timestamp, survives.
func SiteID(name string) string {
	var sb strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				sb.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	id := strings.Trim(sb.String(), "-")
	if len(id) <= maxSiteIDLength {
		return id
	}
	i := strings.LastIndexByte(id, '-')
	if i <= 0 || len(id)-i >= maxSiteIDLength {
		return strings.TrimRight(id[:maxSiteIDLength], "-")
	}
	suffix := id[i:]
	return strings.TrimRight(id[:maxSiteIDLength-len(suffix)], "-") + suffix
}

type hostingConfig struct {
	Hosting hosting `json:"hosting"`
}

type hosting struct {
	Site     string    `json:"site"`
	Public   string    `json:"public"`
	Ignore   []string  `json:"ignore"`
	Rewrites []rewrite `json:"rewrites"`
}

type rewrite struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// WriteConfig writes a single-page-app firebase.json for site into dir.
func WriteConfig(dir, site string) error {
	cfg := hostingConfig{Hosting: hosting{
		Site:     site,
		Public:   PublicDir,
		Ignore:   []string{ConfigFileName, "**/.*", "**/node_modules/**"},
		Rewrites: []rewrite{{Source: "**", Destination: "/index.html"}},
	}}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", ConfigFileName, err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", ConfigFileName, err)
	}
	return nil
}
