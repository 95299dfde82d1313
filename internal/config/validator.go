package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "timeouts.build_minutes")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found. Missing credentials are not errors here; see ValidateForServe
// and ValidateForRun.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateTimeouts()...)
	errors = append(errors, c.validateCapture()...)
	errors = append(errors, c.validateEnv()...)
	errors = append(errors, c.validateNotify()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// ValidateForRun adds the settings a pipeline run cannot start without.
func (c *Config) ValidateForRun() []ValidationError {
	errors := c.Validate()
	errors = append(errors, required("tools.claude_path", c.Tools.ClaudePath)...)
	errors = append(errors, required("project.root", c.Project.Root)...)
	errors = append(errors, required("firebase.project_id", c.Firebase.ProjectID)...)
	return errors
}

// ValidateForServe adds the Slack credentials the server needs on top of
// ValidateForRun.
func (c *Config) ValidateForServe() []ValidationError {
	errors := c.ValidateForRun()
	errors = append(errors, required("slack.bot_token", c.Slack.BotToken)...)
	if c.Slack.SocketMode {
		errors = append(errors, required("slack.app_token", c.Slack.AppToken)...)
	} else {
		errors = append(errors, required("slack.signing_secret", c.Slack.SigningSecret)...)
	}
	return errors
}

func required(field, value string) []ValidationError {
	if strings.TrimSpace(value) != "" {
		return nil
	}
	msg := "is required"
	if name, ok := LegacyEnvName(field); ok {
		msg = fmt.Sprintf("is required (set %s)", name)
	}
	return []ValidationError{{Field: field, Value: value, Message: msg}}
}

// validateServer validates the ServerConfig
func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Value:   c.Server.Port,
			Message: "must be between 1 and 65535",
		})
	}
	if c.Server.SpecRatePerMinute < 1 {
		errors = append(errors, ValidationError{
			Field:   "server.spec_rate_per_minute",
			Value:   c.Server.SpecRatePerMinute,
			Message: "must be at least 1",
		})
	}
	if c.Server.SpecBurst < 1 {
		errors = append(errors, ValidationError{
			Field:   "server.spec_burst",
			Value:   c.Server.SpecBurst,
			Message: "must be at least 1",
		})
	}
	if c.Server.ShutdownTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "server.shutdown_timeout_seconds",
			Value:   c.Server.ShutdownTimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateTimeouts validates the TimeoutsConfig
func (c *Config) validateTimeouts() []ValidationError {
	var errors []ValidationError

	minutes := []struct {
		field string
		value int
	}{
		{"timeouts.generate_minutes", c.Timeouts.GenerateMinutes},
		{"timeouts.build_minutes", c.Timeouts.BuildMinutes},
		{"timeouts.deploy_minutes", c.Timeouts.DeployMinutes},
	}
	// A run is bounded by a working day
	const maxMinutes = 8 * 60
	for _, m := range minutes {
		if m.value < 1 || m.value > maxMinutes {
			errors = append(errors, ValidationError{
				Field:   m.field,
				Value:   m.value,
				Message: fmt.Sprintf("must be between 1 and %d", maxMinutes),
			})
		}
	}

	if c.Timeouts.CancelGraceSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "timeouts.cancel_grace_seconds",
			Value:   c.Timeouts.CancelGraceSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateCapture validates the CaptureConfig
func (c *Config) validateCapture() []ValidationError {
	var errors []ValidationError

	// Reasonable upper bound to prevent memory issues
	const maxLines = 100000
	lines := []struct {
		field string
		value int
	}{
		{"capture.generate_lines", c.Capture.GenerateLines},
		{"capture.build_lines", c.Capture.BuildLines},
		{"capture.deploy_lines", c.Capture.DeployLines},
	}
	for _, l := range lines {
		if l.value < 1 {
			errors = append(errors, ValidationError{Field: l.field, Value: l.value, Message: "must be positive"})
		} else if l.value > maxLines {
			errors = append(errors, ValidationError{
				Field:   l.field,
				Value:   l.value,
				Message: fmt.Sprintf("exceeds maximum of %d", maxLines),
			})
		}
	}

	return errors
}

// validateEnv validates the EnvConfig glob patterns
func (c *Config) validateEnv() []ValidationError {
	var errors []ValidationError

	lists := []struct {
		field    string
		patterns []string
	}{
		{"env.allow", c.Env.Allow},
		{"env.deny", c.Env.Deny},
		{"env.build_deny", c.Env.BuildDeny},
	}
	for _, list := range lists {
		for i, pattern := range list.patterns {
			field := fmt.Sprintf("%s[%d]", list.field, i)
			if strings.TrimSpace(pattern) == "" {
				errors = append(errors, ValidationError{Field: field, Value: pattern, Message: "must not be empty"})
				continue
			}
			if _, err := glob.Compile(pattern); err != nil {
				errors = append(errors, ValidationError{
					Field:   field,
					Value:   pattern,
					Message: fmt.Sprintf("invalid glob pattern: %v", err),
				})
			}
		}
	}

	return errors
}

// validateNotify validates the NotifyConfig
func (c *Config) validateNotify() []ValidationError {
	var errors []ValidationError

	if c.Notify.RatePerSecond <= 0 {
		errors = append(errors, ValidationError{
			Field:   "notify.rate_per_second",
			Value:   c.Notify.RatePerSecond,
			Message: "must be positive",
		})
	}
	if c.Notify.Burst < 1 {
		errors = append(errors, ValidationError{
			Field:   "notify.burst",
			Value:   c.Notify.Burst,
			Message: "must be at least 1",
		})
	}

	const maxAttempts = 10
	if c.Notify.MaxAttempts < 1 || c.Notify.MaxAttempts > maxAttempts {
		errors = append(errors, ValidationError{
			Field:   "notify.max_attempts",
			Value:   c.Notify.MaxAttempts,
			Message: fmt.Sprintf("must be between 1 and %d", maxAttempts),
		})
	}
	if c.Notify.BaseDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "notify.base_delay_ms",
			Value:   c.Notify.BaseDelayMs,
			Message: "must be non-negative",
		})
	}
	if c.Notify.QueueSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "notify.queue_size",
			Value:   c.Notify.QueueSize,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be non-negative; zero disables rotation
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
