// Package errors provides centralized error definitions and error handling utilities
// for tinytree. It defines the pipeline's error taxonomy, error constructors with
// context wrapping, and classification helpers.
//
// # Error Types
//
// Every failure that can end a pipeline phase has its own type:
//   - ConfigError: a required external-tool location or setting is unset
//   - LaunchError: the process could not be started
//   - TimeoutError: the process exceeded its wall-clock budget
//   - ExitError: the process ran and exited with a nonzero code
//   - URLParseError: the deploy tool succeeded but printed no public URL
//   - BusyError: the user already has a run in flight
//
// PhaseError wraps any of the above with the name of the phase that failed and
// is the single aggregated error a caller sees from a failed run.
//
// # Usage
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrTimeout) { ... }
//
//	var exitErr *errors.ExitError
//	if errors.As(err, &exitErr) {
//	    fmt.Println(exitErr.ExitCode, exitErr.Summary)
//	}
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// External tool sentinel errors
var (
	// ErrToolNotConfigured indicates that a required tool path or setting is unset.
	ErrToolNotConfigured = New("tool not configured")
	// ErrLaunchFailed indicates that a process could not be started.
	ErrLaunchFailed = New("process launch failed")
	// ErrTimeout indicates that a process exceeded its time budget.
	ErrTimeout = New("operation timed out")
	// ErrNonZeroExit indicates that a process exited with a nonzero code.
	ErrNonZeroExit = New("process exited with nonzero code")
	// ErrDeployURLNotFound indicates that no public URL was found in deploy output.
	ErrDeployURLNotFound = New("deploy url not found")
)

// Session sentinel errors
var (
	// ErrUserBusy indicates that the user already has a non-terminal session.
	ErrUserBusy = New("user already has a run in progress")
	// ErrSessionNotFound indicates that no session matches the lookup.
	ErrSessionNotFound = New("session not found")
	// ErrCanceled indicates that the run was cancelled by the user.
	ErrCanceled = New("run canceled")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// ClassifiedError is the base interface for all tinytree errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type ClassifiedError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func newBase(message string, cause error) baseError {
	return baseError{
		message:    message,
		cause:      cause,
		severity:   SeverityError,
		userFacing: true,
	}
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// format renders "<prefix> [k=v, ...]: message: cause".
func (e *baseError) format(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Configuration Errors
// -----------------------------------------------------------------------------

// ConfigError is returned before anything is launched when a required
// setting is missing.
//
// Example:
//
//	err := errors.NewConfigError("tools.claude_path", "claude code path is not set")
//	fmt.Println(err) // "configuration error [setting=tools.claude_path]: claude code path is not set"
type ConfigError struct {
	baseError
	Setting string
}

// NewConfigError creates a new ConfigError for the given setting key.
func NewConfigError(setting, message string) *ConfigError {
	e := &ConfigError{baseError: newBase(message, nil), Setting: setting}
	e.severity = SeverityCritical
	return e
}

// Error returns the formatted error message.
func (e *ConfigError) Error() string {
	var parts []string
	if e.Setting != "" {
		parts = append(parts, "setting="+e.Setting)
	}
	return e.format("configuration error", parts)
}

// Is reports whether the target is ErrToolNotConfigured or another ConfigError.
func (e *ConfigError) Is(target error) bool {
	if target == ErrToolNotConfigured {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok
}

// -----------------------------------------------------------------------------
// Process Errors
// -----------------------------------------------------------------------------

// LaunchError is returned when a process could not be started. Hints lists
// the probable causes so the operator knows where to look.
type LaunchError struct {
	baseError
	Tool    string
	Command string
	Hints   []string
}

// Launch failure hint categories.
const (
	HintBinaryMissing   = "binary not found at the configured path"
	HintNotExecutable   = "binary is missing execute permission"
	HintToolUninstalled = "tool is not installed on this host"
)

// NewLaunchError creates a new LaunchError.
func NewLaunchError(tool, command string, cause error) *LaunchError {
	return &LaunchError{
		baseError: newBase("failed to start process", cause),
		Tool:      tool,
		Command:   command,
		Hints:     []string{HintBinaryMissing, HintNotExecutable, HintToolUninstalled},
	}
}

// Error returns the formatted error message including the hints.
func (e *LaunchError) Error() string {
	var parts []string
	if e.Tool != "" {
		parts = append(parts, "tool="+e.Tool)
	}
	if e.Command != "" {
		parts = append(parts, "command="+e.Command)
	}
	msg := e.format("launch error", parts)
	if len(e.Hints) > 0 {
		msg += " (check: " + strings.Join(e.Hints, "; ") + ")"
	}
	return msg
}

// Is reports whether the target is ErrLaunchFailed or another LaunchError.
func (e *LaunchError) Is(target error) bool {
	if target == ErrLaunchFailed {
		return true
	}
	if _, ok := target.(*LaunchError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// TimeoutError represents a process that exceeded its wall-clock budget.
type TimeoutError struct {
	baseError
	Tool     string
	Duration time.Duration
	Summary  string
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(tool string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: newBase(fmt.Sprintf("exceeded %v time limit", duration), nil),
		Tool:      tool,
		Duration:  duration,
	}
}

// WithSummary attaches the captured diagnostic window.
func (e *TimeoutError) WithSummary(summary string) *TimeoutError {
	e.Summary = summary
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	var parts []string
	if e.Tool != "" {
		parts = append(parts, "tool="+e.Tool)
	}
	return e.format("timeout", parts)
}

// Is reports whether the target is ErrTimeout or another TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	if target == ErrTimeout {
		return true
	}
	_, ok := target.(*TimeoutError)
	return ok
}

// ExitError represents a process that ran to completion with a nonzero
// exit code. Summary holds the bounded diagnostic window.
type ExitError struct {
	baseError
	Tool     string
	ExitCode int
	Summary  string
}

// NewExitError creates a new ExitError.
func NewExitError(tool string, exitCode int, summary string) *ExitError {
	return &ExitError{
		baseError: newBase(fmt.Sprintf("exited with code %d", exitCode), nil),
		Tool:      tool,
		ExitCode:  exitCode,
		Summary:   summary,
	}
}

// Error returns the formatted error message followed by the summary.
func (e *ExitError) Error() string {
	var parts []string
	if e.Tool != "" {
		parts = append(parts, "tool="+e.Tool)
	}
	msg := e.format("process error", parts)
	if e.Summary != "" {
		msg += "\n" + e.Summary
	}
	return msg
}

// Is reports whether the target is ErrNonZeroExit or another ExitError.
func (e *ExitError) Is(target error) bool {
	if target == ErrNonZeroExit {
		return true
	}
	_, ok := target.(*ExitError)
	return ok
}

// URLParseError is returned when the deploy tool exited 0 but no public URL
// could be found in its captured output.
type URLParseError struct {
	baseError
	Pattern string
	Output  string
}

// NewURLParseError creates a new URLParseError.
func NewURLParseError(pattern, output string) *URLParseError {
	return &URLParseError{
		baseError: newBase("no deploy url found in output", nil),
		Pattern:   pattern,
		Output:    output,
	}
}

// Error returns the formatted error message.
func (e *URLParseError) Error() string {
	var parts []string
	if e.Pattern != "" {
		parts = append(parts, "pattern="+e.Pattern)
	}
	return e.format("url parse error", parts)
}

// Is reports whether the target is ErrDeployURLNotFound or another URLParseError.
func (e *URLParseError) Is(target error) bool {
	if target == ErrDeployURLNotFound {
		return true
	}
	_, ok := target.(*URLParseError)
	return ok
}

// -----------------------------------------------------------------------------
// Session Errors
// -----------------------------------------------------------------------------

// BusyError is returned when a user asks for a new run while a non-terminal
// session is still held for them.
type BusyError struct {
	baseError
	UserID string
	Status string
}

// NewBusyError creates a new BusyError.
func NewBusyError(userID, status string) *BusyError {
	e := &BusyError{
		baseError: newBase("a run is already in progress", nil),
		UserID:    userID,
		Status:    status,
	}
	e.severity = SeverityWarning
	return e
}

// Error returns the formatted error message.
func (e *BusyError) Error() string {
	var parts []string
	if e.UserID != "" {
		parts = append(parts, "user="+e.UserID)
	}
	if e.Status != "" {
		parts = append(parts, "status="+e.Status)
	}
	return e.format("busy", parts)
}

// Is reports whether the target is ErrUserBusy or another BusyError.
func (e *BusyError) Is(target error) bool {
	if target == ErrUserBusy {
		return true
	}
	_, ok := target.(*BusyError)
	return ok
}

// -----------------------------------------------------------------------------
// Delivery Errors
// -----------------------------------------------------------------------------

// DeliveryError represents a failed outbound chat notification.
// Delivery errors are retryable unless the platform rejected the request
// outright (bad token, unknown channel).
type DeliveryError struct {
	baseError
	Channel string
}

// NewDeliveryError creates a new retryable DeliveryError.
func NewDeliveryError(channel string, cause error) *DeliveryError {
	e := &DeliveryError{baseError: newBase("failed to deliver notification", cause), Channel: channel}
	e.retryable = true
	e.userFacing = false
	e.severity = SeverityWarning
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *DeliveryError) WithRetryable(r bool) *DeliveryError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *DeliveryError) Error() string {
	var parts []string
	if e.Channel != "" {
		parts = append(parts, "channel="+e.Channel)
	}
	return e.format("delivery error", parts)
}

// -----------------------------------------------------------------------------
// Pipeline Errors
// -----------------------------------------------------------------------------

// PhaseError is the aggregated error of a failed run: the failing phase and
// its underlying cause.
type PhaseError struct {
	baseError
	Phase     string
	RequestID string
}

// NewPhaseError creates a new PhaseError wrapping cause.
func NewPhaseError(phase string, cause error) *PhaseError {
	return &PhaseError{
		baseError: newBase(phase+" phase failed", cause),
		Phase:     phase,
	}
}

// WithRequestID adds the request id to the error context.
func (e *PhaseError) WithRequestID(id string) *PhaseError {
	e.RequestID = id
	return e
}

// Error returns the formatted error message.
func (e *PhaseError) Error() string {
	var parts []string
	if e.RequestID != "" {
		parts = append(parts, "request="+e.RequestID)
	}
	return e.format("pipeline error", parts)
}

// Is reports whether the target is another PhaseError or matches the cause.
func (e *PhaseError) Is(target error) bool {
	if _, ok := target.(*PhaseError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error is transient and the operation may
// succeed on retry. Pipeline phase errors are never retryable; this is used by
// the notification delivery path.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var classified ClassifiedError
	if As(err, &classified) {
		return classified.IsRetryable()
	}

	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var classified ClassifiedError
	if As(err, &classified) {
		return classified.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ClassifiedError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var classified ClassifiedError
	if As(err, &classified) {
		return classified.Severity()
	}

	return SeverityError
}

// UserMessage renders err for a chat recipient. Classified errors are shown
// as-is; anything else is reduced to a generic message so internal details
// do not leak.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if IsUserFacing(err) {
		return err.Error()
	}
	return "an internal error occurred"
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to write firebase.json")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
