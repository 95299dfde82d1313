package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Iron-Ham/tinytree/internal/errors"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// File names written inside Options.Dir.
const (
	CombinedLogName = "combined.log"
	ErrorLogName    = "error.log"
)

// Options configures a Logger.
type Options struct {
	// Dir is the directory for combined.log and error.log. Empty means no
	// files are written.
	Dir string
	// Level is the minimum level for the combined log and the console.
	// The error log always records ERROR only.
	Level string
	// Rotation applies to combined.log.
	Rotation RotationConfig
	// Console mirrors log records to Stderr (or os.Stderr when nil).
	Console bool
	Stderr  io.Writer
}

// Logger provides structured logging with context propagation.
// It is safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	level  *slog.LevelVar
	files  *fileSet    // Shared by child loggers
	attrs  []slog.Attr // Persistent attributes (request, user, phase)
}

// fileSet owns the open log files of a Logger family.
type fileSet struct {
	mu      sync.Mutex
	closers []io.Closer
}

// New creates a Logger from opts. When opts.Dir is set, every record at or
// above the configured level goes to {Dir}/combined.log and every ERROR
// record additionally goes to {Dir}/error.log.
func New(opts Options) (*Logger, error) {
	level := new(slog.LevelVar)
	level.Set(parseLevel(opts.Level))

	var handlers []slog.Handler
	var closers []io.Closer

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		combined, err := NewRotatingWriter(filepath.Join(opts.Dir, CombinedLogName), opts.Rotation)
		if err != nil {
			return nil, err
		}
		closers = append(closers, combined)

		errFile, err := os.OpenFile(filepath.Join(opts.Dir, ErrorLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			_ = combined.Close()
			return nil, fmt.Errorf("failed to open error log: %w", err)
		}
		closers = append(closers, errFile)

		handlers = append(handlers,
			slog.NewJSONHandler(combined, &slog.HandlerOptions{Level: level}),
			slog.NewJSONHandler(errFile, &slog.HandlerOptions{Level: slog.LevelError}),
		)
	}

	if opts.Console || opts.Dir == "" {
		w := opts.Stderr
		if w == nil {
			w = os.Stderr
		}
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}

	return &Logger{
		logger: slog.New(newFanoutHandler(handlers...)),
		level:  level,
		files:  &fileSet{closers: closers},
		attrs:  make([]slog.Attr, 0),
	}, nil
}

// NewWriterLogger creates a Logger that writes JSON records to w.
func NewWriterLogger(w io.Writer, level string) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(parseLevel(level))
	return &Logger{
		logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lv})),
		level:  lv,
		files:  &fileSet{},
		attrs:  make([]slog.Attr, 0),
	}
}

// parseLevel converts a string log level to slog.Level.
// Defaults to INFO if the level string is not recognized.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the minimum level at runtime. Child loggers share the
// change.
func (l *Logger) SetLevel(level string) {
	l.level.Set(parseLevel(level))
}

// Level returns the current minimum level as one of the Level* constants.
func (l *Logger) Level() string {
	switch l.level.Level() {
	case slog.LevelDebug:
		return LevelDebug
	case slog.LevelWarn:
		return LevelWarn
	case slog.LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// WithRequest returns a new Logger with the request ID added to all log entries.
func (l *Logger) WithRequest(requestID string) *Logger {
	return l.withAttr(slog.String("request_id", requestID))
}

// WithUser returns a new Logger with the chat user ID added to all log entries.
func (l *Logger) WithUser(userID string) *Logger {
	return l.withAttr(slog.String("user_id", userID))
}

// WithPhase returns a new Logger with the pipeline phase added to all log entries.
// Phases are "spec", "plan", "implement", "build" and "deploy".
func (l *Logger) WithPhase(phase string) *Logger {
	return l.withAttr(slog.String("phase", phase))
}

// With returns a new Logger with arbitrary key-value attributes.
// Keys and values are provided as alternating arguments.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}

	newAttrs := make([]slog.Attr, 0, len(l.attrs)+len(args)/2)
	newAttrs = append(newAttrs, l.attrs...)

	for i := 0; i < len(args)-1; i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		newAttrs = append(newAttrs, slog.Any(key, args[i+1]))
	}

	return l.derive(newAttrs)
}

func (l *Logger) withAttr(attr slog.Attr) *Logger {
	newAttrs := make([]slog.Attr, len(l.attrs)+1)
	copy(newAttrs, l.attrs)
	newAttrs[len(l.attrs)] = attr
	return l.derive(newAttrs)
}

func (l *Logger) derive(attrs []slog.Attr) *Logger {
	return &Logger{
		logger: l.logger,
		level:  l.level,
		files:  l.files,
		attrs:  attrs,
	}
}

// Debug logs a message at DEBUG level with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

// Info logs a message at INFO level with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

// Warn logs a message at WARN level with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

// Error logs a message at ERROR level with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

// Failure logs err at the level matching its severity: warnings go to
// WARN, errors and critical errors to ERROR.
func (l *Logger) Failure(msg string, err error, args ...any) {
	sev := errors.GetSeverity(err)
	args = append(args, "error", err.Error(), "severity", sev.String())
	l.log(severityLevel(sev), msg, args...)
}

func severityLevel(sev errors.Severity) slog.Level {
	switch sev {
	case errors.SeverityDebug:
		return slog.LevelDebug
	case errors.SeverityInfo:
		return slog.LevelInfo
	case errors.SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	allArgs := make([]any, 0, len(l.attrs)*2+len(args))
	for _, attr := range l.attrs {
		allArgs = append(allArgs, attr.Key, attr.Value.Any())
	}
	allArgs = append(allArgs, args...)

	l.logger.Log(context.Background(), level, msg, allArgs...)
}

// Slog returns a *slog.Logger carrying this logger's handler and persistent
// attributes, for libraries that accept one.
func (l *Logger) Slog() *slog.Logger {
	args := make([]any, 0, len(l.attrs))
	for _, attr := range l.attrs {
		args = append(args, attr)
	}
	return l.logger.With(args...)
}

// Close flushes and closes the log files. Loggers writing only to the
// console treat this as a no-op.
func (l *Logger) Close() error {
	l.files.mu.Lock()
	defer l.files.mu.Unlock()

	var firstErr error
	for _, c := range l.files.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close log file: %w", err)
		}
	}
	l.files.closers = nil
	return firstErr
}

// NopLogger returns a Logger that discards all log output.
// Useful for testing or when logging is disabled.
func NopLogger() *Logger {
	return NewWriterLogger(io.Discard, LevelError)
}

// ParseLevel converts a string level to the corresponding constant.
// Returns LevelInfo if the level string is not recognized.
func ParseLevel(level string) string {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return LevelDebug
	case LevelInfo:
		return LevelInfo
	case LevelWarn:
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
