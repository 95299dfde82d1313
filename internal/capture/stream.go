package capture

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// Default window sizes per invocation class. AI generation calls run longest
// and print the most, deploy calls the least.
const (
	DefaultMaxLines     = 1000
	GenerateMaxLines    = 500
	BuildMaxLines       = 300
	DeployMaxLines      = 200
	DefaultSummaryLines = 20
)

// NoDetailsSentinel is returned by ErrorSummary when neither stream produced
// any output.
const NoDetailsSentinel = "no error details available"

// maxPendingBytes bounds a partial line held by a stream writer. A process
// that never prints a newline still cannot grow memory without limit.
const maxPendingBytes = 64 * 1024

// Options configures a StreamCapture.
type Options struct {
	// MaxLines is the capacity of each stream window (default: DefaultMaxLines).
	MaxLines int
	// SummaryLines is how many lines ErrorSummary returns (default: DefaultSummaryLines).
	SummaryLines int
	// OnStdoutLine, if set, is called for every retained stdout line.
	OnStdoutLine func(line string)
	// OnStderrLine, if set, is called for every retained stderr line.
	OnStderrLine func(line string)
}

// StreamCapture holds the bounded stdout and stderr windows of one process
// invocation.
type StreamCapture struct {
	stdout *LineBuffer
	stderr *LineBuffer
	opts   Options

	stdoutW *lineWriter
	stderrW *lineWriter
}

// NewStreamCapture creates a StreamCapture with the given options.
func NewStreamCapture(opts Options) *StreamCapture {
	if opts.MaxLines <= 0 {
		opts.MaxLines = DefaultMaxLines
	}
	if opts.SummaryLines <= 0 {
		opts.SummaryLines = DefaultSummaryLines
	}

	sc := &StreamCapture{
		stdout: NewLineBuffer(opts.MaxLines),
		stderr: NewLineBuffer(opts.MaxLines),
		opts:   opts,
	}
	sc.stdoutW = &lineWriter{emit: sc.addStdout}
	sc.stderrW = &lineWriter{emit: sc.addStderr}
	return sc
}

// OnStdout splits a stdout chunk into lines and retains the non-blank ones.
func (sc *StreamCapture) OnStdout(chunk []byte) {
	for _, line := range splitLines(chunk) {
		sc.addStdout(line)
	}
}

// OnStderr splits a stderr chunk into lines and retains the non-blank ones.
func (sc *StreamCapture) OnStderr(chunk []byte) {
	for _, line := range splitLines(chunk) {
		sc.addStderr(line)
	}
}

func (sc *StreamCapture) addStdout(line string) {
	if isBlank(line) {
		return
	}
	sc.stdout.Append(line)
	if sc.opts.OnStdoutLine != nil {
		sc.opts.OnStdoutLine(line)
	}
}

func (sc *StreamCapture) addStderr(line string) {
	if isBlank(line) {
		return
	}
	sc.stderr.Append(line)
	if sc.opts.OnStderrLine != nil {
		sc.opts.OnStderrLine(line)
	}
}

// StdoutWriter returns an io.Writer suitable for exec.Cmd.Stdout. Unlike
// OnStdout, it carries a partial trailing line over to the next write.
func (sc *StreamCapture) StdoutWriter() io.Writer {
	return sc.stdoutW
}

// StderrWriter returns an io.Writer suitable for exec.Cmd.Stderr.
func (sc *StreamCapture) StderrWriter() io.Writer {
	return sc.stderrW
}

// Flush emits any partial lines still held by the stream writers. Call it
// once the process has exited.
func (sc *StreamCapture) Flush() {
	sc.stdoutW.flush()
	sc.stderrW.flush()
}

// RecentOutput returns the last n stdout lines joined by newlines.
func (sc *StreamCapture) RecentOutput(n int) string {
	return strings.Join(sc.stdout.Tail(n), "\n")
}

// RecentErrors returns the last n stderr lines joined by newlines.
func (sc *StreamCapture) RecentErrors(n int) string {
	return strings.Join(sc.stderr.Tail(n), "\n")
}

// Output returns the whole retained stdout window.
func (sc *StreamCapture) Output() string {
	return strings.Join(sc.stdout.Lines(), "\n")
}

// ErrorSummary returns the most recent stderr lines if there are any, else
// the most recent stdout lines, else NoDetailsSentinel.
func (sc *StreamCapture) ErrorSummary() string {
	if errs := sc.RecentErrors(sc.opts.SummaryLines); errs != "" {
		return errs
	}
	if out := sc.RecentOutput(sc.opts.SummaryLines); out != "" {
		return out
	}
	return NoDetailsSentinel
}

// Stats reports how many lines each window currently holds.
type Stats struct {
	OutputLines int
	ErrorLines  int
}

// Stats returns the current window sizes.
func (sc *StreamCapture) Stats() Stats {
	return Stats{
		OutputLines: sc.stdout.Len(),
		ErrorLines:  sc.stderr.Len(),
	}
}

// lineWriter turns a byte stream into lines. It is safe for concurrent use,
// though exec.Cmd only ever writes from one goroutine per stream.
type lineWriter struct {
	mu      sync.Mutex
	pending []byte
	emit    func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, p...)
	for {
		idx := bytes.IndexByte(w.pending, '\n')
		if idx < 0 {
			break
		}
		w.emit(strings.TrimRight(string(w.pending[:idx]), "\r"))
		w.pending = w.pending[idx+1:]
	}

	if len(w.pending) > maxPendingBytes {
		w.emit(string(w.pending))
		w.pending = nil
	}
	if len(w.pending) == 0 {
		w.pending = nil
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) > 0 {
		w.emit(strings.TrimRight(string(w.pending), "\r"))
		w.pending = nil
	}
}

func splitLines(chunk []byte) []string {
	parts := strings.Split(string(chunk), "\n")
	lines := make([]string, 0, len(parts))
	for _, part := range parts {
		lines = append(lines, strings.TrimRight(part, "\r"))
	}
	return lines
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
