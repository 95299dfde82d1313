// Package capture provides bounded output capture for external processes.
//
// A long-running tool (an AI code generation call can run for half an hour)
// may print an unbounded amount of diagnostic chatter. This package keeps only
// a diagnostic window of the most recent lines of each stream so memory stays
// bounded no matter how long the process runs.
//
// # Main Types
//
//   - [LineBuffer]: fixed-capacity ring of text lines; the oldest line is evicted on overflow
//   - [StreamCapture]: a stdout/stderr pair of LineBuffers with error summary helpers
//
// # Design
//
// Chunks written to a StreamCapture are split into lines and blank lines are
// dropped. Nothing keeps a full transcript: only the bounded windows can be
// queried. [StreamCapture.ErrorSummary] decides what a human sees when a
// process fails: recent stderr first, then recent stdout, then a fixed
// sentinel.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. exec.Cmd copies
// stdout and stderr from separate goroutines, so both writers may be active
// at once.
//
// # Basic Usage
//
//	sc := capture.NewStreamCapture(capture.Options{MaxLines: 300})
//	cmd.Stdout = sc.StdoutWriter()
//	cmd.Stderr = sc.StderrWriter()
//
//	if err := cmd.Run(); err != nil {
//	    sc.Flush()
//	    return fmt.Errorf("build failed: %s", sc.ErrorSummary())
//	}
package capture
