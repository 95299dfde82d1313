// Package logging provides structured logging for tinytree.
//
// It wraps Go's log/slog to write JSON records with persistent context
// attributes (request ID, user ID, pipeline phase) so one run can be followed
// through the log after the fact.
//
// # Files
//
// A Logger created with a directory writes two files:
//
//   - combined.log: every record at or above the configured level, rotated by size
//   - error.log: ERROR records only, never rotated
//
// Records can additionally be mirrored to stderr with Options.Console.
//
// # Basic Usage
//
//	logger, err := logging.New(logging.Options{
//	    Dir:      "logs",
//	    Level:    "INFO",
//	    Rotation: logging.DefaultRotationConfig(),
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLog := logger.WithRequest("U123_1700000000000").WithPhase("build")
//	runLog.Info("phase started", "project", path)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"phase started","request_id":"U123_1700000000000","phase":"build","project":"..."}
//
// # Runtime Level Changes
//
// The level lives in a slog.LevelVar shared by every child logger, so
// [Logger.SetLevel] takes effect everywhere at once. The serve command calls
// it when the config file changes.
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a
// bytes.Buffer to assert on records.
package logging
