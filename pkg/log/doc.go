// Package log is the structured logging facade used across the repository
// server.
//
// Components receive a Logger, never a global, and tag themselves with
// Component. Entries flow through a slog handler into a Formatter (text or
// JSON) and one or more Outputs (console, file, null).
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("txnlog"))
//	l.Info("record appended", log.Uint64("seq", 42))
//
// ApplyConfig builds a logger from a Config and can redact keys (for example
// transaction metadata fields) and sample repeated messages. RedirectStdLog
// routes the standard library logger, which Pebble writes to, through a
// Logger.
package log
