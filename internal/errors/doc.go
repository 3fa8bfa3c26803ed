// Package errors defines the repository error taxonomy.
//
// Every failure surfaced by the transaction log, the storage facade and the
// bounded stream is an *Error carrying a Code. Callers test for a class of
// failure with the standard library:
//
//	if errors.Is(err, doerrors.ErrReplicationLogging) {
//	    // object state and log diverged
//	}
//
// Context cancellation is never converted; it is wrapped so that
// errors.Is(err, context.Canceled) keeps working.
package errors
