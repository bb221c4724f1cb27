// Package errors provides standardized error handling patterns for rakan-backend components.
//
// # Overview
//
// The errors package implements a three-class error classification system for
// the event pipeline and its collaborators: Transient (temporary, retryable),
// Invalid (bad input, non-retryable), and Fatal (unrecoverable, stop
// processing).
//
// The pipeline leans on this classification to decide which failures are
// recovered locally (decision-source outages become fallback decisions,
// publish failures become warnings) and which short-circuit an invocation
// (invalid events). Components never match on error strings; they match on
// sentinel values and classes.
//
// # Quick Start
//
// Use standard error variables for known conditions:
//
//	if state == nil {
//	    return errors.ErrKeyNotFound
//	}
//
// Wrap errors with component context:
//
//	if err := store.Put(ctx, state); err != nil {
//	    return errors.WrapTransient(err, "Pipeline", "Handle", "write device state")
//	}
//
// Check classification for handling decisions:
//
//	if errors.IsTransient(err) {
//	    // record a warning, continue the invocation
//	}
package errors
