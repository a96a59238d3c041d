// Package shelferrors defines the typed error kinds used across the
// acquisition pipeline.
package shelferrors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error classes used across the pipeline.
type Kind string

const (
	// AuthFailed means a JSON endpoint returned HTML, or the upstream
	// replied 401/403. Fatal to the entire job.
	AuthFailed Kind = "auth_failed"
	// TransportError means a timeout, connection reset, or 5xx survived
	// retries. Fatal to the current book only. Failures writing the cookie
	// or progress file are logged by the job controller and do not stop
	// the job.
	TransportError Kind = "transport_error"
	// ParseError means malformed JSON or unparseable HTML on a resource
	// that can't be skipped. Fatal to the current book.
	ParseError Kind = "parse_error"
	// ValidationRejected means a search result failed the relevance
	// filter. Never an error a caller should surface; dropped silently.
	ValidationRejected Kind = "validation_rejected"
	// AssetMissing means an image or stylesheet failed after retries.
	// Logged and skipped; the book still builds.
	AssetMissing Kind = "asset_missing"
	// ResumeConflict means a progress file names a session format newer
	// than the running code understands. Fatal to the job.
	ResumeConflict Kind = "resume_conflict"
)

// shelfErr is the concrete error type carrying a Kind.
type shelfErr struct {
	kind Kind
	msg  string
	err  error
}

func (e *shelfErr) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *shelfErr) Unwrap() error { return e.err }

// New creates an error of the given kind with a message.
func New(kind Kind, msg string) error {
	return &shelfErr{kind: kind, msg: msg}
}

// Wrap creates an error of the given kind wrapping a cause.
func Wrap(kind Kind, msg string, cause error) error {
	return &shelfErr{kind: kind, msg: msg, err: cause}
}

// Classify walks the error chain and returns the first Kind found, or ""
// if none of the wrapped errors carry one.
func Classify(err error) Kind {
	var se *shelfErr
	if errors.As(err, &se) {
		return se.kind
	}
	return ""
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return Classify(err) == kind
}

// Fatal reports whether an error kind is fatal to the entire job rather
// than just the book currently being processed.
func Fatal(kind Kind) bool {
	return kind == AuthFailed || kind == ResumeConflict
}
