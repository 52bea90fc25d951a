// Package services contains domain business logic.
package services

import (
	"errors"
	"fmt"
)

// ErrStateStore wraps storage commit failures. A failed commit is fatal for
// the current operation; the previous consistent state remains
// authoritative.
var ErrStateStore = errors.New("state store failure")

// InputError reports malformed user input (unreadable chapter file, empty
// text). It is surfaced directly and leaves the chapter unprocessed.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

// NewInputError builds an InputError with a formatted message.
func NewInputError(format string, args ...any) *InputError {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// BackendError reports a failed external backend call after retries were
// exhausted. Extraction failures skip the chapter; synthesis and generation
// failures degrade the affected unit instead of aborting the chapter.
type BackendError struct {
	Stage    string // extraction, synthesis, generation, assembly
	Backend  string
	Attempts int
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend %s failed after %d attempts: %v", e.Stage, e.Backend, e.Attempts, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsInputError reports whether err is an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
