package watch

import (
	"errors"
	"fmt"
)

// ErrTransient marks a body failure caused by a race between the watched
// resource changing and the client tool reading it, typically half-written
// JSON. Such failures are retried a bounded number of times.
var ErrTransient = errors.New("transient watch body failure")

// Transient wraps err so errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() []error { return []error{ErrTransient, e.err} }

// ExitError reports a watch process that exited non-zero before the body
// signalled success.
type ExitError struct {
	Status int
	// Command is the redacted command line.
	Command string
	Stderr  string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("client tool exited with status code %d, command: %s, stderr: %s",
		e.Status, e.Command, e.Stderr)
}
