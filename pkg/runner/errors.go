package runner

import (
	"errors"
	"fmt"
)

// StatusInterrupted is returned when the process was stopped by an observer,
// by cancellation, or by a failure before an exit status existed.
const StatusInterrupted = -1

// ErrNoCommand is returned for an empty argument vector.
var ErrNoCommand = errors.New("command is required")

// LaunchError reports a failure to start the child process.
type LaunchError struct {
	Argv0 string
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Argv0, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// DrainError reports an I/O failure reading one of the child's streams.
type DrainError struct {
	Stream string
	Err    error
}

func (e *DrainError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Stream, e.Err)
}

func (e *DrainError) Unwrap() error { return e.Err }

// ObserverError reports an observer that failed or panicked.
type ObserverError struct {
	Stream string
	Err    error
}

func (e *ObserverError) Error() string {
	return fmt.Sprintf("%s observer failed: %v", e.Stream, e.Err)
}

func (e *ObserverError) Unwrap() error { return e.Err }
