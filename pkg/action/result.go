package action

import (
	"fmt"

	"github.com/CliForge/ocrun/pkg/secrets"
)

// Result is the outcome of one command execution. It is not modified after
// Execute returns.
type Result struct {
	Verb string
	// Cmd is the redacted command line.
	Cmd       string
	Out       string
	Err       string
	Status    int
	Reference map[string]string
	Verbose   bool

	unredacted string
}

// IsFailed reports a non-zero exit status.
func (r *Result) IsFailed() bool {
	return r.Status != 0
}

// UnredactedCommand returns the command line including the token. It is never
// part of ToMap or String.
func (r *Result) UnredactedCommand() string {
	return r.unredacted
}

// ToMap returns the shared representation. Stderr has secret data objects
// removed and the reference map is only included when verbose.
func (r *Result) ToMap() map[string]any {
	m := map[string]any{
		"verb":   r.Verb,
		"cmd":    r.Cmd,
		"out":    r.Out,
		"err":    secrets.RedactSensitiveData(r.Err),
		"status": r.Status,
	}
	if r.Verbose {
		m["reference"] = r.Reference
	}
	return m
}

func (r *Result) String() string {
	return fmt.Sprint(r.ToMap())
}

// FailIf returns a *FailedError carrying message when the result failed.
func (r *Result) FailIf(message string) error {
	if !r.IsFailed() {
		return nil
	}
	return &FailedError{Message: message, Result: r}
}

// FailedError reports a failed action.
type FailedError struct {
	Message string
	Result  *Result
}

func (e *FailedError) Error() string {
	return e.Message + "; action failed: " + e.Result.String()
}
