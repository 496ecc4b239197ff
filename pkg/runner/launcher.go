package runner

import (
	"context"
	"io"
)

// Command is one process to launch.
type Command struct {
	// Argv is the argument vector; Argv[0] is the executable.
	Argv []string

	// Dir is the working directory. Empty means the launcher default.
	Dir string

	// Env is the environment as KEY=VALUE pairs. Nil inherits the launcher
	// default environment.
	Env []string
}

// Process is a started child process.
type Process interface {
	// Stdout returns the read end of the child's stdout. Closing it forces
	// a blocked reader to return.
	Stdout() io.ReadCloser

	// Stderr returns the read end of the child's stderr.
	Stderr() io.ReadCloser

	// Wait blocks until the process exits and returns its exit status. A
	// non-zero exit is not an error; err reports a failure to wait.
	Wait() (status int, err error)

	// Kill forcibly terminates the process. It is safe to call more than
	// once and after exit.
	Kill() error
}

// Launcher starts processes on some execution host.
type Launcher interface {
	Start(ctx context.Context, cmd Command) (Process, error)
}
