package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// LocalLauncher starts processes on this machine.
type LocalLauncher struct{}

// Start implements Launcher.
//
// stdout and stderr are plain pipes owned by the caller, so Wait never closes
// them underneath a reader. On POSIX the child leads its own process group
// and Kill reaches every descendant still holding the pipes.
func (LocalLauncher) Start(ctx context.Context, cmd Command) (Process, error) {
	if len(cmd.Argv) == 0 {
		return nil, ErrNoCommand
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cmd.Dir != "" {
		if info, err := os.Stat(cmd.Dir); err != nil || !info.IsDir() {
			return nil, fmt.Errorf("invalid working directory: %s", cmd.Dir)
		}
	}

	c := exec.Command(cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env
	setProcessGroup(c)

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	c.Stdout = outW
	c.Stderr = errW

	if err := c.Start(); err != nil {
		outR.Close()
		outW.Close()
		errR.Close()
		errW.Close()
		return nil, &LaunchError{Argv0: cmd.Argv[0], Err: err}
	}

	// The child holds its own copies of the write ends.
	outW.Close()
	errW.Close()

	return &localProcess{cmd: c, stdout: outR, stderr: errR}, nil
}

type localProcess struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
}

func (p *localProcess) Stdout() io.ReadCloser { return p.stdout }

func (p *localProcess) Stderr() io.ReadCloser { return p.stderr }

func (p *localProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// ExitCode is -1 when the process was killed by a signal.
		return exitErr.ExitCode(), nil
	}
	return StatusInterrupted, err
}

func (p *localProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	err := killProcessTree(p.cmd.Process)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
