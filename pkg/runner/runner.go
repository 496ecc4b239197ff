// Package runner executes the client tool as a child process and drains its
// stdout and stderr concurrently, handing every line to an observer.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
	"golang.org/x/sync/errgroup"

	"github.com/CliForge/ocrun/pkg/console"
	"github.com/CliForge/ocrun/pkg/locator"
)

// PoolSizeEnv overrides the default drain pool size.
const PoolSizeEnv = "OCRUN_RUNNER_POOL_SIZE"

// DefaultDrainGrace is how long drains may sit idle in a read after the
// process exits before their pipes are closed.
const DefaultDrainGrace = 2 * time.Second

// Observer receives one line of output, without its line terminator.
// Returning stop kills the process. Returning an error kills the process and
// fails the run. Observers for stdout and stderr run on different goroutines.
type Observer func(line string) (stop bool, err error)

// Runner runs commands through a Launcher.
type Runner struct {
	launcher Launcher
	pool     *Pool
	grace    time.Duration
	logger   *pterm.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLauncher sets where processes are started. The default is the local
// machine.
func WithLauncher(l Launcher) Option {
	return func(r *Runner) {
		if l != nil {
			r.launcher = l
		}
	}
}

// WithPool shares a drain pool between runners.
func WithPool(p *Pool) Option {
	return func(r *Runner) {
		r.pool = p
	}
}

// WithDrainGrace sets how long drains may wait for output after the process
// exits. Time spent inside observers does not count.
func WithDrainGrace(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.grace = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *pterm.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

var sharedPool = sync.OnceValue(func() *Pool {
	return NewPool(PoolSizeFromEnv())
})

// PoolSizeFromEnv returns the pool size from PoolSizeEnv, or DefaultPoolSize
// when unset or invalid.
func PoolSizeFromEnv() int {
	raw := strings.TrimSpace(os.Getenv(PoolSizeEnv))
	if raw == "" {
		return DefaultPoolSize
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return DefaultPoolSize
	}
	return n
}

// New creates a Runner. Without WithPool it uses a process-wide pool sized by
// PoolSizeFromEnv.
func New(opts ...Option) *Runner {
	r := &Runner{
		launcher: LocalLauncher{},
		grace:    DefaultDrainGrace,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pool == nil {
		r.pool = sharedPool()
	}
	r.logger = console.OrDiscard(r.logger)
	return r
}

// Finder returns the locator.Finder for the host the launcher starts
// processes on.
func (r *Runner) Finder() locator.Finder {
	if f, ok := r.launcher.(locator.Finder); ok {
		return f
	}
	return locator.Local{}
}

// Run starts cmd, feeds its output to the observers (either may be nil) and
// returns the exit status.
//
// Outcomes:
//   - the process exits: its status and a nil error
//   - an observer asks to stop: StatusInterrupted and a nil error
//   - ctx ends: StatusInterrupted and the context error
//   - an observer fails or a stream cannot be read: StatusInterrupted and
//     the failure
//
// The process is killed on every path that did not end with its own exit, and
// every goroutine started here has returned when Run does.
//
// Each drain holds one pool slot while it reads and gives it back while its
// observer runs, so an observer may call Run on the same pool.
func (r *Runner) Run(ctx context.Context, cmd Command, stdout, stderr Observer) (int, error) {
	if len(cmd.Argv) == 0 {
		return StatusInterrupted, ErrNoCommand
	}

	proc, err := r.launcher.Start(ctx, cmd)
	if err != nil {
		return StatusInterrupted, err
	}
	r.logger.Debug("client tool started", r.logger.Args("executable", cmd.Argv[0]))

	run := &execution{ctx: ctx, proc: proc, pool: r.pool, logger: r.logger}

	var drains errgroup.Group
	drains.Go(func() error { return run.drain("stdout", proc.Stdout(), stdout) })
	drains.Go(func() error { return run.drain("stderr", proc.Stderr(), stderr) })

	type exit struct {
		status int
		err    error
	}
	exited := make(chan exit, 1)
	go func() {
		status, err := proc.Wait()
		exited <- exit{status: status, err: err}
	}()

	canceled := false
	var res exit
	select {
	case res = <-exited:
	case <-ctx.Done():
		canceled = true
		run.kill()
		res = <-exited
	}

	drained := make(chan error, 1)
	go func() { drained <- drains.Wait() }()

	run.touch()
	grace := time.NewTimer(r.grace)
	defer grace.Stop()

	var drainErr error
wait:
	for {
		select {
		case drainErr = <-drained:
			break wait
		case <-grace.C:
			if remaining := run.idleRemaining(r.grace); remaining > 0 {
				grace.Reset(remaining)
				continue
			}
			r.logger.Debug("output still open after exit, closing pipes",
				r.logger.Args("executable", cmd.Argv[0]))
			run.forceClose()
			drainErr = <-drained
			break wait
		case <-ctx.Done():
			canceled = true
			run.forceClose()
			drainErr = <-drained
			break wait
		}
	}
	run.closeStreams()

	switch {
	case canceled:
		return StatusInterrupted, fmt.Errorf("command canceled: %w", ctx.Err())
	case run.failure() != nil:
		return StatusInterrupted, run.failure()
	case drainErr != nil:
		return StatusInterrupted, drainErr
	case run.interrupted.Load():
		return StatusInterrupted, nil
	case res.err != nil:
		return StatusInterrupted, fmt.Errorf("failed waiting for %s: %w", cmd.Argv[0], res.err)
	}

	r.logger.Debug("client tool exited", r.logger.Args("executable", cmd.Argv[0], "status", res.status))
	return res.status, nil
}

// execution is the state shared by the drains of one run.
type execution struct {
	ctx    context.Context
	proc   Process
	pool   *Pool
	logger *pterm.Logger

	// busy counts drains inside an observer or waiting for a pool slot;
	// lastActive is the UnixNano time a drain last read data or left an
	// observer.
	busy       atomic.Int32
	lastActive atomic.Int64

	killOnce  sync.Once
	closeOnce sync.Once

	// stopped ends observation on both streams; the drains keep reading so
	// the child never blocks on a full pipe before it dies.
	stopped     atomic.Bool
	interrupted atomic.Bool
	forced      atomic.Bool

	mu  sync.Mutex
	err error
}

func (e *execution) kill() {
	e.killOnce.Do(func() {
		if err := e.proc.Kill(); err != nil {
			e.logger.Warn("failed to kill client tool", e.logger.Args("error", err.Error()))
		}
	})
}

func (e *execution) fail(err error) {
	e.mu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.mu.Unlock()

	e.stopped.Store(true)
	e.kill()
}

func (e *execution) failure() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *execution) interrupt() {
	e.interrupted.Store(true)
	e.stopped.Store(true)
	e.kill()
}

// forceClose closes the read ends so drains blocked on descendants that still
// hold the pipes return.
func (e *execution) forceClose() {
	e.forced.Store(true)
	e.closeStreams()
}

func (e *execution) closeStreams() {
	e.closeOnce.Do(func() {
		e.proc.Stdout().Close()
		e.proc.Stderr().Close()
	})
}

func (e *execution) touch() {
	e.lastActive.Store(time.Now().UnixNano())
}

// idleRemaining returns how much longer the drains must stay idle before
// their pipes may be closed, or zero once they have been idle for grace.
func (e *execution) idleRemaining(grace time.Duration) time.Duration {
	if e.busy.Load() > 0 {
		return grace
	}
	idle := time.Since(time.Unix(0, e.lastActive.Load()))
	if idle >= grace {
		return 0
	}
	return grace - idle
}

func (e *execution) acquire() error {
	e.busy.Add(1)
	defer func() {
		e.busy.Add(-1)
		e.touch()
	}()
	return e.pool.Acquire(e.ctx, 1)
}

func (e *execution) drain(stream string, r io.Reader, obs Observer) error {
	if err := e.acquire(); err != nil {
		e.kill()
		return fmt.Errorf("waiting for a drain slot: %w", err)
	}
	held := true
	defer func() {
		if held {
			e.pool.Release(1)
		}
	}()

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			e.touch()
			if obs != nil && !e.stopped.Load() {
				e.pool.Release(1)
				held = false
				e.deliver(stream, trimEOL(line), obs)
				if err := e.acquire(); err != nil {
					e.kill()
					return fmt.Errorf("waiting for a drain slot: %w", err)
				}
				held = true
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || e.forced.Load() {
			return nil
		}
		e.kill()
		return &DrainError{Stream: stream, Err: err}
	}
}

func (e *execution) deliver(stream, line string, obs Observer) {
	e.busy.Add(1)
	defer func() {
		e.busy.Add(-1)
		e.touch()
	}()

	stop, err := observe(obs, line)
	if err != nil {
		e.fail(&ObserverError{Stream: stream, Err: err})
		return
	}
	if stop {
		e.interrupt()
	}
}

// observe calls obs, turning a panic into an error.
func observe(obs Observer, line string) (stop bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return obs(line)
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
