// Package watch runs a watch command and evaluates a caller-supplied body
// against its output until the body reports success, the command fails, or
// the context ends.
//
// Two variants exist. Watch streams: every stdout line of the watch command
// triggers a body invocation while the drain waits for the verdict. Poll
// captures output into a session file and re-reads it on a backoff schedule,
// invoking the body once even before any output exists.
//
// In both, a clean exit without success re-launches the command after a
// growing delay, and a non-zero exit fails the watch with an *ExitError.
// Body invocations of one session are strictly sequential and run on the
// caller's goroutine, so a body may itself run further commands.
package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/CliForge/ocrun/pkg/command"
	"github.com/CliForge/ocrun/pkg/console"
	"github.com/CliForge/ocrun/pkg/locator"
	"github.com/CliForge/ocrun/pkg/runner"
	"github.com/CliForge/ocrun/pkg/secrets"
)

const (
	// DefaultMaxTransientRetries bounds how often a session retries body
	// invocations that fail with ErrTransient.
	DefaultMaxTransientRetries = 5

	stderrMax  = 64 * 1024
	stderrTrim = 32 * 1024
)

// Observation is what a body sees on each invocation.
type Observation struct {
	// Output is the retained output of the session, oldest first.
	Output string
	// New is the output observed since the previous invocation.
	New string
	// Lines splits New into lines.
	Lines []string
	// Iteration counts invocations, starting at 1.
	Iteration int
}

// Body decides whether the watch is done. Returning true ends the watch
// successfully. An error wrapping ErrTransient is retried; any other error
// fails the watch.
type Body func(ctx context.Context, obs Observation) (bool, error)

// Config holds the timing and buffering policy.
type Config struct {
	// Floor, Cap and Multiplier shape the idle poll interval.
	Floor      time.Duration
	Cap        time.Duration
	Multiplier float64
	// Reset is the poll interval after new output arrived.
	Reset time.Duration
	// Rewatch is the first delay before re-launching a watch command that
	// exited cleanly. It grows by Multiplier up to Cap.
	Rewatch time.Duration

	MaxTransientRetries int

	BufferMax  int
	BufferTrim int
}

// DefaultConfig returns the standard policy: 250ms floor, 10s cap, x1.2 per
// idle cycle, 1s after new output, 5 transient retries, 200KB retained output
// trimmed 100KB at a time.
func DefaultConfig() Config {
	return Config{
		Floor:               250 * time.Millisecond,
		Cap:                 10 * time.Second,
		Multiplier:          1.2,
		Reset:               time.Second,
		Rewatch:             250 * time.Millisecond,
		MaxTransientRetries: DefaultMaxTransientRetries,
		BufferMax:           BufferMax,
		BufferTrim:          BufferTrim,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Floor <= 0 {
		c.Floor = d.Floor
	}
	if c.Cap <= 0 {
		c.Cap = d.Cap
	}
	if c.Cap < c.Floor {
		c.Cap = c.Floor
	}
	if c.Multiplier < 1.0 {
		c.Multiplier = d.Multiplier
	}
	if c.Reset <= 0 {
		c.Reset = d.Reset
	}
	if c.Rewatch <= 0 {
		c.Rewatch = d.Rewatch
	}
	if c.MaxTransientRetries < 0 {
		c.MaxTransientRetries = 0
	}
	if c.BufferMax <= 0 {
		c.BufferMax = d.BufferMax
	}
	if c.BufferTrim <= 0 || c.BufferTrim > c.BufferMax {
		c.BufferTrim = c.BufferMax / 2
	}
	return c
}

// Watcher runs one watch command.
type Watcher struct {
	spec     *command.Spec
	runner   *runner.Runner
	dir      string
	env      []string
	family   locator.OSFamily
	sink     console.Sink
	label    string
	logger   *pterm.Logger
	redactor *secrets.Redactor
	cfg      Config
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithRunner sets the runner used to launch the watch command.
func WithRunner(r *runner.Runner) Option {
	return func(w *Watcher) { w.runner = r }
}

// WithConfig sets the timing and buffering policy. Zero fields keep their
// defaults.
func WithConfig(cfg Config) Option {
	return func(w *Watcher) { w.cfg = cfg }
}

// WithDir sets the working directory of the watch command.
func WithDir(dir string) Option {
	return func(w *Watcher) { w.dir = dir }
}

// WithEnv sets the environment of the watch command.
func WithEnv(env []string) Option {
	return func(w *Watcher) { w.env = env }
}

// WithOSFamily sets the OS of the execution host, used to locate the tool.
func WithOSFamily(f locator.OSFamily) Option {
	return func(w *Watcher) { w.family = f }
}

// WithSink relays every output line, tagged with label.
func WithSink(sink console.Sink, label string) Option {
	return func(w *Watcher) {
		w.sink = sink
		w.label = label
	}
}

// WithLogger sets the logger.
func WithLogger(l *pterm.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a Watcher for spec, typically built from a command.KindWatch
// variant.
func New(spec *command.Spec, opts ...Option) *Watcher {
	w := &Watcher{
		spec:   spec,
		family: locator.Detect(),
		cfg:    DefaultConfig(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.cfg = w.cfg.withDefaults()
	w.logger = console.OrDiscard(w.logger)
	if w.runner == nil {
		w.runner = runner.New(runner.WithLogger(w.logger))
	}

	redactor, err := secrets.NewRedactor(spec.Secrets(), secrets.DefaultValuePatterns(), "")
	if err != nil {
		w.logger.Warn("output masking disabled", w.logger.Args("error", err.Error()))
	}
	w.redactor = redactor
	return w
}

// Watch runs the streaming variant until the body succeeds or the watch
// fails.
func (w *Watcher) Watch(ctx context.Context, body Body) error {
	if body == nil {
		return fmt.Errorf("watch body is required")
	}
	sess := newSession(w.cfg)
	return w.loop(ctx, sess, "stream", func(argv []string, stderr *Buffer) (int, error) {
		return w.streamOnce(ctx, sess, argv, body, stderr)
	})
}

type launchFunc func(argv []string, stderr *Buffer) (int, error)

type runResult struct {
	status int
	err    error
}

// loop launches the watch command until a terminal state.
func (w *Watcher) loop(ctx context.Context, sess *Session, mode string, once launchFunc) error {
	argv, err := w.argv(ctx)
	if err != nil {
		return err
	}

	w.logger.Info("entering watch", w.logger.Args(
		"session", sess.id,
		"mode", mode,
		"command", w.spec.String(true)))

	rewatch := NewBackoff(w.cfg.Rewatch, w.cfg.Cap, w.cfg.Multiplier, w.cfg.Rewatch)
	for {
		stderr := NewBuffer(stderrMax, stderrTrim)
		status, err := once(argv, stderr)
		if err != nil {
			return err
		}

		if sess.success {
			w.logger.Info("watch complete", w.logger.Args("session", sess.id, "iterations", sess.iteration))
			return nil
		}

		if status != 0 {
			return &ExitError{
				Status:  status,
				Command: w.spec.String(true),
				Stderr:  w.redactor.Redact(strings.TrimSpace(stderr.String())),
			}
		}

		delay := rewatch.Next()
		w.logger.Debug("watch command exited, running it again",
			w.logger.Args("session", sess.id, "delay", delay.String()))
		if err := sleep(ctx, delay); err != nil {
			return interrupted(err)
		}
	}
}

type delivery struct {
	line  string
	reply chan bool
}

// streamOnce runs the watch command once, invoking the body for every stdout
// line. The drain blocks until the body returns, so lines are never queued.
func (w *Watcher) streamOnce(ctx context.Context, sess *Session, argv []string, body Body, stderr *Buffer) (int, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan delivery)
	done := make(chan runResult, 1)

	go func() {
		status, err := w.runner.Run(runCtx, w.command(argv),
			func(line string) (bool, error) {
				w.relay(line)
				reply := make(chan bool, 1)
				select {
				case lines <- delivery{line: line, reply: reply}:
				case <-runCtx.Done():
					return true, nil
				}
				select {
				case stop := <-reply:
					return stop, nil
				case <-runCtx.Done():
					return true, nil
				}
			},
			w.stderrObserver(stderr))
		done <- runResult{status: status, err: err}
	}()

	var bodyErr error
	for {
		select {
		case d := <-lines:
			if bodyErr != nil || sess.success {
				d.reply <- true
				continue
			}

			fresh := d.line + "\n"
			sess.record(fresh)
			ok, err := w.invoke(ctx, sess, body, fresh)
			switch {
			case err != nil:
				bodyErr = err
				d.reply <- true
			case ok:
				sess.success = true
				d.reply <- true
			default:
				d.reply <- false
			}

		case res := <-done:
			return w.settle(ctx, sess, res, bodyErr)
		}
	}
}

// settle turns the outcome of one launch into the loop's view of it.
func (w *Watcher) settle(ctx context.Context, sess *Session, res runResult, bodyErr error) (int, error) {
	switch {
	case bodyErr != nil:
		return runner.StatusInterrupted, bodyErr
	case sess.success:
		return res.status, nil
	case ctx.Err() != nil:
		return runner.StatusInterrupted, interrupted(ctx.Err())
	case res.err != nil:
		return res.status, fmt.Errorf("watch command failed: %w", res.err)
	}
	return res.status, nil
}

// invoke runs the body once, retrying transient failures. The retry count is
// kept for the whole session.
func (w *Watcher) invoke(ctx context.Context, sess *Session, body Body, fresh string) (bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return false, interrupted(err)
		}

		sess.iteration++
		w.logger.Debug("running watch body", w.logger.Args("session", sess.id, "iteration", sess.iteration))

		ok, err := callBody(ctx, body, sess.observation(fresh))
		if err == nil {
			if ok {
				w.logger.Info("watch body returned true, terminating watch", w.logger.Args("session", sess.id))
			}
			return ok, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, interrupted(errors.Join(ctxErr, err))
		}

		if errors.Is(err, ErrTransient) && sess.retries < w.cfg.MaxTransientRetries {
			sess.retries++
			w.logger.Warn("watch body hit a transient failure, trying again", w.logger.Args(
				"session", sess.id,
				"retry", sess.retries,
				"error", err.Error()))
			if err := sleep(ctx, w.cfg.Floor); err != nil {
				return false, interrupted(err)
			}
			continue
		}

		w.logger.Error("watch body failed", w.logger.Args("session", sess.id, "error", err.Error()))
		return false, fmt.Errorf("watch body failed: %w", err)
	}
}

// callBody calls body, turning a panic into an error.
func callBody(ctx context.Context, body Body, obs Observation) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("watch body panicked: %v", rec)
		}
	}()
	return body(ctx, obs)
}

func (w *Watcher) argv(ctx context.Context) ([]string, error) {
	argv, err := w.spec.Argv()
	if err != nil {
		return nil, err
	}
	return locator.Resolve(ctx, argv, w.env, w.family, w.runner.Finder(), w.logger), nil
}

func (w *Watcher) command(argv []string) runner.Command {
	return runner.Command{Argv: argv, Dir: w.dir, Env: w.env}
}

func (w *Watcher) relay(line string) {
	if w.sink != nil {
		w.sink.Line(w.label, w.redactor.Redact(line))
	}
	if w.spec.Verbose() {
		w.logger.Trace("watch output", w.logger.Args("line", w.redactor.Redact(line)))
	}
}

func (w *Watcher) stderrObserver(stderr *Buffer) runner.Observer {
	return func(line string) (bool, error) {
		stderr.Append(line + "\n")
		if w.sink != nil {
			w.sink.Line(w.label, w.redactor.Redact(line))
		}
		w.logger.Debug("watch error output", w.logger.Args("line", w.redactor.Redact(line)))
		return false, nil
	}
}

func interrupted(err error) error {
	return fmt.Errorf("watch interrupted: %w", err)
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
