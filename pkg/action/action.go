// Package action runs one client tool command to completion and captures its
// outcome as a Result.
package action

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pterm/pterm"

	"github.com/CliForge/ocrun/pkg/command"
	"github.com/CliForge/ocrun/pkg/console"
	"github.com/CliForge/ocrun/pkg/locator"
	"github.com/CliForge/ocrun/pkg/runner"
	"github.com/CliForge/ocrun/pkg/secrets"
)

// goLogMarker identifies library log lines ("cached_discovery.go:87] ...")
// that some client tool versions print on stdout.
const goLogMarker = ".go:"

// Action is a configured command execution.
type Action struct {
	spec       *command.Spec
	runner     *runner.Runner
	dir        string
	env        []string
	family     locator.OSFamily
	sink       console.Sink
	prefix     string
	reference  map[string]string
	goLogLines bool
	logger     *pterm.Logger
}

// Option configures an Action.
type Option func(*Action)

// WithRunner sets the runner.
func WithRunner(r *runner.Runner) Option {
	return func(a *Action) { a.runner = r }
}

// WithDir sets the working directory.
func WithDir(dir string) Option {
	return func(a *Action) { a.dir = dir }
}

// WithEnv sets the process environment.
func WithEnv(env []string) Option {
	return func(a *Action) { a.env = env }
}

// WithOSFamily sets the OS of the execution host.
func WithOSFamily(f locator.OSFamily) Option {
	return func(a *Action) { a.family = f }
}

// WithConsole relays every output line to sink as "[prefix] line". An empty
// prefix disables relaying.
func WithConsole(sink console.Sink, prefix string) Option {
	return func(a *Action) {
		a.sink = sink
		a.prefix = strings.TrimSpace(prefix)
	}
}

// WithReference attaches auxiliary metadata, such as the content of files
// passed by name, to the result.
func WithReference(ref map[string]string) Option {
	return func(a *Action) { a.reference = ref }
}

// WithGoLogHeuristic controls whether stdout lines that look like Go library
// log output are moved to stderr. It is on by default.
func WithGoLogHeuristic(enabled bool) Option {
	return func(a *Action) { a.goLogLines = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *pterm.Logger) Option {
	return func(a *Action) { a.logger = l }
}

// New creates an action for spec.
func New(spec *command.Spec, opts ...Option) *Action {
	a := &Action{
		spec:       spec,
		family:     locator.Detect(),
		goLogLines: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = console.OrDiscard(a.logger)
	if a.runner == nil {
		a.runner = runner.New(runner.WithLogger(a.logger))
	}
	if a.reference == nil {
		a.reference = map[string]string{}
	}
	return a
}

// Execute runs the command. A non-zero exit is reported through
// Result.Status, not as an error. When the run itself fails the partial
// result is returned together with the error.
func (a *Action) Execute(ctx context.Context) (*Result, error) {
	if a.sink != nil && strings.HasPrefix(a.prefix, "start-build") {
		a.logger.Warn("the selector returned when --follow is passed to start-build is inoperative for selector operations; follow the build with logs instead")
	}

	result := &Result{
		Verb:       a.spec.Verb(),
		Cmd:        a.spec.String(true),
		Status:     runner.StatusInterrupted,
		Reference:  a.reference,
		Verbose:    a.spec.Verbose(),
		unredacted: a.spec.String(false),
	}

	argv, err := a.spec.Argv()
	if err != nil {
		return result, err
	}
	argv = locator.Resolve(ctx, argv, a.env, a.family, a.runner.Finder(), a.logger)

	redactor, err := secrets.NewRedactor(a.spec.Secrets(), secrets.DefaultValuePatterns(), "")
	if err != nil {
		return result, err
	}

	var (
		mu     sync.Mutex
		stdout strings.Builder
		stderr strings.Builder
	)
	appendLine := func(b *strings.Builder, line string) {
		mu.Lock()
		b.WriteString(line)
		b.WriteByte('\n')
		mu.Unlock()
	}

	onStdout := func(line string) (bool, error) {
		if a.goLogLines && strings.Contains(line, goLogMarker) {
			appendLine(&stderr, line)
		} else {
			appendLine(&stdout, line)
		}
		a.relay(redactor, line)
		return false, nil
	}
	onStderr := func(line string) (bool, error) {
		appendLine(&stderr, line)
		a.relay(redactor, line)
		return false, nil
	}

	status, runErr := a.runner.Run(ctx, runner.Command{Argv: argv, Dir: a.dir, Env: a.env}, onStdout, onStderr)

	result.Status = status
	result.Out = stdout.String()
	result.Err = stderr.String()

	if result.Verbose {
		a.logger.Info("verbose sub-step output", a.logger.Args(
			"command", result.Cmd,
			"status", result.Status,
			"stdout", redactor.Redact(result.Out),
			"stderr", redactor.Redact(result.Err),
			"reference", fmt.Sprint(result.Reference)))
	}

	if runErr != nil {
		return result, fmt.Errorf("failed to run %s: %w", result.Verb, runErr)
	}
	return result, nil
}

func (a *Action) relay(redactor *secrets.Redactor, line string) {
	if a.sink == nil || a.prefix == "" {
		return
	}
	a.sink.Line(a.prefix, redactor.Redact(line))
}
