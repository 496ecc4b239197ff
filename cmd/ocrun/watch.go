package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/CliForge/ocrun/pkg/command"
	"github.com/CliForge/ocrun/pkg/condition"
	"github.com/CliForge/ocrun/pkg/output"
	"github.com/CliForge/ocrun/pkg/watch"
)

const defaultWatchMessage = "condition met after {iteration} observations"

func newWatchCmd(a *app) *cobra.Command {
	var (
		selector string
		template string
		until    string
		poll     bool
		timeout  time.Duration
		prefix   string
		message  string
		options  []string
	)

	cmd := &cobra.Command{
		Use:   "watch KIND... --until EXPR",
		Short: "Watch resources until a condition over the output holds",
		Long: `Watch resources with the client tool and evaluate an expression against
the watch output after every change.

The expression sees output, new, lines, last and iteration, plus the helpers
fromJSON(string) and count(string, substring). The watch ends when the
expression is true, the client tool fails or the timeout expires. A watch
command that exits cleanly is restarted with a growing delay.`,
		Example: `  ocrun watch pods -l app=web --until 'count(output, "Running") >= 3'
  ocrun watch dc/web --template 'jsonpath={.status.readyReplicas}' --until 'last == "2"' --poll`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cond, err := condition.Compile(until)
			if err != nil {
				return err
			}

			conn, err := a.connection()
			if err != nil {
				return err
			}
			spec, err := command.Variant{
				Kind:      command.KindWatch,
				Resources: args,
				Selector:  selector,
				Template:  template,
				Options:   options,
			}.Spec(conn)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			opts := []watch.Option{
				watch.WithRunner(a.runner()),
				watch.WithConfig(a.watchConfig()),
				watch.WithDir(a.dir),
				watch.WithEnv(a.env()),
				watch.WithOSFamily(a.family()),
				watch.WithLogger(a.logger),
			}
			if prefix != "" {
				opts = append(opts, watch.WithSink(a.sink(), prefix))
			}
			w := watch.New(spec, opts...)

			progress := newWatchProgress(a, prefix == "", strings.Join(args, ","))
			progress.start()
			defer progress.stop()

			var last watch.Observation
			body := func(ctx context.Context, obs watch.Observation) (bool, error) {
				last = obs
				progress.update(obs.Iteration)
				return cond.Evaluate(obs)
			}

			a.logger.Debug("starting watch", a.logger.Args(
				"command", spec.String(true), "condition", cond.String(), "poll", poll))

			if poll {
				err = w.Poll(ctx, body)
			} else {
				err = w.Watch(ctx, body)
			}
			progress.stop()
			if err != nil {
				return fmt.Errorf("watch of %s failed: %w", strings.Join(args, ","), err)
			}

			msg, err := output.NewTemplateEngine().Render(message, map[string]any{
				"iteration": last.Iteration,
				"last":      lastNonEmpty(last.Output),
				"condition": cond.String(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, msg)
			return nil
		},
	}

	cmd.Flags().StringVarP(&selector, "selector", "l", "", "Label selector")
	cmd.Flags().StringVar(&template, "template", "", "Output template evaluated per object (default "+command.DefaultWatchTemplate+")")
	cmd.Flags().StringVar(&until, "until", "", "Expression that ends the watch when true")
	cmd.Flags().BoolVar(&poll, "poll", false, "Capture output to a file and poll it instead of streaming")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this duration (0 waits forever)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Stream watch output live to stderr tagged with this prefix")
	cmd.Flags().StringVar(&message, "message", defaultWatchMessage, "Message printed on success; supports {iteration}, {last}, {condition} and {{expressions}}")
	cmd.Flags().StringArrayVar(&options, "option", nil, "Trailing option passed after all arguments (repeatable)")
	_ = cmd.MarkFlagRequired("until")

	return cmd
}

// watchProgress shows a spinner on stderr while a watch is waiting.
type watchProgress struct {
	s       *spinner.Spinner
	subject string
	enabled bool
}

func newWatchProgress(a *app, enabled bool, subject string) *watchProgress {
	s := spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(a.errOut))
	if !a.cfg.Log.NoColor {
		_ = s.Color("cyan")
	}
	return &watchProgress{s: s, subject: subject, enabled: enabled}
}

func (p *watchProgress) start() {
	if !p.enabled {
		return
	}
	p.s.Suffix = fmt.Sprintf(" watching %s", p.subject)
	p.s.Start()
}

func (p *watchProgress) update(iteration int) {
	if !p.enabled {
		return
	}
	p.s.Lock()
	p.s.Suffix = fmt.Sprintf(" watching %s (%d observations)", p.subject, iteration)
	p.s.Unlock()
}

func (p *watchProgress) stop() {
	if p.enabled {
		p.s.Stop()
	}
}

func lastNonEmpty(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\r\n"), "\n")
	return lines[len(lines)-1]
}
