package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CliForge/ocrun/pkg/action"
	"github.com/CliForge/ocrun/pkg/command"
	"github.com/CliForge/ocrun/pkg/output"
)

// actionFlags are shared by every command that runs the client tool once.
type actionFlags struct {
	output     string
	prefix     string
	failMsg    string
	options    []string
	references []string
	message    string
}

func (f *actionFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Print the result as json, yaml or table instead of raw output")
	cmd.Flags().StringVar(&f.prefix, "prefix", "", "Stream output live to stderr tagged with this prefix")
	cmd.Flags().StringVar(&f.failMsg, "fail-message", "", "Message reported when the client tool fails")
	cmd.Flags().StringArrayVar(&f.options, "option", nil, "Trailing option passed after all arguments (repeatable)")
	cmd.Flags().StringArrayVar(&f.references, "reference", nil, "Attach NAME=FILE content to the verbose result (repeatable)")
	cmd.Flags().StringVar(&f.message, "message", "", "Summary printed on success, e.g. '{verb} exited with {status}'")
}

func newExecCmd(a *app) *cobra.Command {
	var flags actionFlags

	cmd := &cobra.Command{
		Use:   "exec VERB [ARGS...]",
		Short: "Run one client tool verb",
		Long: `Run one client tool verb with the configured connection flags.

The command line is logged with the token redacted. A non-zero exit of the
client tool makes ocrun exit with the same status.`,
		Example: `  ocrun exec get pods -- -o name
  ocrun exec rollout -o json -- latest dc/web`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runVariant(cmd, command.Variant{
				Kind: command.KindRaw,
				Verb: args[0],
				Args: args[1:],
			}, flags)
		},
	}

	flags.bind(cmd)
	return cmd
}

func newApplyCmd(a *app, verb string) *cobra.Command {
	var (
		flags actionFlags
		files []string
	)

	kind := command.KindApply
	if verb == "create" {
		kind = command.KindCreate
	}

	cmd := &cobra.Command{
		Use:   verb + " -f FILE... [ARGS...]",
		Short: fmt.Sprintf("Run %s with manifest files", verb),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runVariant(cmd, command.Variant{
				Kind:  kind,
				Files: files,
				Args:  args,
			}, flags)
		},
	}

	cmd.Flags().StringArrayVarP(&files, "filename", "f", nil, "Manifest file (repeatable)")
	_ = cmd.MarkFlagRequired("filename")
	flags.bind(cmd)
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var (
		flags    actionFlags
		selector string
	)

	cmd := &cobra.Command{
		Use:   "delete [RESOURCE...]",
		Short: "Delete resources by name or selector",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runVariant(cmd, command.Variant{
				Kind:      command.KindDelete,
				Resources: args,
				Selector:  selector,
			}, flags)
		},
	}

	cmd.Flags().StringVarP(&selector, "selector", "l", "", "Label selector")
	flags.bind(cmd)
	return cmd
}

func newProcessCmd(a *app) *cobra.Command {
	var (
		flags  actionFlags
		params []string
	)

	cmd := &cobra.Command{
		Use:   "process TEMPLATE [ARGS...]",
		Short: "Render a template with parameters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runVariant(cmd, command.Variant{
				Kind:      command.KindProcess,
				Resources: args[:1],
				Params:    params,
				Args:      args[1:],
			}, flags)
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Template parameter NAME=value (repeatable)")
	flags.bind(cmd)
	return cmd
}

func newLogsCmd(a *app) *cobra.Command {
	var (
		flags  actionFlags
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "logs RESOURCE [ARGS...]",
		Short: "Print the logs of a resource",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runVariant(cmd, command.Variant{
				Kind:      command.KindLogs,
				Resources: args[:1],
				Follow:    follow,
				Args:      args[1:],
			}, flags)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "F", false, "Stream logs until the resource finishes")
	flags.bind(cmd)
	return cmd
}

func newStartBuildCmd(a *app) *cobra.Command {
	var (
		flags  actionFlags
		follow bool
		wait   bool
	)

	cmd := &cobra.Command{
		Use:   "start-build BUILDCONFIG [ARGS...]",
		Short: "Start a build from a build config",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runVariant(cmd, command.Variant{
				Kind:      command.KindStartBuild,
				Resources: args[:1],
				Follow:    follow,
				Wait:      wait,
				Args:      args[1:],
			}, flags)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "F", false, "Stream the build log")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the build to finish")
	flags.bind(cmd)
	return cmd
}

// runVariant executes v once and reports the result.
func (a *app) runVariant(cmd *cobra.Command, v command.Variant, flags actionFlags) error {
	formats := output.NewManager()
	if flags.output != "" {
		if err := formats.Validate(flags.output); err != nil {
			return err
		}
	}
	formats.SetConfig(output.NewFormatConfig().WithColors(!a.cfg.Log.NoColor))

	reference, err := readReferences(flags.references)
	if err != nil {
		return err
	}

	conn, err := a.connection()
	if err != nil {
		return err
	}
	v.Options = append(v.Options, flags.options...)
	spec, err := v.Spec(conn)
	if err != nil {
		return err
	}

	opts := []action.Option{
		action.WithRunner(a.runner()),
		action.WithDir(a.dir),
		action.WithEnv(a.env()),
		action.WithOSFamily(a.family()),
		action.WithReference(reference),
		action.WithGoLogHeuristic(a.cfg.Action.GoLogHeuristic),
		action.WithLogger(a.logger),
	}
	if flags.prefix != "" {
		opts = append(opts, action.WithConsole(a.sink(), flags.prefix))
	}

	a.logger.Debug("running client tool", a.logger.Args("command", spec.String(true)))
	result, err := action.New(spec, opts...).Execute(cmd.Context())
	if err != nil {
		return err
	}

	if flags.output != "" {
		if err := formats.Format(a.out, result.ToMap(), flags.output); err != nil {
			return err
		}
	} else if flags.prefix == "" {
		_, _ = io.WriteString(a.out, result.Out)
		_, _ = io.WriteString(a.errOut, result.Err)
	}

	failMsg := flags.failMsg
	if failMsg == "" {
		failMsg = fmt.Sprintf("%s failed", result.Verb)
	}
	if err := result.FailIf(failMsg); err != nil {
		return &exitCodeError{code: result.Status, err: err}
	}

	if flags.message != "" {
		msg, err := output.NewTemplateEngine().Render(flags.message, result.ToMap())
		if err != nil {
			return err
		}
		fmt.Fprintln(a.errOut, msg)
	}
	return nil
}

// readReferences reads NAME=FILE pairs into a name to content map.
func readReferences(pairs []string) (map[string]string, error) {
	reference := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, path, ok := strings.Cut(pair, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("invalid reference %q, expected NAME=FILE", pair)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read reference %s: %w", name, err)
		}
		reference[name] = string(data)
	}
	return reference, nil
}
