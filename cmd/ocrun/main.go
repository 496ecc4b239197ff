// Package main implements the ocrun CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	version = "0.1.0"
	// BuildDate is set at build time
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(newApp()).ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var exit *exitCodeError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ocrun",
		Short: "ocrun - run the cluster client tool safely from automation",
		Long: `ocrun wraps the cluster client tool (oc by default) for automation jobs.

It builds the command line from configuration, keeps bearer tokens out of
every log line, captures output and waits on watch commands until a
condition over their output holds.`,
		Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	a.bindGlobalFlags(cmd)

	cmd.AddCommand(newExecCmd(a))
	cmd.AddCommand(newApplyCmd(a, "apply"))
	cmd.AddCommand(newApplyCmd(a, "create"))
	cmd.AddCommand(newDeleteCmd(a))
	cmd.AddCommand(newProcessCmd(a))
	cmd.AddCommand(newLogsCmd(a))
	cmd.AddCommand(newStartBuildCmd(a))
	cmd.AddCommand(newWatchCmd(a))
	cmd.AddCommand(newLocateCmd(a))
	cmd.AddCommand(newTokenCmd(a))
	cmd.AddCommand(newConfigCmd(a))

	return cmd
}

// exitCodeError carries the client tool's exit status out of main.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }

func (e *exitCodeError) Unwrap() error { return e.err }
