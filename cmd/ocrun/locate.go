package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CliForge/ocrun/pkg/locator"
	"github.com/CliForge/ocrun/pkg/output"
)

func newLocateCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "locate [TOOL]",
		Short: "List the client tool executables on the search path of the execution host",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tool := a.cfg.Tool.Name
			if len(args) == 1 {
				tool = args[0]
			}

			family := a.family()
			found, err := a.runner().Finder().Find(cmd.Context(), tool, a.cfg.Tool.SearchPath, family)
			if err != nil {
				return err
			}
			if len(found) == 0 {
				return fmt.Errorf("%w: %s is not on the search path", locator.ErrToolNotFound, locator.ExecutableName(tool, family))
			}

			if format == "" {
				for _, path := range found {
					fmt.Fprintln(a.out, path)
				}
				return nil
			}

			rows := make([]map[string]any, len(found))
			for i, path := range found {
				rows[i] = map[string]any{"rank": i + 1, "path": path}
			}
			m := output.NewManager()
			m.SetConfig(output.NewFormatConfig().WithColors(!a.cfg.Log.NoColor))
			return m.Format(a.out, rows, format)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "", "Print as json, yaml or table")
	return cmd
}
