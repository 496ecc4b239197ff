package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/CliForge/ocrun/pkg/config"
	"github.com/CliForge/ocrun/pkg/output"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}

	cmd.AddCommand(newConfigViewCmd(a))
	cmd.AddCommand(newConfigInitCmd(a))
	cmd.AddCommand(newConfigPathCmd(a))
	return cmd
}

func newConfigViewCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := output.NewManager()
			if format == "table" {
				return fmt.Errorf("config view supports json and yaml")
			}
			return m.Format(a.out, a.cfg.Redacted(), format)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "Print as json or yaml")
	return cmd
}

func newConfigInitCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		Args:  cobra.NoArgs,
		Annotations: map[string]string{
			annotationConfigOptional: "true",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.loader.ConfigPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("config file %s: %w", path, err)
			}

			if err := config.Save(a.cfg, path); err != nil {
				return err
			}
			a.logger.Info("config written", a.logger.Args("path", path))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func newConfigPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		Annotations: map[string]string{
			annotationConfigOptional: "true",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(a.out, a.loader.ConfigPath())
			return nil
		},
	}
}
