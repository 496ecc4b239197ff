package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/CliForge/ocrun/pkg/credentials"
	"github.com/CliForge/ocrun/pkg/output"
	"github.com/CliForge/ocrun/pkg/secrets"
)

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the bearer token",
	}

	cmd.AddCommand(newTokenInspectCmd(a))
	cmd.AddCommand(newTokenStoreCmd(a))
	cmd.AddCommand(newTokenDeleteCmd(a))
	return cmd
}

func newTokenInspectCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show where the token comes from and when it expires",
		Long: `Show where the token comes from and, for JWT tokens, its subject and
expiry. The signature is not verified and the token itself is never printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cluster := a.cfg.Cluster
			src, source, err := credentials.Resolve(credentials.Config{
				Token:          cluster.Token,
				TokenEnv:       cluster.TokenEnv,
				TokenFile:      cluster.TokenFile,
				KeyringService: cluster.Keyring.Service,
				KeyringUser:    cluster.Keyring.User,
			})
			if err != nil {
				return err
			}
			token, err := credentials.Token(src)
			if err != nil {
				return err
			}

			info := map[string]any{
				"source":      string(source),
				"fingerprint": secrets.MaskValue(token, secrets.StyleHash, 0),
				"jwt":         false,
			}
			claims, err := credentials.Inspect(token)
			switch {
			case err == nil:
				info["jwt"] = true
				info["subject"] = claims.Subject
				info["username"] = claims.Username
				info["issuer"] = claims.Issuer
				if !claims.ExpiresAt.IsZero() {
					info["expires"] = claims.ExpiresAt.Format(time.RFC3339)
					info["expired"] = claims.ExpiresAt.Before(time.Now())
				}
			case !errors.Is(err, credentials.ErrOpaqueToken):
				return err
			}

			m := output.NewManager()
			m.SetConfig(output.NewFormatConfig().WithColors(!a.cfg.Log.NoColor))
			return m.Format(a.out, info, format)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "table", "Print as json, yaml or table")
	return cmd
}

func newTokenStoreCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Read a token from stdin and store it in the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			service := a.cfg.Cluster.Keyring.Service
			if service == "" {
				return fmt.Errorf("--keyring-service is required")
			}

			token, err := readToken(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := credentials.Store(service, a.cfg.Cluster.Keyring.User, token); err != nil {
				return err
			}
			a.logger.Info("token stored", a.logger.Args("service", service))
			return nil
		},
	}
	return cmd
}

func newTokenDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Remove the token from the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			service := a.cfg.Cluster.Keyring.Service
			if service == "" {
				return fmt.Errorf("--keyring-service is required")
			}
			if err := credentials.Delete(service, a.cfg.Cluster.Keyring.User); err != nil {
				return err
			}
			a.logger.Info("token deleted", a.logger.Args("service", service))
			return nil
		},
	}
}

// readToken reads the first line of r.
func readToken(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("no token on stdin")
	}
	return line, nil
}
