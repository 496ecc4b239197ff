package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/CliForge/ocrun/pkg/command"
	"github.com/CliForge/ocrun/pkg/config"
	"github.com/CliForge/ocrun/pkg/console"
	"github.com/CliForge/ocrun/pkg/credentials"
	"github.com/CliForge/ocrun/pkg/locator"
	"github.com/CliForge/ocrun/pkg/runner"
	"github.com/CliForge/ocrun/pkg/secrets"
	"github.com/CliForge/ocrun/pkg/watch"
)

// annotationConfigOptional marks commands that run without an existing
// config file.
const annotationConfigOptional = "ocrun/config-optional"

// tokenExpiryWarning is how close to expiry a token triggers a warning.
const tokenExpiryWarning = 5 * time.Minute

// app is the state shared by every command: flags, loaded config and the
// logger.
type app struct {
	out    io.Writer
	errOut io.Writer

	configFile string
	dir        string
	ssh        sshFlags

	cfg    *config.Config
	loader *config.Loader
	logger *pterm.Logger
}

type sshFlags struct {
	host       string
	user       string
	key        string
	knownHosts string
	insecure   bool
	os         string
	timeout    time.Duration
}

func newApp() *app {
	return &app{out: os.Stdout, errOut: os.Stderr}
}

// flagKeys maps persistent flags to config keys.
var flagKeys = map[string]string{
	"tool":                     "tool.name",
	"search-path":              "tool.search_path",
	"server":                   "cluster.server",
	"project":                  "cluster.project",
	"certificate-authority":    "cluster.ca_path",
	"insecure-skip-tls-verify": "cluster.skip_tls_verify",
	"loglevel":                 "cluster.log_level",
	"token-env":                "cluster.token_env",
	"token-file":               "cluster.token_file",
	"keyring-service":          "cluster.keyring.service",
	"keyring-user":             "cluster.keyring.user",
	"pool-size":                "runner.pool_size",
	"log-level":                "log.level",
	"no-color":                 "log.no_color",
}

func (a *app) bindGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "Path to config file (default $XDG_CONFIG_HOME/ocrun/config.yaml)")
	flags.StringVar(&a.dir, "dir", "", "Working directory of the client tool")

	flags.String("tool", command.DefaultToolName, "Client tool executable name or path")
	flags.String("search-path", "", "Search path for the client tool (default $PATH)")
	flags.String("server", "", "Cluster API server URL")
	flags.StringP("project", "n", "", "Project (namespace)")
	flags.String("certificate-authority", "", "Path to the cluster CA certificate")
	flags.Bool("insecure-skip-tls-verify", false, "Skip TLS verification of the API server")
	flags.Int("loglevel", 0, "Client tool verbosity; above zero also prints verbose step output")
	flags.String("token-env", "", "Environment variable holding the bearer token")
	flags.String("token-file", "", "File holding the bearer token")
	flags.String("keyring-service", "", "OS keyring service holding the bearer token")
	flags.String("keyring-user", "", "OS keyring user holding the bearer token")
	flags.Int("pool-size", runner.DefaultPoolSize, "Maximum concurrent output drains")
	flags.String("log-level", "info", "Log level: trace, debug, info, warn, error, disabled")
	flags.Bool("no-color", false, "Disable colored output")

	flags.StringVar(&a.ssh.host, "ssh-host", "", "Run the client tool on this host over SSH")
	flags.StringVar(&a.ssh.user, "ssh-user", "", "SSH user")
	flags.StringVar(&a.ssh.key, "ssh-key", "", "SSH private key path")
	flags.StringVar(&a.ssh.knownHosts, "ssh-known-hosts", "", "SSH known_hosts path (default ~/.ssh/known_hosts)")
	flags.BoolVar(&a.ssh.insecure, "ssh-insecure", false, "Skip SSH host key checking")
	flags.StringVar(&a.ssh.os, "ssh-os", string(locator.Unix), "OS family of the SSH host: UNIX, DARWIN, ZOS")
	flags.DurationVar(&a.ssh.timeout, "ssh-timeout", 30*time.Second, "SSH connection timeout")
}

// load resolves the configuration and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	loader := config.NewLoader("ocrun")
	if a.configFile != "" {
		loader.WithConfigFile(a.configFile)
		if cmd.Annotations[annotationConfigOptional] == "true" {
			loader.Optional()
		}
	}
	for name, key := range flagKeys {
		loader.BindFlag(key, cmd.Flags().Lookup(name))
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	if a.ssh.host != "" {
		if err := runner.CheckFamily(locator.OSFamily(strings.ToUpper(a.ssh.os))); err != nil {
			return err
		}
	}

	a.loader = loader
	a.cfg = cfg
	if cfg.Log.NoColor {
		pterm.DisableColor()
	}
	a.logger = console.NewLogger(cfg.Log.Level, a.errOut)
	return nil
}

// connection resolves the cluster parameters and the bearer token.
func (a *app) connection() (command.Connection, error) {
	cluster := a.cfg.Cluster
	conn := command.Connection{
		ToolName:      a.cfg.Tool.Name,
		Server:        cluster.Server,
		Project:       cluster.Project,
		SkipTLSVerify: cluster.SkipTLSVerify,
		CAPath:        cluster.CAPath,
		LogLevel:      cluster.LogLevel,
	}

	src, source, err := credentials.Resolve(credentials.Config{
		Token:          cluster.Token,
		TokenEnv:       cluster.TokenEnv,
		TokenFile:      cluster.TokenFile,
		KeyringService: cluster.Keyring.Service,
		KeyringUser:    cluster.Keyring.User,
	})
	if errors.Is(err, credentials.ErrNoToken) {
		a.logger.Debug("no token configured, relying on the client tool's own login")
		return conn, nil
	}
	if err != nil {
		return conn, fmt.Errorf("failed to resolve token: %w", err)
	}

	token, err := credentials.Token(src)
	if err != nil {
		return conn, fmt.Errorf("failed to resolve token: %w", err)
	}
	conn.Token = token
	a.maskToken(token)
	a.logger.Debug("resolved bearer token", a.logger.Args(
		"source", string(source), "fingerprint", secrets.MaskValue(token, secrets.StyleHash, 0)))
	a.checkExpiry(token, source)
	return conn, nil
}

// maskToken routes diagnostics and relayed stderr through a writer that hides
// the token.
func (a *app) maskToken(token string) {
	redactor, err := secrets.NewRedactor([]string{token}, secrets.DefaultValuePatterns(), "")
	if err != nil {
		a.logger.Warn("stderr masking disabled", a.logger.Args("error", err.Error()))
		return
	}
	a.errOut = secrets.NewMaskingWriter(redactor, a.errOut)
	a.logger = console.NewLogger(a.cfg.Log.Level, a.errOut)
}

func (a *app) checkExpiry(token string, source credentials.Source) {
	claims, err := credentials.Inspect(token)
	if err != nil {
		return
	}
	now := time.Now()
	switch {
	case claims.ExpiresAt.IsZero():
	case claims.ExpiresAt.Before(now):
		a.logger.Warn("bearer token has expired", a.logger.Args(
			"source", string(source), "expired", claims.ExpiresAt.Format(time.RFC3339)))
	case claims.ExpiresWithin(tokenExpiryWarning, now):
		a.logger.Warn("bearer token expires soon", a.logger.Args(
			"source", string(source), "expires", claims.ExpiresAt.Format(time.RFC3339)))
	}
}

// runner builds a runner for the configured execution host.
func (a *app) runner() *runner.Runner {
	opts := []runner.Option{
		runner.WithPool(runner.NewPool(a.cfg.Runner.PoolSize)),
		runner.WithDrainGrace(a.cfg.Runner.DrainGrace),
		runner.WithLogger(a.logger),
	}
	if a.ssh.host != "" {
		opts = append(opts, runner.WithLauncher(runner.SSHLauncher{
			Host:                        a.ssh.host,
			User:                        a.ssh.user,
			KeyPath:                     a.ssh.key,
			KnownHostsPath:              a.ssh.knownHosts,
			InsecureSkipHostKeyChecking: a.ssh.insecure,
			Timeout:                     a.ssh.timeout,
			Family:                      a.family(),
		}))
	}
	return runner.New(opts...)
}

// family is the OS of the host running the client tool.
func (a *app) family() locator.OSFamily {
	if a.ssh.host != "" {
		return locator.OSFamily(strings.ToUpper(a.ssh.os))
	}
	return locator.Detect()
}

// env is the client tool environment. A configured search path replaces PATH.
// Remote runs start from an empty environment.
func (a *app) env() []string {
	var env []string
	if a.ssh.host == "" {
		env = os.Environ()
	}
	if a.cfg.Tool.SearchPath != "" {
		env = append(env, "PATH="+a.cfg.Tool.SearchPath)
	}
	return env
}

// watchConfig converts the watch section.
func (a *app) watchConfig() watch.Config {
	w := a.cfg.Watch
	return watch.Config{
		Floor:               w.Floor,
		Cap:                 w.Cap,
		Multiplier:          w.Multiplier,
		Reset:               w.Reset,
		Rewatch:             w.RewatchInitial,
		MaxTransientRetries: w.MaxTransientRetries,
		BufferMax:           w.BufferMax,
		BufferTrim:          w.BufferTrim,
	}
}

// sink relays live output to stderr, keeping stdout for results.
func (a *app) sink() console.Sink {
	return console.NewPrefixSink(a.errOut, !a.cfg.Log.NoColor)
}
