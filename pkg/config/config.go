// Package config handles loading and validation of the ocrun configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration.
type Config struct {
	Tool    ToolConfig    `mapstructure:"tool" yaml:"tool"`
	Cluster ClusterConfig `mapstructure:"cluster" yaml:"cluster"`
	Runner  RunnerConfig  `mapstructure:"runner" yaml:"runner"`
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Action  ActionConfig  `mapstructure:"action" yaml:"action"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ToolConfig names the client tool and where to find it.
type ToolConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	// SearchPath overrides PATH when locating the tool.
	SearchPath string `mapstructure:"search_path" yaml:"search_path,omitempty"`
}

// ClusterConfig holds the connection parameters.
type ClusterConfig struct {
	Server        string        `mapstructure:"server" yaml:"server,omitempty"`
	Project       string        `mapstructure:"project" yaml:"project,omitempty"`
	CAPath        string        `mapstructure:"ca_path" yaml:"ca_path,omitempty"`
	SkipTLSVerify bool          `mapstructure:"skip_tls_verify" yaml:"skip_tls_verify"`
	LogLevel      int           `mapstructure:"log_level" yaml:"log_level"`
	Token         string        `mapstructure:"token" yaml:"token,omitempty"`
	TokenEnv      string        `mapstructure:"token_env" yaml:"token_env,omitempty"`
	TokenFile     string        `mapstructure:"token_file" yaml:"token_file,omitempty"`
	Keyring       KeyringConfig `mapstructure:"keyring" yaml:"keyring"`
}

// KeyringConfig locates a token in the OS keyring.
type KeyringConfig struct {
	Service string `mapstructure:"service" yaml:"service,omitempty"`
	User    string `mapstructure:"user" yaml:"user,omitempty"`
}

// RunnerConfig tunes process execution.
type RunnerConfig struct {
	PoolSize   int           `mapstructure:"pool_size" yaml:"pool_size"`
	DrainGrace time.Duration `mapstructure:"drain_grace" yaml:"drain_grace"`
}

// WatchConfig tunes watch timing and buffering.
type WatchConfig struct {
	Floor               time.Duration `mapstructure:"floor" yaml:"floor"`
	Cap                 time.Duration `mapstructure:"cap" yaml:"cap"`
	Multiplier          float64       `mapstructure:"multiplier" yaml:"multiplier"`
	Reset               time.Duration `mapstructure:"reset" yaml:"reset"`
	RewatchInitial      time.Duration `mapstructure:"rewatch_initial" yaml:"rewatch_initial"`
	MaxTransientRetries int           `mapstructure:"max_transient_retries" yaml:"max_transient_retries"`
	BufferMax           int           `mapstructure:"buffer_max" yaml:"buffer_max"`
	BufferTrim          int           `mapstructure:"buffer_trim" yaml:"buffer_trim"`
}

// ActionConfig tunes single command execution.
type ActionConfig struct {
	// GoLogHeuristic moves stdout lines containing ".go:" to stderr.
	GoLogHeuristic bool `mapstructure:"go_log_heuristic" yaml:"go_log_heuristic"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	NoColor bool   `mapstructure:"no_color" yaml:"no_color"`
}

// Defaults returns every default value, keyed by config path.
func Defaults() map[string]any {
	return map[string]any{
		"tool.name":                   "oc",
		"tool.search_path":            "",
		"cluster.server":              "",
		"cluster.project":             "",
		"cluster.ca_path":             "",
		"cluster.skip_tls_verify":     false,
		"cluster.log_level":           0,
		"cluster.token":               "",
		"cluster.token_env":           "",
		"cluster.token_file":          "",
		"cluster.keyring.service":     "",
		"cluster.keyring.user":        "",
		"runner.pool_size":            25,
		"runner.drain_grace":          2 * time.Second,
		"watch.floor":                 250 * time.Millisecond,
		"watch.cap":                   10 * time.Second,
		"watch.multiplier":            1.2,
		"watch.reset":                 time.Second,
		"watch.rewatch_initial":       250 * time.Millisecond,
		"watch.max_transient_retries": 5,
		"watch.buffer_max":            200 * 1024,
		"watch.buffer_trim":           100 * 1024,
		"action.go_log_heuristic":     true,
		"log.level":                   "info",
		"log.no_color":                false,
	}
}

// Loader loads configuration from defaults, a config file, environment
// variables and bound flags.
type Loader struct {
	appName    string
	envPrefix  string
	configPath string
	optional   bool
	flags      map[string]*pflag.Flag
}

// NewLoader creates a loader. Environment variables use the upper-cased app
// name as prefix: OCRUN_CLUSTER_SERVER sets cluster.server.
func NewLoader(appName string) *Loader {
	return &Loader{
		appName:   appName,
		envPrefix: strings.ToUpper(strings.ReplaceAll(appName, "-", "_")),
		flags:     make(map[string]*pflag.Flag),
	}
}

// WithConfigFile sets an explicit config file. Unlike the default location it
// must exist.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configPath = path
	return l
}

// Optional lets an explicit config file be missing, as when it is about to be
// created.
func (l *Loader) Optional() *Loader {
	l.optional = true
	return l
}

// BindFlag lets a command-line flag override the value at key when the flag
// was set.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) *Loader {
	if flag != nil {
		l.flags[key] = flag
	}
	return l
}

// ConfigPath returns the config file in use: the explicit one, then
// $<PREFIX>_CONFIG, then the XDG config directory.
func (l *Loader) ConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	if custom := os.Getenv(l.envPrefix + "_CONFIG"); custom != "" {
		return custom
	}
	return filepath.Join(xdg.ConfigHome, l.appName, "config.yaml")
}

// Load resolves the configuration. Priority: flags > environment > config
// file > defaults.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, flag := range l.flags {
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
		}
	}

	path := l.ConfigPath()
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if (l.configPath != "" && !l.optional) || !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := NewValidator().Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Redacted returns a copy of cfg safe to display.
func (c Config) Redacted() Config {
	if c.Cluster.Token != "" {
		c.Cluster.Token = "XXXXX"
	}
	return c
}
