package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/CliForge/ocrun/pkg/console"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validator handles configuration validation.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate checks cfg and returns ValidationErrors listing every problem.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateTool(&cfg.Tool)
	v.validateCluster(&cfg.Cluster)
	v.validateRunner(&cfg.Runner)
	v.validateWatch(&cfg.Watch)
	v.validateLog(&cfg.Log)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) validateTool(tool *ToolConfig) {
	if strings.TrimSpace(tool.Name) == "" {
		v.addError("tool.name", "is required")
	}
}

func (v *Validator) validateCluster(cluster *ClusterConfig) {
	if cluster.Server != "" {
		u, err := url.Parse(cluster.Server)
		if err != nil || u.Host == "" {
			v.addError("cluster.server", fmt.Sprintf("invalid URL: %s", cluster.Server))
		} else if u.Scheme != "https" && u.Scheme != "http" {
			v.addError("cluster.server", "must use http or https")
		}
	}

	if cluster.SkipTLSVerify && cluster.CAPath != "" {
		v.addError("cluster.ca_path", "cannot be combined with skip_tls_verify")
	}

	if strings.ContainsAny(cluster.Token, "\r\n") {
		v.addError("cluster.token", "cannot contain carriage returns or new lines")
	}

	if cluster.LogLevel < 0 {
		v.addError("cluster.log_level", "cannot be negative")
	}

	if (cluster.Keyring.Service == "") != (cluster.Keyring.User == "") {
		v.addError("cluster.keyring", "service and user must be set together")
	}
}

func (v *Validator) validateRunner(runner *RunnerConfig) {
	// Each nested run needs one free slot on top of the outer run's other drain.
	if runner.PoolSize < 2 {
		v.addError("runner.pool_size", "must be at least 2")
	}
	if runner.DrainGrace <= 0 {
		v.addError("runner.drain_grace", "must be positive")
	}
}

func (v *Validator) validateWatch(watch *WatchConfig) {
	if watch.Floor <= 0 {
		v.addError("watch.floor", "must be positive")
	}
	if watch.Cap < watch.Floor {
		v.addError("watch.cap", "cannot be less than watch.floor")
	}
	if watch.Multiplier < 1.0 {
		v.addError("watch.multiplier", "must be at least 1.0")
	}
	if watch.Reset <= 0 {
		v.addError("watch.reset", "must be positive")
	}
	if watch.RewatchInitial <= 0 {
		v.addError("watch.rewatch_initial", "must be positive")
	}
	if watch.MaxTransientRetries < 0 {
		v.addError("watch.max_transient_retries", "cannot be negative")
	}
	if watch.BufferMax <= 0 {
		v.addError("watch.buffer_max", "must be positive")
	}
	if watch.BufferTrim <= 0 || watch.BufferTrim >= watch.BufferMax {
		v.addError("watch.buffer_trim", "must be positive and less than watch.buffer_max")
	}
}

func (v *Validator) validateLog(log *LogConfig) {
	if _, ok := console.ParseLevel(log.Level); !ok {
		v.addError("log.level", fmt.Sprintf("unknown level: %s", log.Level))
	}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}
