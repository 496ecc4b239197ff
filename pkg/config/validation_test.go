package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Tool:   ToolConfig{Name: "oc"},
		Runner: RunnerConfig{PoolSize: 25, DrainGrace: 2 * time.Second},
		Watch: WatchConfig{
			Floor:               250 * time.Millisecond,
			Cap:                 10 * time.Second,
			Multiplier:          1.2,
			Reset:               time.Second,
			RewatchInitial:      250 * time.Millisecond,
			MaxTransientRetries: 5,
			BufferMax:           200 * 1024,
			BufferTrim:          100 * 1024,
		},
		Log: LogConfig{Level: "info"},
	}
}

func TestValidator_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
		errField  string
	}{
		{
			name:      "valid config",
			mutate:    func(*Config) {},
			wantError: false,
		},
		{
			name:      "missing tool name",
			mutate:    func(c *Config) { c.Tool.Name = " " },
			wantError: true,
			errField:  "tool.name",
		},
		{
			name:      "server without scheme",
			mutate:    func(c *Config) { c.Cluster.Server = "api.example.com" },
			wantError: true,
			errField:  "cluster.server",
		},
		{
			name:      "server with wrong scheme",
			mutate:    func(c *Config) { c.Cluster.Server = "ftp://api.example.com" },
			wantError: true,
			errField:  "cluster.server",
		},
		{
			name: "ca path with skip tls",
			mutate: func(c *Config) {
				c.Cluster.SkipTLSVerify = true
				c.Cluster.CAPath = "/ca.crt"
			},
			wantError: true,
			errField:  "cluster.ca_path",
		},
		{
			name:      "token with newline",
			mutate:    func(c *Config) { c.Cluster.Token = "abc\n" },
			wantError: true,
			errField:  "cluster.token",
		},
		{
			name:      "keyring service without user",
			mutate:    func(c *Config) { c.Cluster.Keyring.Service = "ocrun" },
			wantError: true,
			errField:  "cluster.keyring",
		},
		{
			name:      "pool size zero",
			mutate:    func(c *Config) { c.Runner.PoolSize = 0 },
			wantError: true,
			errField:  "runner.pool_size",
		},
		{
			name:      "pool size too small to nest",
			mutate:    func(c *Config) { c.Runner.PoolSize = 1 },
			wantError: true,
			errField:  "runner.pool_size",
		},
		{
			name:   "pool size two",
			mutate: func(c *Config) { c.Runner.PoolSize = 2 },
		},
		{
			name:      "cap below floor",
			mutate:    func(c *Config) { c.Watch.Cap = 100 * time.Millisecond },
			wantError: true,
			errField:  "watch.cap",
		},
		{
			name:      "shrinking multiplier",
			mutate:    func(c *Config) { c.Watch.Multiplier = 0.8 },
			wantError: true,
			errField:  "watch.multiplier",
		},
		{
			name:      "trim equals max",
			mutate:    func(c *Config) { c.Watch.BufferTrim = c.Watch.BufferMax },
			wantError: true,
			errField:  "watch.buffer_trim",
		},
		{
			name:      "unknown log level",
			mutate:    func(c *Config) { c.Log.Level = "chatty" },
			wantError: true,
			errField:  "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := NewValidator().Validate(cfg)
			if (err != nil) != tt.wantError {
				t.Fatalf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
			if !tt.wantError {
				return
			}

			verrs, ok := err.(ValidationErrors)
			if !ok {
				t.Fatalf("expected ValidationErrors, got %T", err)
			}
			found := false
			for _, e := range verrs {
				if e.Field == tt.errField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.errField, err)
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Message: "first"},
		{Field: "b", Message: "second"},
	}
	msg := errs.Error()
	if !strings.HasPrefix(msg, "validation failed:") {
		t.Errorf("unexpected message: %s", msg)
	}
	if !strings.Contains(msg, "a: first") || !strings.Contains(msg, "b: second") {
		t.Errorf("message missing entries: %s", msg)
	}
	if (ValidationErrors{}).Error() != "" {
		t.Error("empty errors should have empty message")
	}
}
