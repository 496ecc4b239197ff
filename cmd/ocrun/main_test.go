package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CliForge/ocrun/pkg/config"
	"github.com/CliForge/ocrun/pkg/console"
	"github.com/CliForge/ocrun/pkg/locator"
	"github.com/CliForge/ocrun/pkg/runner"
)

// runCLI executes the root command with args and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	a := &app{out: &out, errOut: &errOut}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// isolate points the config at an absent file and disables colors.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("OCRUN_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("OCRUN_LOG_NO_COLOR", "true")
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd(newApp())

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	for _, want := range []string{"exec", "apply", "create", "delete", "process", "logs", "start-build", "watch", "locate", "token", "config"} {
		assert.Contains(t, names, want)
	}
}

func TestConfigView_RedactsToken(t *testing.T) {
	isolate(t)
	t.Setenv("OCRUN_CLUSTER_TOKEN", "sekret-token")
	t.Setenv("OCRUN_CLUSTER_SERVER", "https://api.example.com:6443")

	out, _, err := runCLI(t, "config", "view")
	require.NoError(t, err)
	assert.NotContains(t, out, "sekret-token")
	assert.Contains(t, out, "token: XXXXX")
	assert.Contains(t, out, "server: https://api.example.com:6443")

	_, _, err = runCLI(t, "config", "view", "-o", "table")
	assert.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "ocrun", "config.yaml")

	_, _, err := runCLI(t, "--config", path, "--server", "https://api.example.com", "config", "init")
	require.NoError(t, err)

	cfg, err := config.NewLoader("ocrun").WithConfigFile(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.Cluster.Server)

	_, _, err = runCLI(t, "--config", path, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = runCLI(t, "--config", path, "config", "init", "--force")
	assert.NoError(t, err)

	out, _, err := runCLI(t, "--config", path, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, path, strings.TrimSpace(out))
}

func TestLoad_InvalidConfig(t *testing.T) {
	isolate(t)
	_, _, err := runCLI(t, "--log-level", "loud", "config", "path")
	assert.Error(t, err)
}

func TestLoad_RejectsWindowsSSHHost(t *testing.T) {
	isolate(t)
	_, _, err := runCLI(t, "--ssh-host", "agent.example.com", "--ssh-os", "windows", "locate")
	assert.ErrorIs(t, err, runner.ErrUnsupportedFamily)
}

func TestRunner_RemoteFinder(t *testing.T) {
	a := &app{cfg: &config.Config{}, logger: console.Discard()}
	assert.IsType(t, locator.Local{}, a.runner().Finder())

	a.ssh.host = "agent.example.com"
	a.ssh.os = "unix"
	launcher, ok := a.runner().Finder().(runner.SSHLauncher)
	require.True(t, ok, "remote runs search the remote host")
	assert.Equal(t, locator.Unix, launcher.Family)
}

func TestExec_RequiresVerb(t *testing.T) {
	isolate(t)
	_, _, err := runCLI(t, "exec")
	assert.Error(t, err)
}

func TestWatch_RequiresCondition(t *testing.T) {
	isolate(t)
	_, _, err := runCLI(t, "watch", "pods")
	assert.Error(t, err)

	_, _, err = runCLI(t, "watch", "pods", "--until", "iteration +")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile")
}

func TestWatchConfig(t *testing.T) {
	a := &app{cfg: &config.Config{Watch: config.WatchConfig{
		Floor:               time.Second,
		Cap:                 5 * time.Second,
		Multiplier:          1.5,
		Reset:               2 * time.Second,
		RewatchInitial:      3 * time.Second,
		MaxTransientRetries: 2,
		BufferMax:           1000,
		BufferTrim:          400,
	}}}

	got := a.watchConfig()
	assert.Equal(t, time.Second, got.Floor)
	assert.Equal(t, 5*time.Second, got.Cap)
	assert.Equal(t, 1.5, got.Multiplier)
	assert.Equal(t, 2*time.Second, got.Reset)
	assert.Equal(t, 3*time.Second, got.Rewatch)
	assert.Equal(t, 2, got.MaxTransientRetries)
	assert.Equal(t, 1000, got.BufferMax)
	assert.Equal(t, 400, got.BufferTrim)
}

func TestEnv_SearchPathOverridesPath(t *testing.T) {
	a := &app{cfg: &config.Config{Tool: config.ToolConfig{SearchPath: "/opt/oc/bin"}}}
	env := a.env()
	assert.Equal(t, "PATH=/opt/oc/bin", env[len(env)-1])

	a.ssh.host = "agent.example.com"
	assert.Equal(t, []string{"PATH=/opt/oc/bin"}, a.env())
}

func TestReadReferences(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "dc.yaml")
	require.NoError(t, os.WriteFile(file, []byte("kind: DeploymentConfig\n"), 0o600))

	ref, err := readReferences([]string{"dc=" + file})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"dc": "kind: DeploymentConfig\n"}, ref)

	for _, bad := range []string{"nofile", "=x", "name=", "x=" + filepath.Join(dir, "missing")} {
		_, err := readReferences([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestReadToken(t *testing.T) {
	tok, err := readToken(strings.NewReader("  abc.def \nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	tok, err = readToken(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", tok)

	_, err = readToken(strings.NewReader("\n"))
	assert.Error(t, err)
}

func TestLastNonEmpty(t *testing.T) {
	assert.Equal(t, "ready", lastNonEmpty("a\nready\n"))
	assert.Equal(t, "", lastNonEmpty(""))
}
