//go:build unix

package runner

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shell(script string) Command {
	return Command{Argv: []string{"/bin/sh", "-c", script}}
}

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) observe(line string) (bool, error) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
	return false, nil
}

func TestLocalRun_ExitStatus(t *testing.T) {
	var out, errs collector
	status, err := New().Run(context.Background(),
		shell(`echo first; echo second; echo oops >&2; exit 3`),
		out.observe, errs.observe)

	require.NoError(t, err)
	assert.Equal(t, 3, status)
	assert.Equal(t, []string{"first", "second"}, out.lines)
	assert.Equal(t, []string{"oops"}, errs.lines)
}

func TestLocalRun_FinalLineWithoutNewline(t *testing.T) {
	var out collector
	status, err := New().Run(context.Background(), shell(`printf 'a\r\nb'`), out.observe, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.Equal(t, []string{"a", "b"}, out.lines)
}

func TestLocalRun_LargeOutputOnBothStreams(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// 300000 lines of "out\n" / "err\n" is 1.2MB per stream.
	script := `yes out | head -n 300000 & yes err | head -n 300000 >&2; wait`

	var outCount, errCount int
	status, err := New().Run(ctx, shell(script),
		func(string) (bool, error) { outCount++; return false, nil },
		func(string) (bool, error) { errCount++; return false, nil })

	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.Equal(t, 300000, outCount)
	assert.Equal(t, 300000, errCount)
}

func TestLocalRun_ObserverStopKillsProcess(t *testing.T) {
	var pid int
	start := time.Now()
	status, err := New().Run(context.Background(), shell(`echo $$; sleep 30`),
		func(line string) (bool, error) {
			pid, _ = strconv.Atoi(line)
			return true, nil
		}, nil)

	require.NoError(t, err)
	assert.Equal(t, StatusInterrupted, status)
	assert.Less(t, time.Since(start), 10*time.Second)

	require.NotZero(t, pid)
	assert.ErrorIs(t, syscall.Kill(pid, 0), syscall.ESRCH)
}

func TestLocalRun_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	status, err := New().Run(ctx, shell(`sleep 30`), nil, nil)

	assert.Equal(t, StatusInterrupted, status)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestLocalRun_ObserverFailure(t *testing.T) {
	tests := []struct {
		name     string
		observer Observer
		wantText string
	}{
		{
			name:     "error",
			observer: func(string) (bool, error) { return false, assert.AnError },
			wantText: assert.AnError.Error(),
		},
		{
			name:     "panic",
			observer: func(string) (bool, error) { panic("observer blew up") },
			wantText: "observer blew up",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errs collector
			status, err := New().Run(context.Background(),
				shell(`echo trigger; echo still-draining >&2; sleep 30`),
				tt.observer, errs.observe)

			assert.Equal(t, StatusInterrupted, status)
			var obsErr *ObserverError
			require.ErrorAs(t, err, &obsErr)
			assert.Equal(t, "stdout", obsErr.Stream)
			assert.Contains(t, err.Error(), tt.wantText)
		})
	}
}

func TestLocalRun_DirAndEnv(t *testing.T) {
	dir := t.TempDir()
	cmd := shell(`pwd; echo "$OCRUN_TEST_VALUE"`)
	cmd.Dir = dir
	cmd.Env = []string{"OCRUN_TEST_VALUE=from-env", "PATH=" + os.Getenv("PATH")}

	var out collector
	status, err := New().Run(context.Background(), cmd, out.observe, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, status)
	require.Len(t, out.lines, 2)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(out.lines[0])
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "from-env", out.lines[1])
}

func TestLocalRun_InvalidDir(t *testing.T) {
	cmd := shell(`true`)
	cmd.Dir = filepath.Join(t.TempDir(), "missing")

	status, err := New().Run(context.Background(), cmd, nil, nil)
	assert.Equal(t, StatusInterrupted, status)
	assert.Error(t, err)
}

func TestLocalRun_MissingExecutable(t *testing.T) {
	status, err := New().Run(context.Background(),
		Command{Argv: []string{filepath.Join(t.TempDir(), "no-such-oc")}}, nil, nil)

	assert.Equal(t, StatusInterrupted, status)
	var launchErr *LaunchError
	assert.ErrorAs(t, err, &launchErr)
}

func TestLocalRun_PoolSmallerThanRun(t *testing.T) {
	r := New(WithPool(NewPool(1)))
	status, err := r.Run(context.Background(), shell(`exit 0`), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, status)
}

func TestLocalRun_SlowObserverKeepsLaterLines(t *testing.T) {
	r := New(WithDrainGrace(200 * time.Millisecond))

	var out collector
	status, err := r.Run(context.Background(),
		shell(`echo one; sleep 0.1; echo two; echo three`),
		func(line string) (bool, error) {
			if line == "one" {
				time.Sleep(time.Second)
			}
			return out.observe(line)
		}, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.Equal(t, []string{"one", "two", "three"}, out.lines)
}

func TestLocalRun_IdleDescendantClosedAfterGrace(t *testing.T) {
	r := New(WithDrainGrace(200 * time.Millisecond))

	start := time.Now()
	var out collector
	status, err := r.Run(context.Background(), shell(`echo parent; (sleep 5; echo late) &`), out.observe, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.Equal(t, []string{"parent"}, out.lines)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestLocalRun_NestedRunOnSmallPool(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := New(WithPool(NewPool(2)))

	var inner collector
	var innerErr error
	status, err := r.Run(ctx, shell(`echo trigger; echo stderr-open >&2; sleep 0.2`),
		func(line string) (bool, error) {
			if line == "trigger" {
				_, innerErr = r.Run(ctx, shell(`echo inner`), inner.observe, nil)
			}
			return false, nil
		}, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, status)
	require.NoError(t, innerErr)
	assert.Equal(t, []string{"inner"}, inner.lines)
}

func TestFindScript_ListsExecutables(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	for _, dir := range []string{first, second} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "oc"), []byte("#!/bin/sh\n"), 0o755))
	}
	notExec := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(notExec, "oc"), []byte(""), 0o644))

	searchPath := strings.Join([]string{"", first, notExec, "/no/such/dir", second, first}, ":")

	out, err := exec.Command("/bin/sh", "-c", FindScript("oc", searchPath)).Output()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(first, "oc"), filepath.Join(second, "oc")}, parseFound(string(out)))
}

func TestFindScript_DefaultsToRemotePath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "oc"), []byte("#!/bin/sh\n"), 0o755))

	cmd := exec.Command("/bin/sh", "-c", FindScript("oc", ""))
	cmd.Env = []string{"PATH=" + dir}
	out, err := cmd.Output()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "oc")}, parseFound(string(out)))
}
