package watch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/CliForge/ocrun/pkg/runner"
)

// Poll runs the polling variant. The watch command's stdout is captured into
// a session file; the loop re-reads it from the delivered offset at backoff
// intervals and invokes the body on new output, and once on the first pass
// even when nothing was written. File write events wake the loop early.
//
// The capture file is removed on every exit path.
func (w *Watcher) Poll(ctx context.Context, body Body) error {
	if body == nil {
		return fmt.Errorf("watch body is required")
	}

	sess := newSession(w.cfg)

	path := filepath.Join(os.TempDir(), "ocrun-watch-"+sess.id+".out")
	out, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create watch output file: %w", err)
	}
	defer func() {
		out.Close()
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("failed to remove watch output file", w.logger.Args("path", path, "error", err.Error()))
		}
	}()

	var events <-chan fsnotify.Event
	var eventErrs <-chan error
	if fw, err := fsnotify.NewWatcher(); err != nil {
		w.logger.Debug("file events unavailable, polling on timer only", w.logger.Args("error", err.Error()))
	} else {
		defer fw.Close()
		if err := fw.Add(path); err != nil {
			w.logger.Debug("file events unavailable, polling on timer only", w.logger.Args("error", err.Error()))
		} else {
			events = fw.Events
			eventErrs = fw.Errors
		}
	}

	wake := wakeups{events: events, errs: eventErrs}
	return w.loop(ctx, sess, "poll", func(argv []string, stderr *Buffer) (int, error) {
		return w.pollOnce(ctx, sess, argv, body, stderr, out, wake)
	})
}

type wakeups struct {
	events <-chan fsnotify.Event
	errs   <-chan error
}

// pollOnce runs the watch command once while polling its capture file.
func (w *Watcher) pollOnce(ctx context.Context, sess *Session, argv []string, body Body, stderr *Buffer, out *os.File, wake wakeups) (int, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan runResult, 1)
	go func() {
		status, err := w.runner.Run(runCtx, w.command(argv),
			func(line string) (bool, error) {
				w.relay(line)
				_, err := io.WriteString(out, line+"\n")
				return false, err
			},
			w.stderrObserver(stderr))
		done <- runResult{status: status, err: err}
	}()

	var finished *runResult
	stop := func() {
		cancel()
		if finished == nil {
			res := <-done
			finished = &res
		}
	}

	idle := NewBackoff(w.cfg.Floor, w.cfg.Cap, w.cfg.Multiplier, w.cfg.Reset)
	for {
		fresh, err := readFrom(out, sess.offset)
		if err != nil {
			stop()
			return runner.StatusInterrupted, fmt.Errorf("failed to read watch output: %w", err)
		}

		if fresh != "" || sess.iteration == 0 {
			sess.record(fresh)
			ok, err := w.invoke(ctx, sess, body, fresh)
			if err != nil {
				stop()
				return runner.StatusInterrupted, err
			}
			if ok {
				sess.success = true
				stop()
				return finished.status, nil
			}
			if fresh != "" {
				idle.Reset()
			}
		}

		// The file was read once more after exit, so nothing is left behind.
		if finished != nil {
			return w.settle(ctx, sess, *finished, nil)
		}

		delay := idle.Next()
		w.logger.Trace("checking watch output again", w.logger.Args("session", sess.id, "delay", delay.String()))

		timer := time.NewTimer(delay)
		select {
		case res := <-done:
			finished = &res
		case <-ctx.Done():
			timer.Stop()
			stop()
			return runner.StatusInterrupted, interrupted(ctx.Err())
		case _, ok := <-wake.events:
			if !ok {
				wake.events = nil
			}
		case err, ok := <-wake.errs:
			if !ok {
				wake.errs = nil
			} else {
				w.logger.Debug("file event error", w.logger.Args("error", err.Error()))
			}
		case <-timer.C:
		}
		timer.Stop()
	}
}

// readFrom returns the complete lines written to f after offset.
func readFrom(f *os.File, offset int64) (string, error) {
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if info.Size() <= offset {
		return "", nil
	}

	buf := make([]byte, info.Size()-offset)
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	buf = buf[:n]

	end := bytes.LastIndexByte(buf, '\n')
	if end < 0 {
		return "", nil
	}
	return string(buf[:end+1]), nil
}
