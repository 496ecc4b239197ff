package console

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pterm/pterm"
)

// Sink receives output lines relayed while a command runs.
type Sink interface {
	// Line writes one line tagged with label.
	Line(label, text string)
}

// PrefixSink writes "[label] text" lines to an io.Writer. It is safe for
// concurrent use by the stdout and stderr drains.
type PrefixSink struct {
	w     io.Writer
	style *pterm.Style
	mu    sync.Mutex
}

// NewPrefixSink creates a sink writing to w. When color is false the label is
// written unstyled.
func NewPrefixSink(w io.Writer, color bool) *PrefixSink {
	s := &PrefixSink{w: w}
	if color {
		s.style = pterm.NewStyle(pterm.FgCyan)
	}
	return s
}

// Line implements Sink. Empty labels are written without a prefix.
func (s *PrefixSink) Line(label, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(label) == "" {
		fmt.Fprintln(s.w, text)
		return
	}

	prefix := "[" + label + "]"
	if s.style != nil {
		prefix = s.style.Sprint(prefix)
	}
	fmt.Fprintln(s.w, prefix+" "+text)
}

// Quiet collects output instead of showing it. It replaces a console when the
// caller wants the text for a result rather than a live view.
type Quiet struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

// NewQuiet creates an empty Quiet sink.
func NewQuiet() *Quiet {
	return &Quiet{}
}

// Line implements Sink.
func (q *Quiet) Line(label, text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if label != "" {
		q.buf.WriteString("[" + label + "] ")
	}
	q.buf.WriteString(text)
	q.buf.WriteByte('\n')
}

// Writer returns an io.Writer appending to the collected output.
func (q *Quiet) Writer() io.Writer {
	return quietWriter{q}
}

// Output returns everything collected so far.
func (q *Quiet) Output() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.String()
}

type quietWriter struct{ q *Quiet }

func (w quietWriter) Write(p []byte) (int, error) {
	w.q.mu.Lock()
	defer w.q.mu.Unlock()
	return w.q.buf.Write(p)
}

// Discarding is a Sink that drops every line.
type Discarding struct{}

// Line implements Sink.
func (Discarding) Line(string, string) {}
