package watch

import (
	"strings"

	"github.com/google/uuid"
)

// Session is the state of one watch: output delivered so far, the retained
// buffer, and progress counters. It is owned by the goroutine running the
// watch loop.
type Session struct {
	id        string
	buf       *Buffer
	offset    int64
	iteration int
	retries   int
	success   bool
}

func newSession(cfg Config) *Session {
	return &Session{
		id:  uuid.NewString(),
		buf: NewBuffer(cfg.BufferMax, cfg.BufferTrim),
	}
}

// ID identifies the session in logs and temp file names.
func (s *Session) ID() string { return s.id }

// Offset is the number of output bytes delivered to the body.
func (s *Session) Offset() int64 { return s.offset }

// Iterations is the number of body invocations so far.
func (s *Session) Iterations() int { return s.iteration }

// Retries is the number of transient body failures retried so far.
func (s *Session) Retries() int { return s.retries }

// Succeeded reports whether the body signalled success.
func (s *Session) Succeeded() bool { return s.success }

// Output returns the retained output.
func (s *Session) Output() string { return s.buf.String() }

// record appends newly observed output.
func (s *Session) record(text string) {
	if text == "" {
		return
	}
	s.offset += int64(len(text))
	s.buf.Append(text)
}

func (s *Session) observation(fresh string) Observation {
	return Observation{
		Output:    s.buf.String(),
		New:       fresh,
		Iteration: s.iteration,
		Lines:     splitLines(fresh),
	}
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
