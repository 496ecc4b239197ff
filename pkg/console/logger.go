// Package console provides the logger and the live line sinks used while the
// client tool runs.
package console

import (
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
)

// ParseLevel maps a level name to a pterm log level. Unknown names yield
// info and false.
func ParseLevel(raw string) (pterm.LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return pterm.LogLevelTrace, true
	case "debug":
		return pterm.LogLevelDebug, true
	case "info", "":
		return pterm.LogLevelInfo, true
	case "warn", "warning":
		return pterm.LogLevelWarn, true
	case "error":
		return pterm.LogLevelError, true
	case "disabled", "off", "none":
		return pterm.LogLevelDisabled, true
	default:
		return pterm.LogLevelInfo, false
	}
}

// NewLogger returns a structured logger writing to w (stderr when nil).
func NewLogger(level string, w io.Writer) *pterm.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, _ := ParseLevel(level)
	return pterm.DefaultLogger.
		WithLevel(lvl).
		WithWriter(w).
		WithTime(false)
}

// Discard returns a logger that drops everything.
func Discard() *pterm.Logger {
	return pterm.DefaultLogger.
		WithLevel(pterm.LogLevelDisabled).
		WithWriter(io.Discard)
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *pterm.Logger) *pterm.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
