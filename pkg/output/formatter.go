// Package output renders command results as json, yaml or a table.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Formatter renders data to a writer.
type Formatter interface {
	// Format writes data according to the formatter's rules.
	Format(w io.Writer, data any, config *FormatConfig) error

	// Name returns the format name used on the command line.
	Name() string
}

// FormatConfig contains options shared by the formatters.
type FormatConfig struct {
	// Pretty enables indentation (json).
	Pretty bool

	// Colors enables colored table headers.
	Colors bool

	// ShowHeaders controls the table header row.
	ShowHeaders bool

	// MaxWidth truncates table cells. Zero disables truncation.
	MaxWidth int
}

// NewFormatConfig returns the default configuration.
func NewFormatConfig() *FormatConfig {
	return &FormatConfig{
		Pretty:      true,
		Colors:      true,
		ShowHeaders: true,
		MaxWidth:    120,
	}
}

// WithColors sets the colors option.
func (c *FormatConfig) WithColors(colors bool) *FormatConfig {
	c.Colors = colors
	return c
}

// WithMaxWidth sets the table cell width limit.
func (c *FormatConfig) WithMaxWidth(width int) *FormatConfig {
	c.MaxWidth = width
	return c
}

// Manager holds the registered formatters.
type Manager struct {
	formatters    map[string]Formatter
	defaultFormat string
	config        *FormatConfig
}

// NewManager creates a manager with the json, yaml and table formatters.
func NewManager() *Manager {
	m := &Manager{
		formatters:    make(map[string]Formatter),
		defaultFormat: "table",
		config:        NewFormatConfig(),
	}
	m.Register(NewJSONFormatter())
	m.Register(NewYAMLFormatter())
	m.Register(NewTableFormatter())
	return m
}

// Register adds or replaces a formatter.
func (m *Manager) Register(f Formatter) {
	m.formatters[f.Name()] = f
}

// SetConfig replaces the format configuration.
func (m *Manager) SetConfig(config *FormatConfig) {
	m.config = config
}

// Formats returns the supported format names, sorted.
func (m *Manager) Formats() []string {
	names := make([]string, 0, len(m.formatters))
	for name := range m.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate reports whether format is supported. An empty format selects the
// default.
func (m *Manager) Validate(format string) error {
	_, err := m.formatter(format)
	return err
}

// Format writes data in format.
func (m *Manager) Format(w io.Writer, data any, format string) error {
	f, err := m.formatter(format)
	if err != nil {
		return err
	}
	return f.Format(w, data, m.config)
}

func (m *Manager) formatter(format string) (Formatter, error) {
	if format == "" {
		format = m.defaultFormat
	}
	f, ok := m.formatters[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("unsupported output format %q (supported: %s)", format, strings.Join(m.Formats(), ", "))
	}
	return f, nil
}
