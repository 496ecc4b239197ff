// Package secrets masks credentials and secret payloads before client tool
// output reaches logs, consoles, or structured results.
package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DataRedaction replaces the body of every "data" object.
const DataRedaction = "{ REDACTED }"

// dataObject matches a "data": { ... } value, including pretty-printed
// multi-line objects. Secret data values are strings, so the first closing
// brace ends the object.
var dataObject = regexp.MustCompile(`("data"\s*:\s*)\{(?s:.*?)\}`)

// RedactSensitiveData replaces every "data" object in output with a fixed
// marker, leaving the rest of the text unchanged.
func RedactSensitiveData(output string) string {
	if !strings.Contains(output, `"data"`) {
		return output
	}
	return dataObject.ReplaceAllString(output, "${1}"+DataRedaction)
}

// Redactor masks literal secret values and secret-looking patterns in text.
type Redactor struct {
	literals    []string
	patterns    []*regexp.Regexp
	replacement string
}

// NewRedactor creates a redactor for the given literal secrets and patterns.
// Empty literals are ignored. Longer literals are replaced first so a secret
// that contains another is never partially revealed.
func NewRedactor(literals []string, patterns []ValuePattern, replacement string) (*Redactor, error) {
	compiled, err := compilePatterns(patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid value pattern: %w", err)
	}

	if replacement == "" {
		replacement = "***"
	}

	lits := make([]string, 0, len(literals))
	for _, l := range literals {
		if l != "" {
			lits = append(lits, l)
		}
	}
	sort.Slice(lits, func(i, j int) bool { return len(lits[i]) > len(lits[j]) })

	return &Redactor{
		literals:    lits,
		patterns:    compiled,
		replacement: replacement,
	}, nil
}

// Redact returns text with every literal and pattern match replaced.
func (r *Redactor) Redact(text string) string {
	if r == nil {
		return text
	}
	for _, l := range r.literals {
		text = strings.ReplaceAll(text, l, r.replacement)
	}
	for _, p := range r.patterns {
		text = p.ReplaceAllString(text, r.replacement)
	}
	return text
}
