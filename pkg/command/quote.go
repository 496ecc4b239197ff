package command

import (
	"regexp"
	"strings"

	"al.essio.dev/pkg/shellescape"
)

// paramMarker matches a template parameter flag, "-p=" or "-p ", at the start
// of the value or after whitespace.
var paramMarker = regexp.MustCompile(`(?:^|\s+)-p(=|\s+)`)

// quoteTemplateArg renders one template-verb argument that contains spaces.
//
// A value holding several parameters ("-p=A=1 -p=B=two words") would make
// template processing silently ignore every parameter after the first, so it
// is split into one argument per parameter. Any other value is quoted as a
// whole so the tokenizer keeps it together.
func quoteTemplateArg(arg string) []string {
	trimmed := strings.TrimSpace(arg)
	matches := paramMarker.FindAllStringSubmatchIndex(trimmed, -1)
	if len(matches) == 0 || matches[0][0] != 0 {
		return []string{quoteValue(arg)}
	}

	out := make([]string, 0, len(matches))
	for i, m := range matches {
		end := len(trimmed)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}

		value := strings.TrimSpace(trimmed[m[1]:end])
		if value == "" {
			continue
		}
		value = quoteValue(value)

		if trimmed[m[2]:m[3]] == "=" {
			out = append(out, "-p="+value)
		} else {
			out = append(out, "-p "+value)
		}
	}
	return out
}

// quoteValue leaves author-quoted values alone and shell-quotes the rest.
func quoteValue(value string) string {
	if strings.HasPrefix(value, "'") || strings.HasPrefix(value, `"`) {
		return value
	}
	return shellescape.Quote(value)
}
