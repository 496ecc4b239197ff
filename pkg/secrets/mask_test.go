package secrets

import (
	"bytes"
	"strings"
	"testing"
)

func TestMaskValue(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		style     Style
		showChars int
		want      string
	}{
		{
			name:      "partial masking",
			value:     "sha256~abcdefghijkl",
			style:     StylePartial,
			showChars: 6,
			want:      "sha256***",
		},
		{
			name:  "full masking",
			value: "sha256~abcdefghijkl",
			style: StyleFull,
			want:  "***",
		},
		{
			name:  "hash masking",
			value: "sha256~abcdefghijkl",
			style: StyleHash,
			want:  "sha256:", // prefix only
		},
		{
			name:      "short value partial",
			value:     "short",
			style:     StylePartial,
			showChars: 10,
			want:      "***",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskValue(tt.value, tt.style, tt.showChars)

			if tt.style == StyleHash {
				if !strings.HasPrefix(got, tt.want) || len(got) != len("sha256:")+16 {
					t.Errorf("MaskValue() = %q, want prefix %q", got, tt.want)
				}
				return
			}
			if got != tt.want {
				t.Errorf("MaskValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMaskingWriter(t *testing.T) {
	redactor, err := NewRedactor([]string{"tok-123"}, DefaultValuePatterns(), "XXXXX")
	if err != nil {
		t.Fatalf("NewRedactor() error = %v", err)
	}

	var buf bytes.Buffer
	w := NewMaskingWriter(redactor, &buf)

	line := "[get] using tok-123 against server\n"
	n, err := w.Write([]byte(line))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != len(line) {
		t.Errorf("Write() n = %d, want %d", n, len(line))
	}
	if strings.Contains(buf.String(), "tok-123") {
		t.Errorf("output leaked secret: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "using XXXXX against") {
		t.Errorf("output = %q, want masked literal", buf.String())
	}
}
