package secrets

import (
	"strings"
	"testing"
)

func TestRedactSensitiveData(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "no match is a no-op",
			input: `{"kind":"ConfigMap","metadata":{"name":"x"}}`,
			want:  `{"kind":"ConfigMap","metadata":{"name":"x"}}`,
		},
		{
			name:  "single compact object",
			input: `{"kind":"Secret","data":{"password":"cGFzcw=="},"type":"Opaque"}`,
			want:  `{"kind":"Secret","data":{ REDACTED },"type":"Opaque"}`,
		},
		{
			name:  "every occurrence",
			input: `[{"data":{"a":"MQ=="}},{"data":{"b":"Mg=="}}]`,
			want:  `[{"data":{ REDACTED }},{"data":{ REDACTED }}]`,
		},
		{
			name:  "pretty printed",
			input: "{\n    \"data\": {\n        \"token\": \"c2VjcmV0\"\n    },\n    \"kind\": \"Secret\"\n}",
			want:  "{\n    \"data\": { REDACTED },\n    \"kind\": \"Secret\"\n}",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactSensitiveData(tt.input); got != tt.want {
				t.Errorf("RedactSensitiveData() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedactor_Redact(t *testing.T) {
	redactor, err := NewRedactor([]string{"abc", "abcdef", ""}, DefaultValuePatterns(), "")
	if err != nil {
		t.Fatalf("NewRedactor() error = %v", err)
	}

	got := redactor.Redact("token abcdef and abc, header Authorization: Bearer zzz.yyy")
	for _, leaked := range []string{"abcdef", "abc", "zzz.yyy"} {
		if strings.Contains(got, leaked) {
			t.Errorf("Redact() = %q leaked %q", got, leaked)
		}
	}
	if strings.Contains(got, "***def") {
		t.Errorf("Redact() = %q partially revealed the longer secret", got)
	}

	flags := redactor.Redact("oc --token=sha256~x get pods")
	if strings.Contains(flags, "sha256~x") {
		t.Errorf("Redact() = %q leaked token flag", flags)
	}
}

func TestRedactor_NilIsPassThrough(t *testing.T) {
	var r *Redactor
	if got := r.Redact("plain"); got != "plain" {
		t.Errorf("Redact() = %q, want %q", got, "plain")
	}
}

func TestNewRedactor_InvalidPattern(t *testing.T) {
	_, err := NewRedactor(nil, []ValuePattern{{Name: "bad", Pattern: "(", Enabled: true}}, "")
	if err == nil {
		t.Fatal("NewRedactor() expected error for invalid pattern")
	}
}
