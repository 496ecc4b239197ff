package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleResult() map[string]any {
	return map[string]any{
		"verb":   "get",
		"cmd":    "oc get pods --token=XXXXX",
		"out":    "pod-a\npod-b\n",
		"err":    "",
		"status": 0,
	}
}

func TestManager_Formats(t *testing.T) {
	m := NewManager()
	assert.Equal(t, []string{"json", "table", "yaml"}, m.Formats())

	assert.NoError(t, m.Validate(""))
	assert.NoError(t, m.Validate("JSON"))

	err := m.Validate("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json, table, yaml")
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewManager().Format(&buf, sampleResult(), "json"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "oc get pods --token=XXXXX", decoded["cmd"])
	assert.Equal(t, float64(0), decoded["status"])
	assert.True(t, strings.HasSuffix(buf.String(), "}\n"))
	assert.Contains(t, buf.String(), "\n  \"cmd\"")
}

func TestJSONFormatter_Compact(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewFormatConfig()
	cfg.Pretty = false
	require.NoError(t, NewJSONFormatter().Format(&buf, map[string]int{"status": 1}, cfg))
	assert.Equal(t, "{\"status\":1}\n", buf.String())
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewManager().Format(&buf, sampleResult(), "yaml"))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "pod-a\npod-b\n", decoded["out"])
	assert.Equal(t, "get", decoded["verb"])

	buf.Reset()
	require.NoError(t, NewYAMLFormatter().Format(&buf, nil, nil))
	assert.Equal(t, "null\n", buf.String())
}

func TestTableFormatter_Map(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager()
	m.SetConfig(NewFormatConfig().WithColors(false))
	require.NoError(t, m.Format(&buf, sampleResult(), "table"))

	out := buf.String()
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "oc get pods --token=XXXXX")
	assert.Contains(t, out, "pod-b")
	assert.Less(t, strings.Index(out, "cmd"), strings.Index(out, "verb"), "keys are sorted")
}

func TestTableFormatter_Slice(t *testing.T) {
	rows := []map[string]any{
		{"name": "oc", "path": "/usr/bin/oc"},
		{"name": "kubectl", "path": "/usr/local/bin/kubectl"},
	}

	var buf bytes.Buffer
	require.NoError(t, NewTableFormatter().Format(&buf, rows, NewFormatConfig().WithColors(false)))
	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "PATH")
	assert.Contains(t, out, "/usr/local/bin/kubectl")
}

func TestTableFormatter_Errors(t *testing.T) {
	f := NewTableFormatter()
	var buf bytes.Buffer
	assert.Error(t, f.Format(&buf, nil, nil))
	assert.Error(t, f.Format(&buf, 42, nil))
	assert.Error(t, f.Format(&buf, []map[string]any{}, nil))
	assert.Error(t, f.Format(&buf, []int{1}, nil))
	assert.Error(t, f.Format(&buf, map[int]string{1: "a"}, nil))
}

func TestCell(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		maxWidth int
		want     string
	}{
		{name: "nil", value: nil, want: ""},
		{name: "trailing newline", value: "a\nb\n", maxWidth: 10, want: "a\nb"},
		{name: "truncated", value: "abcdefghij", maxWidth: 6, want: "abc..."},
		{name: "per line", value: "abcdefghij\nxy", maxWidth: 6, want: "abc...\nxy"},
		{name: "string map", value: map[string]string{"b": "2", "a": "1"}, want: "a=1\nb=2"},
		{name: "number", value: 3, want: "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cell(tt.value, tt.maxWidth))
		})
	}
}

func TestTemplateEngine_Render(t *testing.T) {
	engine := NewTemplateEngine()
	data := map[string]any{
		"verb":      "rollout",
		"status":    0,
		"iteration": 3,
		"reference": map[string]string{"file": "dc.yaml"},
	}

	tests := []struct {
		name     string
		template string
		want     string
		wantErr  bool
	}{
		{name: "empty", template: "", want: ""},
		{name: "variables", template: "{verb} exited with {status}", want: "rollout exited with 0"},
		{name: "nested", template: "applied {reference.file}", want: "applied dc.yaml"},
		{name: "expression", template: "{{ iteration * 2 }} checks", want: "6 checks"},
		{name: "missing variable", template: "{nope}", wantErr: true},
		{name: "bad expression", template: "{{ 1 + }}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Render(tt.template, data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
