package action

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult_ToMap(t *testing.T) {
	r := &Result{
		Verb:       "get",
		Cmd:        "oc --token=XXXXX get secret/db -o json",
		Out:        `{"data":{"password":"aHVudGVyMg=="}}`,
		Err:        `warning: {"data": {"key": "c2VjcmV0"}}`,
		Status:     0,
		Reference:  map[string]string{"db.yaml": "kind: Secret"},
		unredacted: "oc --token=abc get secret/db -o json",
	}

	m := r.ToMap()
	assert.Equal(t, "get", m["verb"])
	assert.Equal(t, r.Cmd, m["cmd"])
	assert.Equal(t, r.Out, m["out"])
	assert.Equal(t, `warning: {"data": { REDACTED }}`, m["err"])
	assert.Equal(t, 0, m["status"])
	assert.NotContains(t, m, "reference")

	r.Verbose = true
	assert.Contains(t, r.ToMap(), "reference")

	assert.NotContains(t, r.String(), "--token=abc")
	assert.Equal(t, "oc --token=abc get secret/db -o json", r.UnredactedCommand())
}

func TestResult_FailIf(t *testing.T) {
	ok := &Result{Verb: "get", Status: 0}
	assert.False(t, ok.IsFailed())
	assert.NoError(t, ok.FailIf("unexpected"))

	failed := &Result{Verb: "delete", Cmd: "oc delete dc/web", Err: "not found", Status: 1}
	assert.True(t, failed.IsFailed())

	err := failed.FailIf("cannot delete")
	require.Error(t, err)

	var failedErr *FailedError
	require.True(t, errors.As(err, &failedErr))
	assert.Same(t, failed, failedErr.Result)
	assert.True(t, strings.HasPrefix(err.Error(), "cannot delete; action failed: "))
	assert.Contains(t, err.Error(), "status:1")
}
