// Package condition compiles expression-language watch bodies.
//
// An expression sees the watch observation:
//
//	output     retained output of the watch
//	new        output since the previous evaluation
//	lines      new, split into lines
//	last       last non-empty line of output
//	iteration  evaluation count, starting at 1
//
// and the helpers fromJSON(string) and count(string, substring). A JSON parse
// failure inside fromJSON is reported as transient so the watch retries it.
package condition

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/CliForge/ocrun/pkg/watch"
)

// Condition is a compiled boolean expression.
type Condition struct {
	source  string
	program *vm.Program
}

// evalState collects side results of one evaluation.
type evalState struct {
	jsonErr error
}

// Compile parses source and checks that it yields a boolean.
func Compile(source string) (*Condition, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("condition is empty")
	}

	program, err := expr.Compile(source, expr.Env(buildEnvironment(watch.Observation{}, &evalState{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile condition: %w", err)
	}

	return &Condition{source: source, program: program}, nil
}

// String returns the source expression.
func (c *Condition) String() string {
	return c.source
}

// Evaluate runs the condition against obs.
func (c *Condition) Evaluate(obs watch.Observation) (bool, error) {
	state := &evalState{}
	output, err := expr.Run(c.program, buildEnvironment(obs, state))
	if err != nil {
		if state.jsonErr != nil {
			return false, watch.Transient(fmt.Errorf("failed to parse watch output: %w", state.jsonErr))
		}
		return false, fmt.Errorf("failed to evaluate condition: %w", err)
	}

	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not evaluate to boolean: %v", output)
	}
	return result, nil
}

// Body adapts the condition to a watch body.
func (c *Condition) Body() watch.Body {
	return func(ctx context.Context, obs watch.Observation) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return c.Evaluate(obs)
	}
}

// buildEnvironment creates the environment for one evaluation.
func buildEnvironment(obs watch.Observation, state *evalState) map[string]any {
	lines := obs.Lines
	if lines == nil {
		lines = []string{}
	}

	return map[string]any{
		"output":    obs.Output,
		"new":       obs.New,
		"lines":     lines,
		"last":      lastLine(obs.Output),
		"iteration": obs.Iteration,

		"fromJSON": func(s string) (any, error) {
			var v any
			if err := json.Unmarshal([]byte(s), &v); err != nil {
				state.jsonErr = err
				return nil, err
			}
			return v, nil
		},

		"count": func(s, substr string) int {
			return strings.Count(s, substr)
		},
	}
}

func lastLine(text string) string {
	text = strings.TrimRight(text, "\r\n")
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		return text[i+1:]
	}
	return text
}
