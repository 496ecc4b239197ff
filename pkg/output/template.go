package output

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

var (
	exprPattern     = regexp.MustCompile(`\{\{([^}]+)\}\}`)
	variablePattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_\.]*)\}`)
)

// TemplateEngine renders summary messages such as
// "{verb} exited with {status}" or "{{ iteration * 2 }} polls".
type TemplateEngine struct {
	mu       sync.Mutex
	programs map[string]*vm.Program
}

// NewTemplateEngine creates a template engine.
func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{programs: make(map[string]*vm.Program)}
}

// Render substitutes {{expression}} first and {variable} second.
func (t *TemplateEngine) Render(template string, data map[string]any) (string, error) {
	if template == "" {
		return "", nil
	}
	if data == nil {
		data = map[string]any{}
	}

	var firstErr error
	result := exprPattern.ReplaceAllStringFunc(template, func(match string) string {
		value, err := t.evaluate(strings.TrimSpace(match[2:len(match)-2]), data)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return fmt.Sprint(value)
	})
	if firstErr != nil {
		return "", fmt.Errorf("failed to evaluate expression: %w", firstErr)
	}

	result = variablePattern.ReplaceAllStringFunc(result, func(match string) string {
		value, err := resolveVariable(match[1:len(match)-1], data)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return fmt.Sprint(value)
	})
	if firstErr != nil {
		return "", fmt.Errorf("failed to resolve variable: %w", firstErr)
	}

	return result, nil
}

func (t *TemplateEngine) evaluate(expression string, data map[string]any) (any, error) {
	t.mu.Lock()
	program, ok := t.programs[expression]
	t.mu.Unlock()

	if !ok {
		var err error
		program, err = expr.Compile(expression, expr.Env(data), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression '%s': %w", expression, err)
		}
		t.mu.Lock()
		t.programs[expression] = program
		t.mu.Unlock()
	}

	result, err := expr.Run(program, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute expression '%s': %w", expression, err)
	}
	return result, nil
}

// resolveVariable resolves a dotted path like "status" or "reference.file".
func resolveVariable(path string, data map[string]any) (any, error) {
	var current any = data
	for _, part := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[part]
			if !ok {
				return nil, fmt.Errorf("variable '%s' not found", path)
			}
			current = val
		case map[string]string:
			val, ok := v[part]
			if !ok {
				return nil, fmt.Errorf("variable '%s' not found", path)
			}
			current = val
		default:
			return nil, fmt.Errorf("cannot access field '%s' on non-map type", part)
		}
	}
	return current, nil
}
