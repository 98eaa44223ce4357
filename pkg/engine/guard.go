package engine

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

// evalGuard evaluates a step's `when:` condition against the frame's
// accumulated outputs. An empty condition always matches.
func evalGuard(cond string, outputs map[string]string) (bool, error) {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return true, nil
	}

	env := make(map[string]any, len(outputs))
	for k, v := range outputs {
		env[k] = v
	}

	program, err := expr.Compile(cond, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", cond, err)
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval condition %q: %w", cond, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return bool (got %T: %v)", cond, output, output)
	}
	return result, nil
}
