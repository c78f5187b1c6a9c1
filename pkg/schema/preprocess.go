package schema

import (
	"fmt"
	"maps"
	"slices"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

type fieldProgram struct {
	field      string
	expression string
	program    *exprvm.Program
}

// compilePreprocess compiles one expression per field. At run time the
// expressions run in field order against the incoming data, each seeing the
// fields computed before it. A nil result leaves the field untouched.
func compilePreprocess(fields map[string]string) (func(map[string]any) (map[string]any, error), error) {
	programs := make([]fieldProgram, 0, len(fields))
	for _, field := range slices.Sorted(maps.Keys(fields)) {
		expression := fields[field]
		if expression == "" {
			return nil, fmt.Errorf("preprocess %s: expression must not be empty", field)
		}
		program, err := exprlang.Compile(expression,
			exprlang.Env(map[string]any{}),
			exprlang.AllowUndefinedVariables(),
		)
		if err != nil {
			return nil, fmt.Errorf("preprocess %s: compile %q: %w", field, expression, err)
		}
		programs = append(programs, fieldProgram{field: field, expression: expression, program: program})
	}
	return func(data map[string]any) (map[string]any, error) {
		for _, p := range programs {
			result, err := exprlang.Run(p.program, data)
			if err != nil {
				return nil, fmt.Errorf("preprocess %s: evaluate %q: %w", p.field, p.expression, err)
			}
			if result != nil {
				data[p.field] = result
			}
		}
		return data, nil
	}, nil
}
