package yaml

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/BDNK1/chatflow/runtime"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Custom expression functions available in every condition
var exprFunctions = []expr.Option{
	expr.Function("blank", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		return strings.TrimSpace(s) == "", nil
	}, new(func(any) bool)),
}

// ExpressionEvaluator matches next_step_logic conditions. Conditions with a When
// expression are evaluated with expr-lang against the user data; all others use
// plain field/value equality.
//
// User data keys become expression variables with every character outside
// [A-Za-z0-9_] replaced by an underscore, so the key "contact-phone" is written
// contact_phone. Unknown variables evaluate to nil.
type ExpressionEvaluator struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

func NewExpressionEvaluator() *ExpressionEvaluator {
	return &ExpressionEvaluator{programs: make(map[string]*vm.Program)}
}

func (e *ExpressionEvaluator) Match(cond runtime.Condition, data map[string]string) (bool, error) {
	if cond.When == "" {
		return runtime.EqualityEvaluator{}.Match(cond, data)
	}

	program, err := e.program(cond.When)
	if err != nil {
		return false, err
	}

	env := make(map[string]any, len(data))
	for k, v := range data {
		env[FormatKey(k)] = v
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("error evaluating %q: %w", cond.When, err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q evaluated to %T, expected boolean", cond.When, out)
	}
	return result, nil
}

// Compile checks an expression without running it. Used by flow validation.
func (e *ExpressionEvaluator) Compile(expression string) error {
	_, err := e.program(expression)
	return err
}

func (e *ExpressionEvaluator) program(expression string) (*vm.Program, error) {
	e.mu.RLock()
	p, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}

	opts := []expr.Option{
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	}
	opts = append(opts, exprFunctions...)

	p, err := expr.Compile(expression, opts...)
	if err != nil {
		return nil, fmt.Errorf("error compiling %q: %w", expression, err)
	}

	e.mu.Lock()
	e.programs[expression] = p
	e.mu.Unlock()
	return p, nil
}

// FormatKey turns a user data key into an expression identifier.
func FormatKey(key string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return '_'
	}, key)
}
