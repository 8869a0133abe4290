package eventexpr

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/mrzor/fswatch/internal/event"
)

// Filter is a compiled boolean expression over events.
type Filter struct {
	program *vm.Program
	rawExpr string
}

// NewFilter compiles src. An empty src yields a nil Filter, which matches
// every event.
func NewFilter(src string) (*Filter, error) {
	if src == "" {
		return nil, nil
	}

	program, err := expr.Compile(src, expr.Env(typeEnv), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter expression: %w", err)
	}
	return &Filter{program: program, rawExpr: src}, nil
}

// Match evaluates the filter for ev.
func (f *Filter) Match(ev event.Event) (bool, error) {
	if f == nil {
		return true, nil
	}

	out, err := expr.Run(f.program, Env(ev))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter %q: %w", f.rawExpr, err)
	}
	match, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T, want bool", f.rawExpr, out)
	}
	return match, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.rawExpr
}
