package eventexpr

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mrzor/fswatch/internal/config"
	"github.com/mrzor/fswatch/internal/event"
)

// Evaluator handles compilation and evaluation of custom attribute expressions.
type Evaluator struct {
	customAttrs   []config.CustomAttribute
	compiledExprs []*vm.Program
}

// NewEvaluator creates a new attribute evaluator.
// It pre-compiles all custom attribute expressions.
func NewEvaluator(customAttrs []config.CustomAttribute) (*Evaluator, error) {
	compiledExprs := make([]*vm.Program, len(customAttrs))
	for i, attr := range customAttrs {
		program, err := expr.Compile(attr.Expression, expr.Env(typeEnv))
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression for attribute %q: %w", attr.Name, err)
		}
		compiledExprs[i] = program
	}

	return &Evaluator{
		customAttrs:   customAttrs,
		compiledExprs: compiledExprs,
	}, nil
}

// Evaluate computes the custom attributes for ev. Expressions that fail at
// run time are skipped and reported in the returned error; the attributes
// that did evaluate are still returned.
func (e *Evaluator) Evaluate(ev event.Event) ([]attribute.KeyValue, error) {
	if e == nil || len(e.customAttrs) == 0 {
		return nil, nil
	}

	env := Env(ev)

	var attrs []attribute.KeyValue
	var firstErr error
	for i, customAttr := range e.customAttrs {
		output, err := expr.Run(e.compiledExprs[i], env)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to evaluate expression for attribute %q: %w", customAttr.Name, err)
			}
			continue
		}

		// A map expands into one attribute per key, with dot notation.
		outputValue := reflect.ValueOf(output)
		if outputValue.Kind() == reflect.Map {
			keys := outputValue.MapKeys()
			sort.Slice(keys, func(a, b int) bool {
				return fmt.Sprint(keys[a].Interface()) < fmt.Sprint(keys[b].Interface())
			})
			for _, key := range keys {
				attrName := customAttr.Name + "." + sanitizeAttributeName(fmt.Sprint(key.Interface()))
				attrs = append(attrs, attribute.String(attrName, fmt.Sprint(outputValue.MapIndex(key).Interface())))
			}
			continue
		}

		attrs = append(attrs, attribute.String(customAttr.Name, fmt.Sprint(output)))
	}

	return attrs, firstErr
}

// sanitizeAttributeName replaces non-alphanumeric characters with underscores.
func sanitizeAttributeName(name string) string {
	result := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result[i] = c
		} else {
			result[i] = '_'
		}
	}
	return string(result)
}
