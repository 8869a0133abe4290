package eventexpr

import (
	"crypto/sha256"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/fswatch/internal/event"
)

// TraceIDEvaluator derives a trace ID from an event, so that related events
// (for example all events of one process) share a trace.
type TraceIDEvaluator struct {
	program *vm.Program
	rawExpr string
}

// NewTraceIDEvaluator compiles exprStr. An empty exprStr yields an evaluator
// that always returns the zero trace ID, leaving the choice to the SDK.
func NewTraceIDEvaluator(exprStr string) (*TraceIDEvaluator, error) {
	if exprStr == "" {
		return &TraceIDEvaluator{}, nil
	}

	program, err := expr.Compile(exprStr, expr.Env(typeEnv))
	if err != nil {
		return nil, fmt.Errorf("failed to compile trace-id expression: %w", err)
	}

	return &TraceIDEvaluator{
		program: program,
		rawExpr: exprStr,
	}, nil
}

// Evaluate returns the trace ID for ev. A result that is a valid 32-char hex
// trace ID is used as is; anything else is hashed with SHA-256.
func (e *TraceIDEvaluator) Evaluate(ev event.Event) (trace.TraceID, error) {
	if e.program == nil {
		return trace.TraceID{}, nil
	}

	output, err := expr.Run(e.program, Env(ev))
	if err != nil {
		return trace.TraceID{}, fmt.Errorf("failed to evaluate trace-id expression: %w", err)
	}

	resultStr := fmt.Sprint(output)
	if len(resultStr) == 32 {
		if traceID, err := trace.TraceIDFromHex(resultStr); err == nil {
			return traceID, nil
		}
	}

	hash := sha256.Sum256([]byte(resultStr))
	var traceID trace.TraceID
	copy(traceID[:], hash[:16])
	return traceID, nil
}
