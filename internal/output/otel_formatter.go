package output

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/fswatch/internal/event"
	"github.com/mrzor/fswatch/internal/eventexpr"
	"github.com/mrzor/fswatch/internal/timesync"
)

// OTELFormatter emits one span per delivered event. The span covers the
// operation as the driver timed it: from the originating to the completion
// timestamp.
type OTELFormatter struct {
	tracer    trace.Tracer
	stamper   timesync.Stamper
	evaluator *eventexpr.Evaluator
	traceIDs  *eventexpr.TraceIDEvaluator
	logger    *slog.Logger
	now       func() time.Time
}

// NewOTELFormatter creates a formatter. stamper converts the driver's
// timestamps; nil stamps spans with the delivery time. evaluator and
// traceIDs may be nil.
func NewOTELFormatter(
	tracer trace.Tracer,
	stamper timesync.Stamper,
	evaluator *eventexpr.Evaluator,
	traceIDs *eventexpr.TraceIDEvaluator,
	logger *slog.Logger,
) *OTELFormatter {
	if logger == nil {
		logger = slog.Default()
	}
	return &OTELFormatter{
		tracer:    tracer,
		stamper:   stamper,
		evaluator: evaluator,
		traceIDs:  traceIDs,
		logger:    logger,
		now:       time.Now,
	}
}

// Name implements Sink.
func (f *OTELFormatter) Name() string { return "otel" }

// Deliver implements Sink.
func (f *OTELFormatter) Deliver(ev event.Event) error {
	start, end := f.spanTimes(ev)

	ctx := context.Background()
	if parent, ok := f.parentFor(ev); ok {
		ctx = trace.ContextWithSpanContext(ctx, parent)
	}

	_, span := f.tracer.Start(ctx, "fs."+ev.Type.String(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(start),
	)

	attrs := []attribute.KeyValue{
		attribute.String("fs.event", ev.Type.String()),
		attribute.String("fs.path", ev.Path),
		attribute.Int64("fs.sequence", int64(ev.Sequence)),
		//nolint:gosec // Process ids fit int64
		attribute.Int64("process.pid", int64(ev.PID)),
	}
	if ev.Type == event.Move {
		attrs = append(attrs, attribute.String("fs.old_path", ev.OldPath))
	}
	span.SetAttributes(attrs...)

	if ev.Overflow() {
		span.SetStatus(codes.Error, "driver dropped records before this event")
	}

	custom, err := f.evaluator.Evaluate(ev)
	if len(custom) > 0 {
		span.SetAttributes(custom...)
	}
	if err != nil {
		span.SetAttributes(attribute.String("_custom_attribute_error", err.Error()))
	}

	span.End(trace.WithTimestamp(end))
	return nil
}

func (f *OTELFormatter) spanTimes(ev event.Event) (time.Time, time.Time) {
	now := f.now()
	if f.stamper == nil || ev.OriginatingTime == 0 {
		return now, now
	}

	start := f.stamper.ToWallClock(ev.OriginatingTime)
	end := start
	if ev.CompletionTime >= ev.OriginatingTime {
		end = f.stamper.ToWallClock(ev.CompletionTime)
	}
	return start, end
}

// parentFor returns a remote parent carrying the trace ID computed for ev.
func (f *OTELFormatter) parentFor(ev event.Event) (trace.SpanContext, bool) {
	if f.traceIDs == nil {
		return trace.SpanContext{}, false
	}

	traceID, err := f.traceIDs.Evaluate(ev)
	if err != nil {
		f.logger.Debug("trace id expression failed", "event", ev.String(), "error", err)
		return trace.SpanContext{}, false
	}
	if !traceID.IsValid() {
		return trace.SpanContext{}, false
	}

	// The parent span ID is derived from the trace ID so that every span of
	// a trace hangs off the same synthetic root.
	var spanID trace.SpanID
	copy(spanID[:], traceID[8:])
	if !spanID.IsValid() {
		spanID[7] = 1
	}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return sc, true
}
