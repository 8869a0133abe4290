package output

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mrzor/fswatch/internal/config"
	"github.com/mrzor/fswatch/internal/event"
	"github.com/mrzor/fswatch/internal/eventexpr"
	"github.com/mrzor/fswatch/internal/timesync"
)

type fakeNames map[uint64]string

func (f fakeNames) Name(pid uint64) string { return f[pid] }

type recordingSink struct {
	name   string
	err    error
	events []event.Event
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Deliver(ev event.Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, fakeNames{10: "notepad.exe"})

	require.NoError(t, sink.Deliver(event.Event{Type: event.Create, Path: `C:\a.txt`, PID: 10}))
	require.NoError(t, sink.Deliver(event.Event{Type: event.Change, Path: `C:\a.txt`, PID: 11}))
	require.NoError(t, sink.Deliver(event.Event{Type: event.Delete, Path: `C:\a.txt`, PID: 10}))
	require.NoError(t, sink.Deliver(event.Event{Type: event.Move, OldPath: `C:\a.txt`, Path: `C:\b.txt`, PID: 10}))
	require.NoError(t, sink.Deliver(event.Event{Type: event.Close, Path: `C:\b.txt`}))

	assert.Equal(t, `Created: C:\a.txt (notepad.exe, pid 10)
Changed: C:\a.txt (pid 11)
Deleted: C:\a.txt (notepad.exe, pid 10)
Moved: C:\a.txt -> C:\b.txt (notepad.exe, pid 10)
`, buf.String())
}

func TestHandlers_FanOut(t *testing.T) {
	failing := &recordingSink{name: "failing", err: errors.New("boom")}
	ok := &recordingSink{name: "ok"}

	h := Handlers(slog.New(slog.NewTextHandler(io.Discard, nil)), failing, ok)

	ev := event.Event{Type: event.Delete, Path: `C:\x`, PID: 1}
	assert.True(t, h.Dispatch(ev))
	assert.False(t, h.Dispatch(event.Event{Type: event.Close, Path: `C:\x`}))

	assert.Equal(t, []event.Event{ev}, failing.events)
	assert.Equal(t, []event.Event{ev}, ok.events, "a failing sink must not starve the next one")
}

func newRecorder() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp
}

func attrMap(attrs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value.Emit()
	}
	return m
}

func TestOTELFormatter_Span(t *testing.T) {
	sr, tp := newRecorder()
	evaluator, err := eventexpr.NewEvaluator([]config.CustomAttribute{
		{Name: "fs.ext", Expression: `ext`},
	})
	require.NoError(t, err)

	const filetime = 132539328000000000 // 2021-01-01T00:00:00Z
	f := NewOTELFormatter(tp.Tracer("test"), timesync.Filetime{}, evaluator, nil, nil)

	require.NoError(t, f.Deliver(event.Event{
		Type:            event.Move,
		Path:            `C:\b.TXT`,
		OldPath:         `C:\a.txt`,
		PID:             77,
		Sequence:        5,
		OriginatingTime: filetime,
		CompletionTime:  filetime + 20_000, // 2ms
	}))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]

	assert.Equal(t, "fs.move", span.Name())
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), span.StartTime().UTC())
	assert.Equal(t, 2*time.Millisecond, span.EndTime().Sub(span.StartTime()))

	attrs := attrMap(span.Attributes())
	assert.Equal(t, `C:\b.TXT`, attrs["fs.path"])
	assert.Equal(t, `C:\a.txt`, attrs["fs.old_path"])
	assert.Equal(t, "77", attrs["process.pid"])
	assert.Equal(t, "5", attrs["fs.sequence"])
	assert.Equal(t, ".txt", attrs["fs.ext"])
	assert.Equal(t, codes.Unset, span.Status().Code)
}

func TestOTELFormatter_OverflowMarksError(t *testing.T) {
	sr, tp := newRecorder()
	f := NewOTELFormatter(tp.Tracer("test"), nil, nil, nil, nil)

	require.NoError(t, f.Deliver(event.Event{
		Type:       event.Change,
		Path:       `C:\x`,
		RecordType: event.RecordFlagOutOfMemory,
	}))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	_, hasOld := attrMap(spans[0].Attributes())["fs.old_path"]
	assert.False(t, hasOld)
}

func TestOTELFormatter_TraceIDGrouping(t *testing.T) {
	sr, tp := newRecorder()
	traceIDs, err := eventexpr.NewTraceIDEvaluator(`string(pid)`)
	require.NoError(t, err)
	f := NewOTELFormatter(tp.Tracer("test"), nil, nil, traceIDs, nil)

	require.NoError(t, f.Deliver(event.Event{Type: event.Create, Path: `C:\a`, PID: 1}))
	require.NoError(t, f.Deliver(event.Event{Type: event.Change, Path: `C:\b`, PID: 1}))
	require.NoError(t, f.Deliver(event.Event{Type: event.Change, Path: `C:\c`, PID: 2}))

	spans := sr.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, spans[0].SpanContext().TraceID(), spans[1].SpanContext().TraceID())
	assert.NotEqual(t, spans[0].SpanContext().TraceID(), spans[2].SpanContext().TraceID())
	assert.True(t, spans[0].Parent().IsRemote())
}

func TestOTELFormatter_CustomAttributeError(t *testing.T) {
	sr, tp := newRecorder()
	evaluator, err := eventexpr.NewEvaluator([]config.CustomAttribute{
		{Name: "n", Expression: `int(base)`},
	})
	require.NoError(t, err)
	f := NewOTELFormatter(tp.Tracer("test"), nil, evaluator, nil, nil)

	require.NoError(t, f.Deliver(event.Event{Type: event.Create, Path: `C:\not-a-number`}))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, attrMap(spans[0].Attributes()), "_custom_attribute_error")
}
