package eventexpr

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/fswatch/internal/config"
	"github.com/mrzor/fswatch/internal/event"
)

var sample = event.Event{
	Type:     event.Move,
	Path:     `C:\Users\me\Report.DOCX`,
	OldPath:  `C:\Users\me\~draft.tmp`,
	PID:      4242,
	Sequence: 17,
}

func TestEnv(t *testing.T) {
	env := Env(sample)
	assert.Equal(t, "move", env["type"])
	assert.Equal(t, `C:\Users\me`, env["dir"])
	assert.Equal(t, "Report.DOCX", env["base"])
	assert.Equal(t, ".docx", env["ext"])
	assert.Equal(t, uint64(4242), env["pid"])
	assert.Equal(t, int32(17), env["sequence"])
	assert.Equal(t, false, env["overflow"])
}

func TestEnv_PosixPathsAndDotfiles(t *testing.T) {
	env := Env(event.Event{Type: event.Create, Path: "/home/me/.bashrc"})
	assert.Equal(t, "/home/me", env["dir"])
	assert.Equal(t, ".bashrc", env["base"])
	assert.Equal(t, "", env["ext"])

	env = Env(event.Event{Type: event.Create, Path: "relative"})
	assert.Equal(t, "", env["dir"])
	assert.Equal(t, "relative", env["base"])
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name string
		src  string
		ev   event.Event
		want bool
	}{
		{name: "empty matches all", src: "", ev: sample, want: true},
		{name: "type", src: `type == "move"`, ev: sample, want: true},
		{name: "extension", src: `ext in [".tmp", ".swp"]`, ev: sample, want: false},
		{name: "old path", src: `old_path endsWith ".tmp"`, ev: sample, want: true},
		{name: "pid", src: `pid != 4242`, ev: sample, want: false},
		{name: "dir prefix", src: `dir startsWith "C:\\Users"`, ev: sample, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(tt.src)
			require.NoError(t, err)
			got, err := f.Match(tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewFilter_Errors(t *testing.T) {
	_, err := NewFilter(`path +`)
	assert.Error(t, err)

	_, err = NewFilter(`path`)
	assert.Error(t, err, "non-boolean expressions are rejected at compile time")

	_, err = NewFilter(`unknown_var == 1`)
	assert.Error(t, err)
}

func TestEvaluator(t *testing.T) {
	evaluator, err := NewEvaluator([]config.CustomAttribute{
		{Name: "fs.ext", Expression: `ext`},
		{Name: "fs.renamed", Expression: `old_path != ""`},
		{Name: "fs.split", Expression: `{"dir": dir, "base name": base}`},
	})
	require.NoError(t, err)

	attrs, err := evaluator.Evaluate(sample)
	require.NoError(t, err)
	require.Len(t, attrs, 4)

	assert.Equal(t, "fs.ext", string(attrs[0].Key))
	assert.Equal(t, ".docx", attrs[0].Value.AsString())
	assert.Equal(t, "fs.renamed", string(attrs[1].Key))
	assert.Equal(t, "true", attrs[1].Value.AsString())

	// Map keys are expanded in sorted order and sanitized.
	assert.Equal(t, "fs.split.base_name", string(attrs[2].Key))
	assert.Equal(t, "Report.DOCX", attrs[2].Value.AsString())
	assert.Equal(t, "fs.split.dir", string(attrs[3].Key))
}

func TestEvaluator_RuntimeErrorKeepsOtherAttributes(t *testing.T) {
	evaluator, err := NewEvaluator([]config.CustomAttribute{
		{Name: "bad", Expression: `int(base)`},
		{Name: "good", Expression: `type`},
	})
	require.NoError(t, err)

	attrs, err := evaluator.Evaluate(sample)
	assert.Error(t, err)
	require.Len(t, attrs, 1)
	assert.Equal(t, "good", string(attrs[0].Key))
}

func TestEvaluator_CompileError(t *testing.T) {
	_, err := NewEvaluator([]config.CustomAttribute{{Name: "x", Expression: `nope(`}})
	assert.ErrorContains(t, err, `attribute "x"`)
}

func TestEvaluator_NoAttributes(t *testing.T) {
	evaluator, err := NewEvaluator(nil)
	require.NoError(t, err)
	attrs, err := evaluator.Evaluate(sample)
	assert.NoError(t, err)
	assert.Nil(t, attrs)
}

func TestTraceIDEvaluator(t *testing.T) {
	empty, err := NewTraceIDEvaluator("")
	require.NoError(t, err)
	id, err := empty.Evaluate(sample)
	require.NoError(t, err)
	assert.False(t, id.IsValid())

	literal, err := NewTraceIDEvaluator(`"a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4"`)
	require.NoError(t, err)
	id, err = literal.Evaluate(sample)
	require.NoError(t, err)
	assert.Equal(t, "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4", id.String())

	byPID, err := NewTraceIDEvaluator(`string(pid)`)
	require.NoError(t, err)
	id, err = byPID.Evaluate(sample)
	require.NoError(t, err)

	hash := sha256.Sum256([]byte("4242"))
	var want trace.TraceID
	copy(want[:], hash[:16])
	assert.Equal(t, want, id)

	other, err := byPID.Evaluate(event.Event{Type: event.Create, Path: `C:\x`, PID: 4242})
	require.NoError(t, err)
	assert.Equal(t, id, other, "events of one process share a trace")
}
