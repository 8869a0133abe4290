package logrecord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/fswatch/internal/event"
	"github.com/mrzor/fswatch/internal/pathconv"
)

func buildBuffer(t *testing.T, events ...event.Event) []byte {
	t.Helper()
	var buf []byte
	for _, ev := range events {
		var err error
		buf, err = AppendRecord(buf, ev)
		require.NoError(t, err)
	}
	return buf
}

func TestDecode_PreservesOrderAndFields(t *testing.T) {
	in := []event.Event{
		{Type: event.Create, Path: `C:\w\a.txt`, PID: 100, Sequence: 1, OriginatingTime: 11, CompletionTime: 12},
		{Type: event.Change, Path: `C:\w\a.txt`, PID: 100, Sequence: 2},
		{Type: event.Move, Path: `C:\w\b.txt`, OldPath: `C:\w\a.txt`, PID: 101, Sequence: 3},
		{Type: event.Delete, Path: `C:\w\ünïcødé 文件.txt`, PID: 102, Sequence: 4},
		{Type: event.Close, Path: `C:\w\b.txt`, PID: 101, Sequence: 5, RecordType: event.RecordFlagOutOfMemory},
	}

	got, err := Decode(buildBuffer(t, in...), pathconv.Identity)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestDecode_EmptyBuffer(t *testing.T) {
	got, err := Decode(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecode_TranslatesDevicePaths(t *testing.T) {
	tbl := pathconv.NewTable(pathconv.Mapping{Drive: "C:", Device: `\Device\HarddiskVolume3`})
	buf := buildBuffer(t,
		event.Event{Type: event.Create, Path: `\Device\HarddiskVolume3\x.txt`},
		event.Event{Type: event.Move, OldPath: `\Device\HarddiskVolume3\a`, Path: `\Device\HarddiskVolume3\b`},
	)

	got, err := Decode(buf, tbl)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, `C:\x.txt`, got[0].Path)
	assert.Equal(t, `C:\b`, got[1].Path)
	assert.Equal(t, `C:\a`, got[1].OldPath)
}

func TestDecode_MoveSubstringOrder(t *testing.T) {
	// Hand-built tail: substring[0] is the old path, substring[1] the new one.
	tail, err := encodeNames([]string{"old", "new"})
	require.NoError(t, err)

	buf := appendHeader(nil, Header{
		Length:    int32(HeaderSize + len(tail)),
		EventType: int32(event.Move),
		ProcessID: 7,
	})
	buf = append(buf, tail...)

	got, err := Decode(buf, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "old", got[0].OldPath)
	assert.Equal(t, "new", got[0].Path)
	assert.Equal(t, uint64(7), got[0].PID)
}

func TestDecode_MalformedLength(t *testing.T) {
	valid := buildBuffer(t, event.Event{Type: event.Create, Path: `C:\a`})

	tests := []struct {
		name   string
		length int32
	}{
		{"zero", 0},
		{"negative", -8},
		{"shorter than header", HeaderSize - 1},
		{"beyond buffer", int32(len(valid)*2 + 8)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := appendHeader(nil, Header{Length: tt.length, EventType: int32(event.Delete)})
			bad = append(bad, make([]byte, 16)...)

			// A malformed record after a valid one still yields zero events.
			buf := append(append([]byte{}, valid...), bad...)

			got, err := Decode(buf, nil)
			require.ErrorIs(t, err, ErrMalformedRecord)
			assert.Nil(t, got)
		})
	}
}

func TestDecode_LengthBeyondRemainingBuffer(t *testing.T) {
	first := buildBuffer(t, event.Event{Type: event.Create, Path: `C:\a`})
	second := buildBuffer(t, event.Event{Type: event.Delete, Path: `C:\b`})
	buf := append(first, second...)

	// Claims a length that fits the whole buffer but not what remains of it.
	byteOrder.PutUint32(buf[len(first):], uint32(len(buf)-8))

	_, err := Decode(buf, nil)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestDecode_MoveWithSingleName(t *testing.T) {
	tail, err := encodeNames([]string{"only"})
	require.NoError(t, err)
	tail = tail[:len(tail)-2] // drop the NUL so a single substring remains

	buf := appendHeader(nil, Header{Length: int32(HeaderSize + len(tail)), EventType: int32(event.Move)})
	buf = append(buf, tail...)

	_, err = Decode(buf, nil)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestDecode_DiscardsTrailingPartialHeader(t *testing.T) {
	buf := buildBuffer(t, event.Event{Type: event.Delete, Path: `C:\a`})
	buf = append(buf, make([]byte, HeaderSize-1)...)

	got, err := Decode(buf, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, `C:\a`, got[0].Path)
}

func TestDecode_IgnoresOddTailByte(t *testing.T) {
	tail, err := encodeNames([]string{"x"})
	require.NoError(t, err)
	tail = append(tail, 0xff)

	buf := appendHeader(nil, Header{Length: int32(HeaderSize + len(tail)), EventType: int32(event.Change)})
	buf = append(buf, tail...)

	got, err := Decode(buf, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].Path)
}

func TestAppendRecord_PadsToPointerSize(t *testing.T) {
	buf := buildBuffer(t, event.Event{Type: event.Create, Path: "abc"})
	assert.Zero(t, len(buf)%8)
	assert.Equal(t, int32(len(buf)), readHeader(buf).Length)
}
