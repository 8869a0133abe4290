package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlers_Dispatch(t *testing.T) {
	var got []string
	h := &Handlers{
		OnChange: func(path string, pid uint64) { got = append(got, "change:"+path) },
		OnCreate: func(path string, pid uint64) { got = append(got, "create:"+path) },
		OnDelete: func(path string, pid uint64) { got = append(got, "delete:"+path) },
		OnRenameOrMove: func(newPath, oldPath string, pid uint64) {
			got = append(got, "move:"+oldPath+">"+newPath)
		},
	}

	assert.True(t, h.Dispatch(Event{Type: Change, Path: `C:\a`}))
	assert.True(t, h.Dispatch(Event{Type: Create, Path: `C:\b`}))
	assert.True(t, h.Dispatch(Event{Type: Delete, Path: `C:\c`}))
	assert.True(t, h.Dispatch(Event{Type: Move, Path: `C:\new`, OldPath: `C:\old`}))
	assert.False(t, h.Dispatch(Event{Type: Close, Path: `C:\a`}))
	assert.False(t, h.Dispatch(Event{Type: Unknown, Path: `C:\a`}))

	assert.Equal(t, []string{`change:C:\a`, `create:C:\b`, `delete:C:\c`, `move:C:\old>C:\new`}, got)
}

func TestHandlers_DispatchSkipsMissingCallbacks(t *testing.T) {
	h := &Handlers{}
	assert.False(t, h.Dispatch(Event{Type: Delete, Path: "x"}))

	var nilHandlers *Handlers
	assert.False(t, nilHandlers.Dispatch(Event{Type: Delete, Path: "x"}))
}

func TestEvent_Overflow(t *testing.T) {
	assert.False(t, Event{RecordType: 0}.Overflow())
	assert.False(t, Event{RecordType: RecordFlagStatic}.Overflow())
	assert.True(t, Event{RecordType: RecordFlagOutOfMemory}.Overflow())
	assert.True(t, Event{RecordType: RecordFlagExceedMemoryAllowance | RecordFlagStatic}.Overflow())
}

func TestType_String(t *testing.T) {
	assert.Equal(t, "create", Create.String())
	assert.Equal(t, "move", Move.String())
	assert.Equal(t, "type(42)", Type(42).String())
	assert.True(t, Change.Postponable())
	assert.False(t, Delete.Postponable())
}

func TestHandlers_OnEventSeesDeliveredEventsOnly(t *testing.T) {
	var full []Event
	var deleted []string
	h := &Handlers{
		OnDelete: func(path string, _ uint64) { deleted = append(deleted, path) },
		OnEvent:  func(ev Event) { full = append(full, ev) },
	}

	move := Event{Type: Move, Path: `C:\new`, OldPath: `C:\old`, Sequence: 3, CompletionTime: 99}
	assert.True(t, h.Dispatch(move))
	assert.True(t, h.Dispatch(Event{Type: Delete, Path: `C:\gone`}))
	assert.False(t, h.Dispatch(Event{Type: Close, Path: `C:\new`}))

	assert.Equal(t, []string{`C:\gone`}, deleted)
	if assert.Len(t, full, 2) {
		assert.Equal(t, move, full[0])
		assert.Equal(t, Delete, full[1].Type)
	}
}
