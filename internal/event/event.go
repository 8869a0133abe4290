// Package event defines the decoded file-system events and the subscriber
// callbacks they are delivered to.
package event

import "fmt"

// Type is the kind of file-system activity a record describes.
// Values match the FILE_SYSTEM_EVENT_* constants of the filter driver.
type Type int32

const (
	Unknown Type = 0
	Create  Type = 1
	Delete  Type = 2
	Change  Type = 3
	Move    Type = 4
	Close   Type = 5
)

// String returns the lower-case name of the event type.
func (t Type) String() string {
	switch t {
	case Create:
		return "create"
	case Delete:
		return "delete"
	case Change:
		return "change"
	case Move:
		return "move"
	case Close:
		return "close"
	case Unknown:
		return "unknown"
	default:
		return fmt.Sprintf("type(%d)", int32(t))
	}
}

// Postponable reports whether events of this type may be withheld until the
// matching Close when aggregation is enabled.
func (t Type) Postponable() bool {
	return t == Create || t == Change
}

// Record type flags set by the driver when it could not allocate a log record.
const (
	RecordFlagStatic                uint32 = 0x80000000
	RecordFlagExceedMemoryAllowance uint32 = 0x20000000
	RecordFlagOutOfMemory           uint32 = 0x10000000
	RecordFlagMask                  uint32 = 0xffff0000
)

const recordFlagsSignallingDroppedData = RecordFlagExceedMemoryAllowance | RecordFlagOutOfMemory

// Event is a single decoded file-system event.
//
// OldPath is only set for Move events, where Path is the destination and
// OldPath the source of the rename.
type Event struct {
	Type     Type
	Path     string
	OldPath  string
	PID      uint64
	Sequence int32

	// RecordType carries the raw record type including the driver's flags.
	RecordType uint32

	// Timestamps as reported by the driver; their epoch depends on the backend.
	OriginatingTime uint64
	CompletionTime  uint64
}

// Overflow reports whether the driver flagged this record as produced while
// it was out of log buffers, meaning earlier records were lost.
func (e Event) Overflow() bool {
	return e.RecordType&recordFlagsSignallingDroppedData != 0
}

// String formats the event for logs.
func (e Event) String() string {
	if e.Type == Move {
		return fmt.Sprintf("%s %s -> %s (pid %d)", e.Type, e.OldPath, e.Path, e.PID)
	}
	return fmt.Sprintf("%s %s (pid %d)", e.Type, e.Path, e.PID)
}

// FileEventHandler receives Change, Create and Delete notifications.
type FileEventHandler func(path string, pid uint64)

// MoveEventHandler receives rename and move notifications.
type MoveEventHandler func(newPath, oldPath string, pid uint64)

// Handlers is the subscriber surface. Every callback is optional; a nil
// callback means events of that kind are skipped.
//
// OnEvent, when set, additionally receives every delivered event in full,
// including the driver timestamps the typed callbacks do not carry.
type Handlers struct {
	OnChange       FileEventHandler
	OnCreate       FileEventHandler
	OnDelete       FileEventHandler
	OnRenameOrMove MoveEventHandler
	OnEvent        func(Event)
}

// Dispatch invokes the callbacks matching ev.Type. It reports whether any
// callback was invoked. Close and Unknown events are never delivered.
func (h *Handlers) Dispatch(ev Event) bool {
	if h == nil {
		return false
	}

	called := false
	switch ev.Type {
	case Change:
		if h.OnChange != nil {
			h.OnChange(ev.Path, ev.PID)
			called = true
		}
	case Create:
		if h.OnCreate != nil {
			h.OnCreate(ev.Path, ev.PID)
			called = true
		}
	case Delete:
		if h.OnDelete != nil {
			h.OnDelete(ev.Path, ev.PID)
			called = true
		}
	case Move:
		if h.OnRenameOrMove != nil {
			h.OnRenameOrMove(ev.Path, ev.OldPath, ev.PID)
			called = true
		}
	default:
		return false
	}

	if h.OnEvent != nil {
		h.OnEvent(ev)
		called = true
	}
	return called
}
