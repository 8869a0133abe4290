package logrecord

import (
	"fmt"

	"github.com/mrzor/fswatch/internal/event"
	"github.com/mrzor/fswatch/internal/pathconv"
)

// Decode parses a buffer of concatenated log records into events, in buffer
// order. Paths are converted to display form with tr.
//
// Decoding stops once less than a full header remains; such trailing bytes
// are discarded. Any record with an invalid length or missing names fails the
// whole buffer: Decode then returns no events and an error wrapping
// ErrMalformedRecord.
func Decode(buf []byte, tr pathconv.Translator) ([]event.Event, error) {
	if tr == nil {
		tr = pathconv.Identity
	}

	var events []event.Event
	offset := 0
	for offset+HeaderSize < len(buf) {
		h := readHeader(buf[offset:])

		remaining := len(buf) - offset
		if h.Length <= 0 || int(h.Length) > remaining || h.Length < HeaderSize {
			return nil, fmt.Errorf("%w: length %d at offset %d with %d bytes remaining",
				ErrMalformedRecord, h.Length, offset, remaining)
		}

		names, err := decodeNames(buf[offset+HeaderSize : offset+int(h.Length)])
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrMalformedRecord, h.SequenceNumber, err)
		}

		ev, err := newEvent(h, names, tr)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)

		offset += int(h.Length)
	}

	return events, nil
}

// newEvent builds the event described by a record header and its names.
func newEvent(h Header, names []string, tr pathconv.Translator) (event.Event, error) {
	ev := event.Event{
		Type:            event.Type(h.EventType),
		PID:             h.ProcessID,
		Sequence:        h.SequenceNumber,
		RecordType:      h.RecordType,
		OriginatingTime: h.OriginatingTime,
		CompletionTime:  h.CompletionTime,
	}

	if ev.Type == event.Move {
		// Source first, destination second.
		if len(names) < 2 {
			return event.Event{}, fmt.Errorf("%w: move record %d carries %d names, want 2",
				ErrMalformedRecord, h.SequenceNumber, len(names))
		}
		ev.OldPath = tr.ToDisplayPath(names[0])
		ev.Path = tr.ToDisplayPath(names[1])
		return ev, nil
	}

	ev.Path = tr.ToDisplayPath(names[0])
	return ev, nil
}
