package logrecord

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mrzor/fswatch/internal/event"
)

// HeaderSize is the size in bytes of the fixed LOG_RECORD header that
// precedes the name payload of every record.
const HeaderSize = 48

// Protocol version implemented by this client.
const (
	ProtocolMajor = 2
	ProtocolMinor = 0
)

// ErrMalformedRecord is returned when a record header does not describe a
// record that fits the buffer.
var ErrMalformedRecord = errors.New("malformed log record")

// Header matches the LOG_RECORD struct of the filter driver, including the
// embedded RECORD_DATA.
type Header struct {
	Length          int32
	SequenceNumber  int32
	RecordType      uint32
	Reserved        uint32 // Alignment padding
	OriginatingTime uint64
	CompletionTime  uint64
	EventType       int32
	Flags           int32
	ProcessID       uint64
}

// byteOrder is the platform's native order; the driver copies its structs
// into the buffer as they lie in memory.
var byteOrder = binary.NativeEndian

// readHeader decodes the header at the start of b. The caller guarantees
// len(b) >= HeaderSize.
func readHeader(b []byte) Header {
	return Header{
		Length:          int32(byteOrder.Uint32(b[0:4])),
		SequenceNumber:  int32(byteOrder.Uint32(b[4:8])),
		RecordType:      byteOrder.Uint32(b[8:12]),
		Reserved:        byteOrder.Uint32(b[12:16]),
		OriginatingTime: byteOrder.Uint64(b[16:24]),
		CompletionTime:  byteOrder.Uint64(b[24:32]),
		EventType:       int32(byteOrder.Uint32(b[32:36])),
		Flags:           int32(byteOrder.Uint32(b[36:40])),
		ProcessID:       byteOrder.Uint64(b[40:48]),
	}
}

// appendHeader appends the wire form of h to b.
func appendHeader(b []byte, h Header) []byte {
	b = byteOrder.AppendUint32(b, uint32(h.Length))
	b = byteOrder.AppendUint32(b, uint32(h.SequenceNumber))
	b = byteOrder.AppendUint32(b, h.RecordType)
	b = byteOrder.AppendUint32(b, h.Reserved)
	b = byteOrder.AppendUint64(b, h.OriginatingTime)
	b = byteOrder.AppendUint64(b, h.CompletionTime)
	b = byteOrder.AppendUint32(b, uint32(h.EventType))
	b = byteOrder.AppendUint32(b, uint32(h.Flags))
	b = byteOrder.AppendUint64(b, h.ProcessID)
	return b
}

// AppendRecord appends a complete record for ev to b, in the layout the
// driver produces: header, UTF-16 names separated by NUL, and padding to an
// 8-byte boundary. Paths are written as given; no translation is applied.
func AppendRecord(b []byte, ev event.Event) ([]byte, error) {
	names := []string{ev.Path}
	if ev.Type == event.Move {
		names = []string{ev.OldPath, ev.Path}
	}

	tail, err := encodeNames(names)
	if err != nil {
		return nil, fmt.Errorf("encoding record names: %w", err)
	}
	// Records start on a pointer-aligned boundary.
	for len(tail)%8 != 0 {
		tail = append(tail, 0)
	}

	h := Header{
		Length:          int32(HeaderSize + len(tail)),
		SequenceNumber:  ev.Sequence,
		RecordType:      ev.RecordType,
		OriginatingTime: ev.OriginatingTime,
		CompletionTime:  ev.CompletionTime,
		EventType:       int32(ev.Type),
		ProcessID:       ev.PID,
	}
	b = appendHeader(b, h)
	return append(b, tail...), nil
}

// DriverVersion is the protocol version reported by the driver.
type DriverVersion struct {
	Major uint16
	Minor uint16
}

// String formats the version as major.minor.
func (v DriverVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ClientVersion is the protocol version this client speaks.
var ClientVersion = DriverVersion{Major: ProtocolMajor, Minor: ProtocolMinor}

// ParseDriverVersion decodes the reply to a FetchVersion command.
func ParseDriverVersion(b []byte) (DriverVersion, error) {
	if len(b) < 4 {
		return DriverVersion{}, fmt.Errorf("version reply too short: %d bytes", len(b))
	}
	return DriverVersion{
		Major: byteOrder.Uint16(b[0:2]),
		Minor: byteOrder.Uint16(b[2:4]),
	}, nil
}

// AppendDriverVersion appends the wire form of v to b.
func AppendDriverVersion(b []byte, v DriverVersion) []byte {
	b = byteOrder.AppendUint16(b, v.Major)
	return byteOrder.AppendUint16(b, v.Minor)
}
