package logrecord

import (
	"fmt"
)

// Command identifies a request sent to the filter driver.
// Values match the MINIFSWATCHER_COMMAND enum.
type Command int32

const (
	FetchLog Command = iota
	FetchVersion
	SetWatchProcess
	SetWatchThread
	SetPathFilter
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case FetchLog:
		return "fetch-log"
	case FetchVersion:
		return "fetch-version"
	case SetWatchProcess:
		return "set-watch-process"
	case SetWatchThread:
		return "set-watch-thread"
	case SetPathFilter:
		return "set-path-filter"
	default:
		return fmt.Sprintf("command(%d)", int32(c))
	}
}

// CommandHeaderSize is the size of the COMMAND_MESSAGE header that precedes
// the command payload.
const CommandHeaderSize = 8

// EncodeCommand frames cmd and its payload as a COMMAND_MESSAGE.
func EncodeCommand(cmd Command, payload []byte) []byte {
	b := make([]byte, 0, CommandHeaderSize+len(payload))
	b = byteOrder.AppendUint32(b, uint32(cmd))
	b = byteOrder.AppendUint32(b, 0) // Reserved
	return append(b, payload...)
}

// DecodeCommand splits a COMMAND_MESSAGE into its command and payload.
func DecodeCommand(b []byte) (Command, []byte, error) {
	if len(b) < CommandHeaderSize {
		return 0, nil, fmt.Errorf("command message too short: %d bytes", len(b))
	}
	return Command(int32(byteOrder.Uint32(b[0:4]))), b[CommandHeaderSize:], nil
}

// FilterIDPayload encodes a process or thread filter argument. Positive ids
// include, negative ids exclude, and zero clears the filter.
func FilterIDPayload(id int64) []byte {
	return byteOrder.AppendUint64(nil, uint64(id))
}

// ParseFilterIDPayload decodes a payload produced by FilterIDPayload.
func ParseFilterIDPayload(b []byte) (int64, error) {
	if len(b) < 8 {
		return 0, fmt.Errorf("filter id payload too short: %d bytes", len(b))
	}
	return int64(byteOrder.Uint64(b[:8])), nil
}

// PathPayload encodes a path filter pattern as a NUL-terminated UTF-16 string.
func PathPayload(pattern string) ([]byte, error) {
	return encodeNames([]string{pattern})
}

// ParsePathPayload decodes a payload produced by PathPayload.
func ParsePathPayload(b []byte) (string, error) {
	names, err := decodeNames(b)
	if err != nil {
		return "", err
	}
	return names[0], nil
}
