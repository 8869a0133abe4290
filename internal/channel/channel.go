// Package channel defines the communication port to the filter driver.
//
// Implementations live in sub-packages: fltport talks to a Windows
// minifilter through FltLib, bpfport reads records a Linux eBPF producer
// writes into pinned maps.
package channel

import (
	"errors"

	"github.com/mrzor/fswatch/internal/logrecord"
)

var (
	// ErrNoMoreItems is returned by SendAndReceive when the driver has no
	// records queued. It is not a failure for polling purposes.
	ErrNoMoreItems = errors.New("no more items")

	// ErrNotConnected is returned by every operation attempted before a
	// successful Connect or after Disconnect.
	ErrNotConnected = errors.New("not connected")
)

// Channel is a connection to the filter driver's communication port.
//
// SendAndReceive may block until the driver answers; implementations should
// bound the wait where the transport allows it.
type Channel interface {
	Connect() error
	Disconnect() error
	Send(cmd logrecord.Command, payload []byte) error
	SendAndReceive(cmd logrecord.Command, payload []byte, capacity int) ([]byte, error)
}
