//go:build windows

// Package fltport connects to a minifilter communication port through FltLib.
package fltport

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/mrzor/fswatch/internal/channel"
	"github.com/mrzor/fswatch/internal/logrecord"
)

// DefaultPortName is the port the MiniFSWatcher driver registers.
const DefaultPortName = `\MiniFSWatcherPort`

var (
	fltlib = windows.NewLazySystemDLL("fltlib.dll")

	procFilterConnectCommunicationPort = fltlib.NewProc("FilterConnectCommunicationPort")
	procFilterSendMessage              = fltlib.NewProc("FilterSendMessage")
)

// hresultNoMoreItems is HRESULT_FROM_WIN32(ERROR_NO_MORE_ITEMS), which FltLib
// returns when the driver answers STATUS_NO_MORE_ENTRIES.
var hresultNoMoreItems = hresultFromWin32(windows.ERROR_NO_MORE_ITEMS)

// Port is a channel.Channel over a minifilter communication port.
type Port struct {
	name string

	mu     sync.Mutex
	handle windows.Handle
}

var _ channel.Channel = (*Port)(nil)

// New creates a Port for the named communication port. Nothing is opened
// until Connect.
func New(name string) *Port {
	if name == "" {
		name = DefaultPortName
	}
	return &Port{name: name, handle: windows.InvalidHandle}
}

// Connect opens the communication port. Connecting an open port is a no-op.
func (p *Port) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle != windows.InvalidHandle {
		return nil
	}

	name, err := windows.UTF16PtrFromString(p.name)
	if err != nil {
		return fmt.Errorf("encoding port name %q: %w", p.name, err)
	}

	var h windows.Handle
	r1, _, _ := procFilterConnectCommunicationPort.Call(
		uintptr(unsafe.Pointer(name)),
		0, // dwOptions
		0, // lpContext
		0, // wSizeOfContext
		0, // lpSecurityAttributes
		uintptr(unsafe.Pointer(&h)),
	)
	if hr := int32(r1); hr < 0 {
		return fmt.Errorf("connecting to port %s: %w", p.name, hresultError(hr))
	}

	p.handle = h
	return nil
}

// Disconnect closes the communication port.
func (p *Port) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == windows.InvalidHandle {
		return channel.ErrNotConnected
	}

	err := windows.CloseHandle(p.handle)
	p.handle = windows.InvalidHandle
	if err != nil {
		return fmt.Errorf("closing port %s: %w", p.name, err)
	}
	return nil
}

// Send delivers a command that expects no reply.
func (p *Port) Send(cmd logrecord.Command, payload []byte) error {
	_, err := p.sendMessage(cmd, payload, 0)
	return err
}

// SendAndReceive delivers a command and returns the driver's reply, at most
// capacity bytes long.
func (p *Port) SendAndReceive(cmd logrecord.Command, payload []byte, capacity int) ([]byte, error) {
	return p.sendMessage(cmd, payload, capacity)
}

func (p *Port) sendMessage(cmd logrecord.Command, payload []byte, capacity int) ([]byte, error) {
	p.mu.Lock()
	h := p.handle
	p.mu.Unlock()

	if h == windows.InvalidHandle {
		return nil, channel.ErrNotConnected
	}

	msg := logrecord.EncodeCommand(cmd, payload)

	var out []byte
	var outPtr uintptr
	if capacity > 0 {
		out = make([]byte, capacity)
		outPtr = uintptr(unsafe.Pointer(&out[0]))
	}

	var returned uint32
	r1, _, _ := procFilterSendMessage.Call(
		uintptr(h),
		uintptr(unsafe.Pointer(&msg[0])),
		uintptr(len(msg)),
		outPtr,
		uintptr(capacity),
		uintptr(unsafe.Pointer(&returned)),
	)

	hr := int32(r1)
	if hr == hresultNoMoreItems {
		return nil, channel.ErrNoMoreItems
	}
	if hr < 0 {
		return nil, fmt.Errorf("sending %s: %w", cmd, hresultError(hr))
	}

	if int(returned) > len(out) {
		returned = uint32(len(out))
	}
	return out[:returned], nil
}

func hresultFromWin32(e windows.Errno) int32 {
	if e == 0 {
		return 0
	}
	return int32(uint32(e)&0x0000FFFF | 7<<16 | 0x80000000)
}

// hresultError converts a failed HRESULT into an error. Win32 facility codes
// are unwrapped to their windows.Errno so callers can use errors.Is.
func hresultError(hr int32) error {
	if uint32(hr)&0x1FFF0000 == 7<<16 {
		return windows.Errno(uint32(hr) & 0xFFFF)
	}
	return fmt.Errorf("HRESULT 0x%08X", uint32(hr))
}
