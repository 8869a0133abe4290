//go:build linux

package bpfport

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"

	"github.com/mrzor/fswatch/internal/channel"
	"github.com/mrzor/fswatch/internal/logrecord"
)

// Names of the maps the producer pins below the pin directory.
const (
	EventsMap     = "fsw_events"
	VersionMap    = "fsw_version"
	SettingsMap   = "fsw_settings"
	PathFilterMap = "fsw_path_filter"
)

// Indexes into the settings array map.
const (
	settingWatchProcess uint32 = 0
	settingWatchThread  uint32 = 1
)

// PathFilterSize is the size of the single path filter value, in bytes of
// NUL-terminated UTF-16.
const PathFilterSize = 1024

// DefaultReadTimeout bounds how long a fetch waits for the first record.
const DefaultReadTimeout = 50 * time.Millisecond

// Port is a channel.Channel over maps pinned by an eBPF producer.
type Port struct {
	pinPath     string
	readTimeout time.Duration

	mu         sync.Mutex
	events     *ebpf.Map
	version    *ebpf.Map
	settings   *ebpf.Map
	pathFilter *ebpf.Map
	reader     *ringbuf.Reader

	// pending holds a record that did not fit the previous fetch.
	pending []byte
	rec     ringbuf.Record
}

var _ channel.Channel = (*Port)(nil)

// New creates a Port reading maps pinned under pinPath.
func New(pinPath string, readTimeout time.Duration) *Port {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &Port{pinPath: pinPath, readTimeout: readTimeout}
}

// closeErrorf releases whatever Connect opened so far and returns a
// formatted error.
func (p *Port) closeErrorf(errstr string, e error) error {
	_ = p.release() //nolint:errcheck // Best-effort cleanup in error path
	return fmt.Errorf("%s: %w", errstr, e)
}

// Connect opens the pinned maps and the ring buffer reader.
func (p *Port) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reader != nil {
		return nil
	}

	var err error
	if p.events, err = p.loadPinned(EventsMap); err != nil {
		return p.closeErrorf("loading events map", err)
	}
	if p.version, err = p.loadPinned(VersionMap); err != nil {
		return p.closeErrorf("loading version map", err)
	}
	if p.settings, err = p.loadPinned(SettingsMap); err != nil {
		return p.closeErrorf("loading settings map", err)
	}
	if p.pathFilter, err = p.loadPinned(PathFilterMap); err != nil {
		return p.closeErrorf("loading path filter map", err)
	}

	if p.reader, err = ringbuf.NewReader(p.events); err != nil {
		return p.closeErrorf("opening ring buffer", err)
	}
	return nil
}

func (p *Port) loadPinned(name string) (*ebpf.Map, error) {
	m, err := ebpf.LoadPinnedMap(filepath.Join(p.pinPath, name), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return m, nil
}

// Disconnect closes the reader and all maps.
func (p *Port) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reader == nil {
		return channel.ErrNotConnected
	}
	return p.release()
}

// release closes everything that is open. Callers hold p.mu.
func (p *Port) release() error {
	var errs []error

	if p.reader != nil {
		if err := p.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing ring buffer reader: %w", err))
		}
		p.reader = nil
	}

	for _, m := range []**ebpf.Map{&p.events, &p.version, &p.settings, &p.pathFilter} {
		if *m == nil {
			continue
		}
		if err := (*m).Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing map: %w", err))
		}
		*m = nil
	}
	p.pending = nil

	if len(errs) > 0 {
		return fmt.Errorf("errors during cleanup: %w", errors.Join(errs...))
	}
	return nil
}

// Send applies a configuration command by updating the producer's maps.
func (p *Port) Send(cmd logrecord.Command, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reader == nil {
		return channel.ErrNotConnected
	}

	switch cmd {
	case logrecord.SetWatchProcess, logrecord.SetWatchThread:
		id, err := logrecord.ParseFilterIDPayload(payload)
		if err != nil {
			return err
		}
		key := settingWatchProcess
		if cmd == logrecord.SetWatchThread {
			key = settingWatchThread
		}
		if err := p.settings.Put(key, id); err != nil {
			return fmt.Errorf("updating %s: %w", cmd, err)
		}
		return nil

	case logrecord.SetPathFilter:
		if len(payload) > PathFilterSize {
			return fmt.Errorf("path filter of %d bytes exceeds %d", len(payload), PathFilterSize)
		}
		var value [PathFilterSize]byte
		copy(value[:], payload)
		if err := p.pathFilter.Put(uint32(0), &value); err != nil {
			return fmt.Errorf("updating path filter: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("command %s expects a reply", cmd)
	}
}

// SendAndReceive answers FetchVersion from the version map and FetchLog from
// the ring buffer.
func (p *Port) SendAndReceive(cmd logrecord.Command, _ []byte, capacity int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reader == nil {
		return nil, channel.ErrNotConnected
	}

	switch cmd {
	case logrecord.FetchVersion:
		var v logrecord.DriverVersion
		if err := p.version.Lookup(uint32(0), &v); err != nil {
			return nil, fmt.Errorf("reading version map: %w", err)
		}
		return logrecord.AppendDriverVersion(nil, v), nil

	case logrecord.FetchLog:
		return p.fetchLog(capacity)

	default:
		return nil, fmt.Errorf("command %s has no reply", cmd)
	}
}

// fetchLog concatenates queued records into at most capacity bytes. It waits
// up to the read timeout for the first record and then drains without
// blocking.
func (p *Port) fetchLog(capacity int) ([]byte, error) {
	out := make([]byte, 0, capacity)

	if p.pending != nil {
		if len(p.pending) > capacity {
			return nil, fmt.Errorf("record of %d bytes exceeds buffer capacity %d", len(p.pending), capacity)
		}
		out = append(out, p.pending...)
		p.pending = nil
	}

	deadline := time.Now().Add(p.readTimeout)
	if len(out) > 0 {
		deadline = time.Now()
	}

	for {
		p.reader.SetDeadline(deadline)
		err := p.reader.ReadInto(&p.rec)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading ring buffer: %w", err)
		}

		if len(out)+len(p.rec.RawSample) > capacity {
			if len(out) == 0 {
				return nil, fmt.Errorf("record of %d bytes exceeds buffer capacity %d", len(p.rec.RawSample), capacity)
			}
			p.pending = append([]byte(nil), p.rec.RawSample...)
			break
		}
		out = append(out, p.rec.RawSample...)

		// Drain what is already queued, without waiting for more.
		deadline = time.Now()
	}

	if len(out) == 0 {
		return nil, channel.ErrNoMoreItems
	}
	return out, nil
}
