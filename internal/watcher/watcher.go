package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mrzor/fswatch/internal/aggregator"
	"github.com/mrzor/fswatch/internal/channel"
	"github.com/mrzor/fswatch/internal/event"
	"github.com/mrzor/fswatch/internal/logrecord"
	"github.com/mrzor/fswatch/internal/pathconv"
)

var (
	// ErrChannelFailure wraps a channel error that stopped the poll loop.
	ErrChannelFailure = errors.New("channel failure")

	// ErrIncompatibleProtocol is returned by Connect when the driver's major
	// protocol version differs from the client's.
	ErrIncompatibleProtocol = errors.New("incompatible driver protocol")
)

const (
	DefaultBufferSize = 4096
	DefaultIdleDelay  = 100 * time.Millisecond
)

// Options configures a Watcher. The zero value is usable.
type Options struct {
	// BufferSize is the capacity offered to the driver per fetch.
	BufferSize int

	// IdleDelay is the pause after a fetch that yielded no events.
	IdleDelay time.Duration

	// Translator converts between device and drive-letter paths. Nil
	// leaves paths untouched.
	Translator pathconv.Translator

	// Aggregator configures the postpone/flush policy.
	Aggregator aggregator.Options

	// OnError is called from the loop goroutine with the error that
	// stopped the loop, after Done is closed. It may call any Watcher
	// method, including Disconnect and Connect.
	OnError func(error)

	Logger *slog.Logger
}

// handlerSlot lets subscribers swap callbacks while the loop dispatches.
type handlerSlot struct {
	p atomic.Pointer[event.Handlers]
}

func (s *handlerSlot) Dispatch(ev event.Event) bool {
	return s.p.Load().Dispatch(ev)
}

// Watcher delivers file-system events from the filter driver to a set of
// handlers. Its methods are safe for concurrent use.
type Watcher struct {
	ch         channel.Channel
	tr         pathconv.Translator
	bufferSize int
	idleDelay  time.Duration
	onError    func(error)
	logger     *slog.Logger

	// Owned by the loop goroutine.
	agg *aggregator.Aggregator

	aggregate atomic.Bool
	handlers  handlerSlot

	// lifecycle serializes Connect and Disconnect. It is never held by
	// the loop, so Disconnect can wait for the loop without holding mu.
	lifecycle sync.Mutex

	mu        sync.Mutex
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}
	filters   filterState

	errMu   sync.Mutex
	lastErr error

	sleep func(ctx context.Context, d time.Duration) bool
	now   func() time.Time
}

// New creates a Watcher on ch. Nothing is sent to the driver until Connect.
func New(ch channel.Channel, opts Options) (*Watcher, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.BufferSize < logrecord.HeaderSize {
		return nil, fmt.Errorf("buffer size %d is smaller than a record header", opts.BufferSize)
	}
	if opts.IdleDelay <= 0 {
		opts.IdleDelay = DefaultIdleDelay
	}
	if opts.Translator == nil {
		opts.Translator = pathconv.Identity
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Aggregator.Logger == nil {
		opts.Aggregator.Logger = opts.Logger
	}

	w := &Watcher{
		ch:         ch,
		tr:         opts.Translator,
		bufferSize: opts.BufferSize,
		idleDelay:  opts.IdleDelay,
		onError:    opts.OnError,
		logger:     opts.Logger,
		sleep:      sleepContext,
		now:        time.Now,
	}

	agg, err := aggregator.New(&w.handlers, opts.Aggregator)
	if err != nil {
		return nil, err
	}
	w.agg = agg

	return w, nil
}

// SetHandlers replaces the subscriber callbacks. Events already being
// dispatched finish with the previous set.
func (w *Watcher) SetHandlers(h event.Handlers) {
	w.handlers.p.Store(&h)
}

// SetAggregateEvents switches aggregation on or off. The loop reads the
// switch once per event.
func (w *Watcher) SetAggregateEvents(on bool) {
	w.aggregate.Store(on)
}

// AggregateEvents reports whether aggregation is on.
func (w *Watcher) AggregateEvents() bool {
	return w.aggregate.Load()
}

// Connect opens the channel, verifies the driver's protocol version, restores
// previously configured filters and starts the poll loop. The loop stops when
// ctx is cancelled, on Disconnect, or on a fatal channel error.
//
// Connecting while the loop runs is a no-op. If the loop stopped on an
// error, Connect closes the old connection and starts over.
func (w *Watcher) Connect(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.connected {
		select {
		case <-w.done:
			if err := w.ch.Disconnect(); err != nil && !errors.Is(err, channel.ErrNotConnected) {
				w.logger.Warn("closing stale connection", "error", err)
			}
			w.connected = false
		default:
			return nil
		}
	}

	if err := w.ch.Connect(); err != nil {
		return fmt.Errorf("connecting to driver: %w", err)
	}

	v, err := w.fetchVersion()
	if err != nil {
		_ = w.ch.Disconnect() //nolint:errcheck // Best-effort cleanup in error path
		return fmt.Errorf("fetching driver version: %w", err)
	}
	if v.Major != logrecord.ClientVersion.Major {
		_ = w.ch.Disconnect() //nolint:errcheck // Best-effort cleanup in error path
		return fmt.Errorf("%w: driver %s, client %s", ErrIncompatibleProtocol, v, logrecord.ClientVersion)
	}
	if v.Minor != logrecord.ClientVersion.Minor {
		w.logger.Warn("driver version differs from client version",
			"driver", v.String(), "client", logrecord.ClientVersion.String())
	}

	if err := w.filters.apply(w.ch, w.tr); err != nil {
		_ = w.ch.Disconnect() //nolint:errcheck // Best-effort cleanup in error path
		return fmt.Errorf("restoring filters: %w", err)
	}

	w.setErr(nil)
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.connected = true

	w.logger.Info("connected to driver", "version", v.String())
	go w.run(loopCtx, w.done)
	return nil
}

// Disconnect stops the poll loop, waits for it to exit and closes the
// channel. Events still postponed stay queued for the next connection.
// Control calls made while the loop winds down fail with
// channel.ErrNotConnected.
func (w *Watcher) Disconnect() error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	w.mu.Lock()
	if !w.connected {
		w.mu.Unlock()
		return channel.ErrNotConnected
	}
	cancel, done := w.cancel, w.done
	w.connected = false
	w.mu.Unlock()

	// Handlers on the loop goroutine may take mu.
	cancel()
	<-done

	if err := w.ch.Disconnect(); err != nil && !errors.Is(err, channel.ErrNotConnected) {
		return fmt.Errorf("disconnecting from driver: %w", err)
	}
	return nil
}

// Done returns a channel closed when the current poll loop exits. Before the
// first Connect it returns a closed channel.
func (w *Watcher) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return w.done
}

// Err returns the error that stopped the last poll loop, or nil.
func (w *Watcher) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.lastErr
}

func (w *Watcher) setErr(err error) {
	w.errMu.Lock()
	w.lastErr = err
	w.errMu.Unlock()
}

// DriverVersion asks the driver for its protocol version.
func (w *Watcher) DriverVersion() (logrecord.DriverVersion, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.connected {
		return logrecord.DriverVersion{}, channel.ErrNotConnected
	}
	return w.fetchVersion()
}

func (w *Watcher) fetchVersion() (logrecord.DriverVersion, error) {
	reply, err := w.ch.SendAndReceive(logrecord.FetchVersion, nil, 4)
	if err != nil {
		return logrecord.DriverVersion{}, err
	}
	return logrecord.ParseDriverVersion(reply)
}

// WatchProcess restricts reporting to activity of the given process.
func (w *Watcher) WatchProcess(pid int64) error {
	return w.setProcessFilter(pid)
}

// NotWatchProcess excludes activity of the given process.
func (w *Watcher) NotWatchProcess(pid int64) error {
	return w.setProcessFilter(-pid)
}

// RemoveProcessFilter reports activity of all processes again.
func (w *Watcher) RemoveProcessFilter() error {
	return w.setProcessFilter(0)
}

// WatchThread restricts reporting to activity of the given thread.
func (w *Watcher) WatchThread(tid int64) error {
	return w.setThreadFilter(tid)
}

// NotWatchThread excludes activity of the given thread.
func (w *Watcher) NotWatchThread(tid int64) error {
	return w.setThreadFilter(-tid)
}

// RemoveThreadFilter reports activity of all threads again.
func (w *Watcher) RemoveThreadFilter() error {
	return w.setThreadFilter(0)
}

// WatchPath restricts reporting to paths matching pattern, given in display
// form (C:\...). The driver matches it against its own namespace, so the
// pattern is translated before sending.
func (w *Watcher) WatchPath(pattern string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.connected {
		return channel.ErrNotConnected
	}
	if err := sendPathFilter(w.ch, w.tr, pattern); err != nil {
		return err
	}
	w.filters.path = &pattern
	return nil
}

func (w *Watcher) setProcessFilter(id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.connected {
		return channel.ErrNotConnected
	}
	if err := sendFilterID(w.ch, logrecord.SetWatchProcess, id); err != nil {
		return err
	}
	w.filters.process = &id
	return nil
}

func (w *Watcher) setThreadFilter(id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.connected {
		return channel.ErrNotConnected
	}
	if err := sendFilterID(w.ch, logrecord.SetWatchThread, id); err != nil {
		return err
	}
	w.filters.thread = &id
	return nil
}
