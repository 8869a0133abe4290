package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mrzor/fswatch/internal/channel"
	"github.com/mrzor/fswatch/internal/event"
	"github.com/mrzor/fswatch/internal/logrecord"
	"github.com/mrzor/fswatch/internal/metrics"
)

// run is the poll loop. It closes done on exit and only then reports a fatal
// error to OnError, so the callback may call Disconnect or Connect.
func (w *Watcher) run(ctx context.Context, done chan struct{}) {
	err := w.poll(ctx)
	if err != nil {
		err = w.fail(err)
	}
	close(done)

	if err != nil && w.onError != nil {
		w.onError(err)
	}
}

// poll fetches and dispatches until ctx is done or the channel fails.
func (w *Watcher) poll(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		events, err := w.fetch()
		if err != nil {
			return err
		}

		for _, ev := range events {
			w.agg.Handle(ev, w.aggregate.Load())
		}

		if len(events) > 0 {
			continue
		}

		if !w.sleep(ctx, w.idleDelay) {
			return nil
		}
		w.agg.FlushStale(w.now())
	}
}

// fetch performs one FetchLog exchange and decodes the reply. Only channel
// errors are returned; an empty or malformed log yields no events.
func (w *Watcher) fetch() ([]event.Event, error) {
	buf, err := w.ch.SendAndReceive(logrecord.FetchLog, nil, w.bufferSize)
	if errors.Is(err, channel.ErrNoMoreItems) {
		metrics.FetchCycles.WithLabelValues(metrics.CycleEmpty).Inc()
		return nil, nil
	}
	if err != nil {
		metrics.FetchCycles.WithLabelValues(metrics.CycleError).Inc()
		return nil, err
	}
	metrics.FetchedBytes.Add(float64(len(buf)))

	events, err := logrecord.Decode(buf, w.tr)
	if err != nil {
		metrics.MalformedBuffers.Inc()
		w.logger.Warn("discarding malformed log buffer", "error", err, "bytes", len(buf))
		return nil, nil
	}

	if len(events) == 0 {
		metrics.FetchCycles.WithLabelValues(metrics.CycleEmpty).Inc()
		return nil, nil
	}
	metrics.FetchCycles.WithLabelValues(metrics.CycleEvents).Inc()

	for _, ev := range events {
		metrics.EventsDecoded.WithLabelValues(ev.Type.String()).Inc()
		if ev.Overflow() {
			metrics.OverflowRecords.Inc()
			w.logger.Warn("driver dropped records", "sequence", ev.Sequence, "record_type", fmt.Sprintf("%#x", ev.RecordType))
		}
	}
	return events, nil
}

func (w *Watcher) fail(err error) error {
	err = fmt.Errorf("%w: %w", ErrChannelFailure, err)
	w.setErr(err)
	w.logger.Error("poll loop stopped", "error", err)
	return err
}

// sleepContext waits for d or until ctx is done. It reports whether the full
// delay elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
