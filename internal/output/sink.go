package output

import (
	"log/slog"

	"github.com/mrzor/fswatch/internal/event"
	"github.com/mrzor/fswatch/internal/metrics"
)

// Sink receives delivered events.
type Sink interface {
	Name() string
	Deliver(ev event.Event) error
}

// Handlers returns subscriber callbacks that deliver every event to each
// sink in order.
func Handlers(logger *slog.Logger, sinks ...Sink) event.Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return event.Handlers{
		OnEvent: func(ev event.Event) {
			for _, s := range sinks {
				if err := s.Deliver(ev); err != nil {
					metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
					logger.Warn("sink failed", "sink", s.Name(), "event", ev.String(), "error", err)
				}
			}
		},
	}
}
