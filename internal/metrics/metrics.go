// Package metrics declares the Prometheus collectors shared by the watcher
// components. Collectors register with the default registry on init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fswatch"

// Reasons a postponed event left the table.
const (
	FlushClose   = "close"
	FlushEvicted = "evicted"
	FlushStale   = "stale"
)

// Reasons an event was not delivered.
const (
	SuppressDuplicate = "duplicate"
	SuppressTrash     = "trash"
	SuppressIgnored   = "ignored"
	SuppressFiltered  = "filtered"
)

// Outcomes of a fetch cycle.
const (
	CycleEvents = "events"
	CycleEmpty  = "empty"
	CycleError  = "error"
)

var (
	FetchCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "fetch_cycles_total",
		Help:      "Total number of log fetch cycles, per outcome (events/empty/error)",
	}, []string{"result"})

	FetchedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "fetched_bytes_total",
		Help:      "Total number of log bytes received from the driver",
	})

	MalformedBuffers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "malformed_buffers_total",
		Help:      "Total number of fetched buffers discarded because a record was malformed",
	})

	OverflowRecords = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "overflow_records_total",
		Help:      "Total number of records flagged by the driver as written after it dropped data",
	})

	EventsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "events_decoded_total",
		Help:      "Total number of events decoded, per event type",
	}, []string{"type"})

	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "aggregator",
		Name:      "events_delivered_total",
		Help:      "Total number of events handed to a subscriber callback, per event type",
	}, []string{"type"})

	EventsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "aggregator",
		Name:      "events_suppressed_total",
		Help:      "Total number of events not delivered, per reason (duplicate/trash/ignored/filtered)",
	}, []string{"reason"})

	PostponedEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "aggregator",
		Name:      "postponed_events",
		Help:      "Current number of events waiting for a close",
	})

	PostponedFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "aggregator",
		Name:      "postponed_flushes_total",
		Help:      "Total number of postponed events released, per reason (close/evicted/stale)",
	}, []string{"reason"})

	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "output",
		Name:      "sink_errors_total",
		Help:      "Total number of failed deliveries, per sink",
	}, []string{"sink"})
)
