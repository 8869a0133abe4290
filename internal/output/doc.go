// Package output delivers events to sinks: the console, OpenTelemetry spans,
// an AMQP exchange or a sqlite journal.
//
// Handlers turns a list of sinks into the watcher's subscriber callbacks.
// Sinks only format and forward; postponement and filtering have already
// happened in the aggregator by the time an event reaches them:
//
//	watcher ──→ event.Handlers.OnEvent ──→ fan-out ──┬──→ ConsoleSink
//	                                                 ├──→ OTELFormatter
//	                                                 ├──→ publish.Publisher
//	                                                 └──→ journal.Journal
//
// A failing sink is logged and counted; it does not stop the others.
package output
