// Package watcher connects to the filter driver, checks its protocol version
// and runs the poll loop that turns the driver's log into subscriber
// callbacks.
//
// Lifecycle:
//
//	New ──→ Connect(ctx) ──→ handshake ──→ re-apply filters ──→ loop
//	                                                             │
//	        Disconnect() ──→ cancel ──→ wait for loop ──→ close ◀┘
//
// The loop fetches a buffer, decodes it and feeds every event to the
// aggregator in order. A fetch that yields nothing is followed by an idle
// delay. Callbacks run on the loop goroutine; a slow callback delays the
// next fetch.
//
// A channel error other than "no more items" ends the loop. The error is
// kept (see Err), passed to Options.OnError and Done is closed. Malformed
// buffers are logged and skipped.
package watcher
