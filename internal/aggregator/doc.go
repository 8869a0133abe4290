// Package aggregator decides, per decoded event, whether it is delivered now,
// held back until the file is closed, or dropped.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│      Decoded events (in log order)      │
//	└─────────────────┬───────────────────────┘
//	                  │
//	                  ▼
//	┌─────────────────────────────────────────┐
//	│   aggregator.Handle(ev, aggregate)      │
//	└─────────┬───────────────────────────────┘
//	          │
//	          ├──→ Close ────────────→ postponed table
//	          │                        - hit: remove, deliver held event
//	          │                        - miss: nothing
//	          │
//	          ├──→ Create/Change ───→ postponed table (aggregate on)
//	          │                        - first event per path is held
//	          │                        - later ones are dropped
//	          │
//	          └──→ everything else ─→ trash filter ─→ deliver
//
//	deliver: ignore globs ─→ filter expression ─→ Dispatcher
//
// The table is bounded. When it is full the oldest held event is delivered
// early to make room, and FlushStale delivers events held longer than the
// configured age. Neither path loses an event.
//
// An Aggregator is driven by a single goroutine and is not safe for
// concurrent use.
package aggregator
