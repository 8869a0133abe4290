package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/mrzor/fswatch/internal/event"
)

// NameResolver maps a process id to a display name. *procname.Resolver
// implements it.
type NameResolver interface {
	Name(pid uint64) string
}

// ConsoleSink prints one line per event.
type ConsoleSink struct {
	mu    sync.Mutex
	w     io.Writer
	names NameResolver
}

// NewConsoleSink writes to w. names may be nil, in which case only the pid
// is shown.
func NewConsoleSink(w io.Writer, names NameResolver) *ConsoleSink {
	return &ConsoleSink{w: w, names: names}
}

// Name implements Sink.
func (c *ConsoleSink) Name() string { return "console" }

// Deliver implements Sink.
func (c *ConsoleSink) Deliver(ev event.Event) error {
	var line string
	switch ev.Type {
	case event.Create:
		line = "Created: " + ev.Path
	case event.Change:
		line = "Changed: " + ev.Path
	case event.Delete:
		line = "Deleted: " + ev.Path
	case event.Move:
		line = "Moved: " + ev.OldPath + " -> " + ev.Path
	default:
		return nil
	}

	process := fmt.Sprintf("pid %d", ev.PID)
	if c.names != nil {
		if name := c.names.Name(ev.PID); name != "" {
			process = fmt.Sprintf("%s, pid %d", name, ev.PID)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "%s (%s)\n", line, process)
	return err
}
