package aggregator

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/cases"

	"github.com/mrzor/fswatch/internal/event"
	"github.com/mrzor/fswatch/internal/metrics"
)

// DefaultTrashPrefix is the recycle bin of the system drive. Files moved
// there are deletions from the user's point of view and are not reported as
// moves.
const DefaultTrashPrefix = `C:\$RECYCLE.BIN\`

// DefaultMaxPostponed bounds the postponed table when Options leaves it unset.
const DefaultMaxPostponed = 4096

// Dispatcher receives the events the aggregator decides to deliver.
// *event.Handlers implements it.
type Dispatcher interface {
	Dispatch(ev event.Event) bool
}

// Options configures an Aggregator. The zero value is usable.
type Options struct {
	// MaxPostponed bounds the number of held events.
	MaxPostponed int

	// MaxAge releases held events older than this in FlushStale.
	// Zero keeps them until their Close arrives or they are evicted.
	MaxAge time.Duration

	// TrashPrefixes are matched case-insensitively against the destination
	// of Move events. Nil means DefaultTrashPrefix; use an empty non-nil
	// slice to report all moves.
	TrashPrefixes []string

	// IgnorePatterns are globs matched against event paths. Backslashes
	// are read as separators, so patterns cannot escape metacharacters.
	// For moves both paths must match for the event to be ignored.
	IgnorePatterns []string

	// Filter, when set, must return true for an event to be delivered.
	Filter func(event.Event) bool

	Logger *slog.Logger
	Now    func() time.Time
}

type postponed struct {
	ev    event.Event
	since time.Time
}

// Aggregator implements the postpone/flush policy in front of a Dispatcher.
type Aggregator struct {
	dispatcher Dispatcher

	table        *lru.Cache[string, postponed]
	maxPostponed int
	maxAge       time.Duration

	trash  []string
	fold   cases.Caser
	ignore []glob.Glob
	filter func(event.Event) bool

	logger *slog.Logger
	now    func() time.Time
}

// New creates an Aggregator delivering to d.
func New(d Dispatcher, opts Options) (*Aggregator, error) {
	if opts.MaxPostponed <= 0 {
		opts.MaxPostponed = DefaultMaxPostponed
	}
	if opts.MaxAge < 0 {
		return nil, fmt.Errorf("negative max age %s", opts.MaxAge)
	}
	if opts.TrashPrefixes == nil {
		opts.TrashPrefixes = []string{DefaultTrashPrefix}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	table, err := lru.New[string, postponed](opts.MaxPostponed)
	if err != nil {
		return nil, fmt.Errorf("creating postponed table: %w", err)
	}

	a := &Aggregator{
		dispatcher:   d,
		table:        table,
		maxPostponed: opts.MaxPostponed,
		maxAge:       opts.MaxAge,
		fold:         cases.Fold(),
		filter:       opts.Filter,
		logger:       opts.Logger,
		now:          opts.Now,
	}

	for _, p := range opts.TrashPrefixes {
		if p == "" {
			continue
		}
		a.trash = append(a.trash, a.fold.String(p))
	}

	for _, p := range opts.IgnorePatterns {
		g, err := glob.Compile(toSlash(p), '/')
		if err != nil {
			return nil, fmt.Errorf("compiling ignore pattern %q: %w", p, err)
		}
		a.ignore = append(a.ignore, g)
	}

	return a, nil
}

// Handle applies the aggregation rules to one event. aggregate is the
// current value of the subscriber's aggregation switch.
func (a *Aggregator) Handle(ev event.Event, aggregate bool) {
	switch {
	case ev.Type == event.Close:
		held, ok := a.table.Peek(ev.Path)
		if !ok {
			return
		}
		a.table.Remove(ev.Path)
		a.release(held, metrics.FlushClose)

	case aggregate && ev.Type.Postponable():
		if a.table.Contains(ev.Path) {
			metrics.EventsSuppressed.WithLabelValues(metrics.SuppressDuplicate).Inc()
			return
		}
		if a.table.Len() >= a.maxPostponed {
			if _, oldest, ok := a.table.RemoveOldest(); ok {
				a.release(oldest, metrics.FlushEvicted)
			}
		}
		a.table.Add(ev.Path, postponed{ev: ev, since: a.now()})
		metrics.PostponedEvents.Set(float64(a.table.Len()))

	default:
		if ev.Type == event.Move && a.inTrash(ev.Path) {
			metrics.EventsSuppressed.WithLabelValues(metrics.SuppressTrash).Inc()
			return
		}
		a.deliver(ev)
	}
}

// FlushStale delivers held events that have waited at least MaxAge as of
// now. It returns the number of events released.
func (a *Aggregator) FlushStale(now time.Time) int {
	if a.maxAge <= 0 {
		return 0
	}

	released := 0
	// Keys are oldest first and lookups never refresh recency, so the scan
	// stops at the first entry that is young enough.
	for _, path := range a.table.Keys() {
		held, ok := a.table.Peek(path)
		if !ok {
			continue
		}
		if now.Sub(held.since) < a.maxAge {
			break
		}
		a.table.Remove(path)
		a.release(held, metrics.FlushStale)
		released++
	}
	return released
}

// Pending returns the number of held events.
func (a *Aggregator) Pending() int {
	return a.table.Len()
}

func (a *Aggregator) release(held postponed, reason string) {
	metrics.PostponedFlushes.WithLabelValues(reason).Inc()
	metrics.PostponedEvents.Set(float64(a.table.Len()))
	if reason != metrics.FlushClose {
		a.logger.Debug("releasing postponed event", "reason", reason, "path", held.ev.Path,
			"held", a.now().Sub(held.since))
	}
	a.deliver(held.ev)
}

func (a *Aggregator) deliver(ev event.Event) {
	if a.ignored(ev) {
		metrics.EventsSuppressed.WithLabelValues(metrics.SuppressIgnored).Inc()
		return
	}
	if a.filter != nil && !a.filter(ev) {
		metrics.EventsSuppressed.WithLabelValues(metrics.SuppressFiltered).Inc()
		return
	}
	if a.dispatcher.Dispatch(ev) {
		metrics.EventsDelivered.WithLabelValues(ev.Type.String()).Inc()
	}
}

func (a *Aggregator) inTrash(path string) bool {
	if len(a.trash) == 0 {
		return false
	}
	folded := a.fold.String(path)
	for _, p := range a.trash {
		if strings.HasPrefix(folded, p) {
			return true
		}
	}
	return false
}

func (a *Aggregator) ignored(ev event.Event) bool {
	if len(a.ignore) == 0 {
		return false
	}
	if !a.matchIgnore(ev.Path) {
		return false
	}
	return ev.Type != event.Move || a.matchIgnore(ev.OldPath)
}

func (a *Aggregator) matchIgnore(path string) bool {
	path = toSlash(path)
	for _, g := range a.ignore {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// toSlash rewrites Windows separators; glob treats a backslash as an escape.
func toSlash(s string) string {
	return strings.ReplaceAll(s, `\`, "/")
}
