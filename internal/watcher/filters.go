package watcher

import (
	"fmt"

	"github.com/mrzor/fswatch/internal/channel"
	"github.com/mrzor/fswatch/internal/logrecord"
	"github.com/mrzor/fswatch/internal/pathconv"
)

// filterState remembers the last filter of each kind the driver accepted.
// The driver forgets them when the port closes; Connect replays them. A nil
// field was never set.
type filterState struct {
	process *int64
	thread  *int64
	path    *string
}

func (f *filterState) apply(ch channel.Channel, tr pathconv.Translator) error {
	if f.process != nil {
		if err := sendFilterID(ch, logrecord.SetWatchProcess, *f.process); err != nil {
			return err
		}
	}
	if f.thread != nil {
		if err := sendFilterID(ch, logrecord.SetWatchThread, *f.thread); err != nil {
			return err
		}
	}
	if f.path != nil {
		if err := sendPathFilter(ch, tr, *f.path); err != nil {
			return err
		}
	}
	return nil
}

func sendFilterID(ch channel.Channel, cmd logrecord.Command, id int64) error {
	if err := ch.Send(cmd, logrecord.FilterIDPayload(id)); err != nil {
		return fmt.Errorf("sending %s %d: %w", cmd, id, err)
	}
	return nil
}

func sendPathFilter(ch channel.Channel, tr pathconv.Translator, pattern string) error {
	payload, err := logrecord.PathPayload(tr.ToLowLevelPath(pattern))
	if err != nil {
		return fmt.Errorf("encoding path filter %q: %w", pattern, err)
	}
	if err := ch.Send(logrecord.SetPathFilter, payload); err != nil {
		return fmt.Errorf("sending %s %q: %w", logrecord.SetPathFilter, pattern, err)
	}
	return nil
}
