package watcher

import "os"

// CurrentProcessID returns the id of this process, for excluding the
// watcher's own file activity with NotWatchProcess.
func CurrentProcessID() int64 {
	return int64(os.Getpid())
}
