//go:build !windows && !linux

package watcher

// CurrentThreadID returns 0 where thread ids are not exposed.
func CurrentThreadID() int64 {
	return 0
}
