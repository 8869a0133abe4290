//go:build linux

package watcher

import "golang.org/x/sys/unix"

// CurrentThreadID returns the id of the OS thread running the caller. It is
// only stable for goroutines locked with runtime.LockOSThread.
func CurrentThreadID() int64 {
	return int64(unix.Gettid())
}
