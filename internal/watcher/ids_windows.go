//go:build windows

package watcher

import "golang.org/x/sys/windows"

// CurrentThreadID returns the id of the OS thread running the caller. It is
// only stable for goroutines locked with runtime.LockOSThread.
func CurrentThreadID() int64 {
	return int64(windows.GetCurrentThreadId())
}
