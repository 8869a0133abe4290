// Package procname resolves process ids to executable names for display.
package procname

import (
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shirou/gopsutil/v4/process"
)

const (
	DefaultCacheSize = 1024
	// DefaultTTL bounds how long a pid keeps its name, since ids are reused.
	DefaultTTL = 30 * time.Second
)

// Resolver looks up process names with a small expiring cache in front of
// the OS. It is safe for concurrent use.
type Resolver struct {
	cache  *expirable.LRU[uint64, string]
	lookup func(pid uint64) (string, error)
}

// New creates a Resolver. Non-positive arguments select the defaults.
func New(size int, ttl time.Duration) *Resolver {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Resolver{
		cache:  expirable.NewLRU[uint64, string](size, nil, ttl),
		lookup: lookupProcessName,
	}
}

// Name returns the executable name of pid, or "" when the process is gone or
// not accessible. Failed lookups are cached too.
func (r *Resolver) Name(pid uint64) string {
	if name, ok := r.cache.Get(pid); ok {
		return name
	}
	name, err := r.lookup(pid)
	if err != nil {
		name = ""
	}
	r.cache.Add(pid, name)
	return name
}

func lookupProcessName(pid uint64) (string, error) {
	if pid > math.MaxInt32 {
		return "", fmt.Errorf("pid %d out of range", pid)
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", fmt.Errorf("opening process %d: %w", pid, err)
	}
	name, err := p.Name()
	if err != nil {
		return "", fmt.Errorf("reading name of process %d: %w", pid, err)
	}
	return name, nil
}
