package timesync

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/host"
)

// Stamper converts a raw record timestamp into wall-clock time.
type Stamper interface {
	ToWallClock(raw uint64) time.Time
}

// Converter handles conversion from monotonic timestamps to wall-clock time.
type Converter struct {
	bootTime time.Time
}

// NewConverter creates a converter anchored at the system boot time.
// If the boot time cannot be read, it falls back to a conservative estimate
// one hour in the past and returns the converter along with the error.
func NewConverter() (*Converter, error) {
	secs, err := host.BootTime()
	if err != nil || secs == 0 {
		if err == nil {
			err = fmt.Errorf("boot time unavailable")
		}
		return &Converter{bootTime: time.Now().Add(-time.Hour)}, fmt.Errorf("reading boot time: %w", err)
	}

	//nolint:gosec // Boot time in seconds fits int64
	return &Converter{bootTime: time.Unix(int64(secs), 0)}, nil
}

// NewConverterAt creates a converter anchored at a known boot time.
func NewConverterAt(bootTime time.Time) *Converter {
	return &Converter{bootTime: bootTime}
}

// ToWallClock converts nanoseconds since boot to wall-clock time.
func (c *Converter) ToWallClock(monotonicNanos uint64) time.Time {
	//nolint:gosec // uint64 to int64 conversion for time.Duration is safe for reasonable timestamps
	return c.bootTime.Add(time.Duration(monotonicNanos))
}

// BootTime returns the system boot time used for conversions.
func (c *Converter) BootTime() time.Time {
	return c.bootTime
}
