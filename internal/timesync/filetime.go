package timesync

import "time"

// filetimeUnixOffset is the number of 100ns intervals between 1601-01-01 and
// 1970-01-01.
const filetimeUnixOffset = 116444736000000000

// Filetime converts Windows FILETIME values (100ns intervals since
// 1601-01-01 UTC).
type Filetime struct{}

// ToWallClock converts a FILETIME value. Zero stays the zero time.
func (Filetime) ToWallClock(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	//nolint:gosec // Any FILETIME before 30828 fits int64
	d := int64(ft) - filetimeUnixOffset
	return time.Unix(d/1e7, (d%1e7)*100).UTC()
}
