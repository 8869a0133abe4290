//go:build windows

package pathconv

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// Discover builds a Table from the logical drives currently present,
// resolving each drive letter with QueryDosDevice.
func Discover() (*Table, error) {
	n, err := windows.GetLogicalDriveStrings(0, nil)
	if err != nil {
		return nil, fmt.Errorf("sizing logical drive list: %w", err)
	}

	buf := make([]uint16, n)
	n, err = windows.GetLogicalDriveStrings(uint32(len(buf)), &buf[0])
	if err != nil {
		return nil, fmt.Errorf("listing logical drives: %w", err)
	}

	var mappings []Mapping
	for _, root := range splitMultiString(buf[:n]) {
		drive := root
		if len(drive) > 0 && drive[len(drive)-1] == '\\' {
			drive = drive[:len(drive)-1]
		}

		device, err := queryDosDevice(drive)
		if err != nil {
			// Disconnected network drives fail here; they are not watched anyway.
			continue
		}
		mappings = append(mappings, Mapping{Drive: drive, Device: device})
	}

	return NewTable(mappings...), nil
}

func queryDosDevice(drive string) (string, error) {
	name, err := windows.UTF16PtrFromString(drive)
	if err != nil {
		return "", err
	}

	target := make([]uint16, windows.MAX_PATH)
	n, err := windows.QueryDosDevice(name, &target[0], uint32(len(target)))
	if err != nil {
		return "", fmt.Errorf("querying device for %s: %w", drive, err)
	}

	// The result is a NUL-separated list; the first entry is the active target.
	targets := splitMultiString(target[:n])
	if len(targets) == 0 {
		return "", fmt.Errorf("no device for %s", drive)
	}
	return targets[0], nil
}

// splitMultiString splits a double NUL-terminated UTF-16 string list.
func splitMultiString(buf []uint16) []string {
	var out []string
	start := 0
	for i, c := range buf {
		if c != 0 {
			continue
		}
		if i > start {
			out = append(out, windows.UTF16ToString(buf[start:i]))
		}
		start = i + 1
	}
	return out
}
