// Package pathconv translates between the device namespace used by the
// filter driver (\Device\HarddiskVolume3\...) and drive-letter paths (C:\...).
package pathconv

import (
	"sort"
	"strings"
)

// Translator maps paths between the driver's device namespace and the
// display namespace shown to subscribers.
type Translator interface {
	ToDisplayPath(lowLevelPath string) string
	ToLowLevelPath(displayPath string) string
}

// Mapping pairs a drive designator such as "C:" with its device path.
type Mapping struct {
	Drive  string
	Device string
}

// Table is a Translator backed by a fixed list of drive mappings.
// It is built once at startup and is safe for concurrent use.
type Table struct {
	byDevice []Mapping // longest device first
	byDrive  []Mapping // longest drive first
}

// NewTable creates a Table from the given mappings. Mappings with an empty
// drive or device are skipped.
func NewTable(mappings ...Mapping) *Table {
	t := &Table{}
	for _, m := range mappings {
		m.Drive = strings.TrimRight(m.Drive, `\`)
		m.Device = strings.TrimRight(m.Device, `\`)
		if m.Drive == "" || m.Device == "" {
			continue
		}
		t.byDevice = append(t.byDevice, m)
		t.byDrive = append(t.byDrive, m)
	}

	// \Device\HarddiskVolume1 must not shadow \Device\HarddiskVolume10.
	sort.SliceStable(t.byDevice, func(i, j int) bool {
		return len(t.byDevice[i].Device) > len(t.byDevice[j].Device)
	})
	sort.SliceStable(t.byDrive, func(i, j int) bool {
		return len(t.byDrive[i].Drive) > len(t.byDrive[j].Drive)
	})
	return t
}

// Mappings returns a copy of the table's mappings.
func (t *Table) Mappings() []Mapping {
	out := make([]Mapping, len(t.byDrive))
	copy(out, t.byDrive)
	return out
}

// ToDisplayPath replaces a known device prefix with its drive letter.
// Unknown paths are returned unchanged.
func (t *Table) ToDisplayPath(lowLevelPath string) string {
	for _, m := range t.byDevice {
		if hasComponentPrefix(lowLevelPath, m.Device, false) {
			return m.Drive + lowLevelPath[len(m.Device):]
		}
	}
	return lowLevelPath
}

// ToLowLevelPath replaces a known drive prefix with its device path.
// Unknown paths are returned unchanged.
func (t *Table) ToLowLevelPath(displayPath string) string {
	for _, m := range t.byDrive {
		if hasComponentPrefix(displayPath, m.Drive, true) {
			return m.Device + displayPath[len(m.Drive):]
		}
	}
	return displayPath
}

// hasComponentPrefix reports whether prefix matches the start of path and
// ends on a path component boundary.
func hasComponentPrefix(path, prefix string, foldCase bool) bool {
	if len(path) < len(prefix) {
		return false
	}
	head := path[:len(prefix)]
	if foldCase {
		if !strings.EqualFold(head, prefix) {
			return false
		}
	} else if head != prefix {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '\\'
}

type identity struct{}

func (identity) ToDisplayPath(p string) string  { return p }
func (identity) ToLowLevelPath(p string) string { return p }

// Identity is a Translator that returns paths unchanged.
var Identity Translator = identity{}
