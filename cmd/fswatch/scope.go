package main

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gobwas/glob"

	"github.com/mrzor/fswatch/internal/event"
)

// matchAll is the driver pattern that lifts the path filter.
const matchAll = "*"

// pathScope is the set of watched paths. The driver holds a single path
// pattern, so several paths are narrowed to their common parent on the
// driver side and matched exactly here.
type pathScope struct {
	paths    []string
	prefixes []string
	globs    []glob.Glob
}

func newPathScope(paths []string) (*pathScope, error) {
	s := &pathScope{}
	for _, p := range paths {
		if p == "" {
			continue
		}
		// Like the driver's matcher, * crosses separators and case is
		// ignored. Backslashes would read as escapes.
		g, err := glob.Compile(foldPath(withWildcard(p)))
		if err != nil {
			return nil, fmt.Errorf("invalid watch path %q: %w", p, err)
		}
		s.paths = append(s.paths, p)
		s.prefixes = append(s.prefixes, literalPrefix(p))
		s.globs = append(s.globs, g)
	}
	return s, nil
}

// withWildcard makes a plain path match everything below it.
func withWildcard(p string) string {
	if strings.ContainsAny(p, "*?") {
		return p
	}
	return p + "*"
}

func foldPath(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, `\`, "/"))
}

// driverPattern returns the pattern to send with SetPathFilter. A single path
// without wildcards matches everything below it.
func (s *pathScope) driverPattern() string {
	switch len(s.paths) {
	case 0:
		return matchAll
	case 1:
		return withWildcard(s.paths[0])
	}

	parent := commonParent(s.prefixes)
	if parent == "" {
		return matchAll
	}
	return parent + "*"
}

// Match reports whether ev touches one of the watched paths. With one path or
// none the driver filter is exact and everything matches.
func (s *pathScope) Match(ev event.Event) bool {
	if len(s.globs) < 2 {
		return true
	}
	return s.covers(ev.Path) || (ev.Type == event.Move && s.covers(ev.OldPath))
}

func (s *pathScope) covers(path string) bool {
	path = foldPath(path)
	for _, g := range s.globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func (s *pathScope) equal(other *pathScope) bool {
	if len(s.paths) != len(other.paths) {
		return false
	}
	for i := range s.paths {
		if s.paths[i] != other.paths[i] {
			return false
		}
	}
	return true
}

// literalPrefix cuts p at its first wildcard.
func literalPrefix(p string) string {
	if i := strings.IndexAny(p, "*?"); i >= 0 {
		return p[:i]
	}
	return p
}

// commonParent returns the longest prefix of paths[0] that every path shares,
// ignoring case, cut back to its last separator.
func commonParent(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	prefix := paths[0]
	for _, p := range paths[1:] {
		prefix = prefix[:commonFoldLen(prefix, p)]
	}
	if i := strings.LastIndexAny(prefix, `\/`); i >= 0 {
		return prefix[:i+1]
	}
	return ""
}

// commonFoldLen returns the byte length of the longest prefix of a that
// matches b rune by rune under case folding. Case mappings may change the
// encoded length, so a and b are walked separately.
func commonFoldLen(a, b string) int {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ra, na := utf8.DecodeRuneInString(a[i:])
		rb, nb := utf8.DecodeRuneInString(b[j:])
		if ra != rb && !strings.EqualFold(a[i:i+na], b[j:j+nb]) {
			break
		}
		i += na
		j += nb
	}
	return i
}
