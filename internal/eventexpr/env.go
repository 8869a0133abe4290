package eventexpr

import (
	"strings"

	"github.com/mrzor/fswatch/internal/event"
)

// typeEnv types expressions at compile time.
var typeEnv = map[string]interface{}{
	"type":     "",
	"path":     "",
	"old_path": "",
	"dir":      "",
	"base":     "",
	"ext":      "",
	"pid":      uint64(0),
	"sequence": int32(0),
	"overflow": false,
}

// Env builds the evaluation environment for ev.
func Env(ev event.Event) map[string]interface{} {
	dir, base := splitPath(ev.Path)
	return map[string]interface{}{
		"type":     ev.Type.String(),
		"path":     ev.Path,
		"old_path": ev.OldPath,
		"dir":      dir,
		"base":     base,
		"ext":      extension(base),
		"pid":      ev.PID,
		"sequence": ev.Sequence,
		"overflow": ev.Overflow(),
	}
}

// splitPath splits at the last separator. Both separators are accepted
// because display paths are Windows paths on one backend and POSIX paths on
// the other.
func splitPath(p string) (dir, base string) {
	i := strings.LastIndexAny(p, `\/`)
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

func extension(base string) string {
	i := strings.LastIndexByte(base, '.')
	if i <= 0 {
		return ""
	}
	return strings.ToLower(base[i:])
}
