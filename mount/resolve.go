package mount

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ResolveMounts returns the minimal set of host directories that makes every
// path visible: an existing directory stands for itself, anything else for
// its parent. Duplicates are dropped and directories nested inside another
// result are folded into it. The result is sorted.
func ResolveMounts(paths []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		dir := abs
		if fi, err := os.Stat(abs); err != nil || !fi.IsDir() {
			dir = filepath.Dir(abs)
		}
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	sort.Strings(dirs)
	var out []string
next:
	for _, d := range dirs {
		for _, kept := range out {
			if within(d, kept) {
				continue next
			}
		}
		out = append(out, d)
	}
	return out
}

// within reports whether dir equals parent or lies below it.
func within(dir, parent string) bool {
	if dir == parent {
		return true
	}
	if !strings.HasSuffix(parent, string(filepath.Separator)) {
		parent += string(filepath.Separator)
	}
	return strings.HasPrefix(dir, parent)
}
