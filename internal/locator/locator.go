// Package locator resolves evidence-file glob patterns (e.g.
// "identity/runtime/examples/protocol-baseline-review-*.json") against a
// filesystem root and picks the most recently modified match, the way the
// contract model's evidence checks need to find "the" report a
// *_path_pattern field names without the caller tracking exact filenames.
package locator

import (
	"os"
	"path/filepath"
)

// Latest returns the most recently modified file under root matching
// pattern (a filepath.Glob pattern, evaluated relative to root), or
// ok=false if nothing matches.
func Latest(root, pattern string) (path string, ok bool) {
	matches, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil || len(matches) == 0 {
		return "", false
	}

	var (
		best    string
		bestAge int64
		found   bool
	)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		mtime := info.ModTime().UnixNano()
		if !found || mtime > bestAge {
			best = m
			bestAge = mtime
			found = true
		}
	}
	if !found {
		return "", false
	}
	return best, true
}
