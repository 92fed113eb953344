package upgrade

import (
	"path/filepath"
	"strings"
)

// CheckPathPolicy reports whether every path in paths clears the safe-auto
// patch surface policy: a denylist hit always blocks (checked first, per
// the engine's deny-first precedence), and clearing the denylist still
// requires an allowlist match. Returns the first offending path and a
// human-readable reason when the check fails.
func CheckPathPolicy(paths, allowlist, denylist []string) (ok bool, offendingPath, reason string) {
	for _, p := range paths {
		for _, pattern := range denylist {
			if globMatch(pattern, p) {
				return false, p, "denied by pattern: " + pattern
			}
		}

		allowed := false
		for _, pattern := range allowlist {
			if globMatch(pattern, p) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false, p, "matches no allowlist pattern"
		}
	}
	return true, "", ""
}

// globMatch matches pattern against path, where a `**` path segment matches
// zero or more whole path segments (crossing separators), unlike
// filepath.Match's `*` which stops at a separator. Patterns without `**`
// fall back to filepath.Match directly.
func globMatch(pattern, path string) bool {
	if !strings.Contains(pattern, "**") {
		matched, _ := filepath.Match(pattern, path)
		return matched
	}

	patternParts := strings.Split(filepath.ToSlash(pattern), "/")
	pathParts := strings.Split(filepath.ToSlash(path), "/")
	return matchSegments(patternParts, pathParts)
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	if pattern[0] == "**" {
		if matchSegments(pattern[1:], path) {
			return true
		}
		if len(path) == 0 {
			return false
		}
		return matchSegments(pattern, path[1:])
	}
	if len(path) == 0 {
		return false
	}
	matched, _ := filepath.Match(pattern[0], path[0])
	if !matched {
		return false
	}
	return matchSegments(pattern[1:], path[1:])
}
