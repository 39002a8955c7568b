package permission

import (
	"path"
	"strings"
)

// MatchPattern reports whether an action name matches a glob pattern.
// Action names are /-separated, e.g. "bash/git status" or "edit/src/main.go".
//
//   - "*" and "?" follow path.Match semantics and do not cross "/"
//   - "**" matches any number of segments and must stand as a full segment
//   - "**" alone matches everything
//
// A malformed pattern never matches: an invalid pattern must fail toward
// the restrictive default, not toward matching everything.
func MatchPattern(pattern, action string) bool {
	if pattern == "" {
		return false
	}
	if pattern == "**" {
		return true
	}

	if !strings.Contains(pattern, "**") {
		matched, err := path.Match(pattern, action)
		return err == nil && matched
	}

	segs := strings.Split(pattern, "/")
	star := -1
	for i, s := range segs {
		if s == "**" {
			if star >= 0 {
				// Multiple ** segments are unsupported; deny.
				return false
			}
			star = i
		} else if strings.Contains(s, "**") {
			// ** embedded in a segment ("a**b") is malformed; deny.
			return false
		}
	}

	head, tail := segs[:star], segs[star+1:]
	actionSegs := strings.Split(action, "/")
	if len(actionSegs) < len(head)+len(tail) {
		return false
	}

	for i, p := range head {
		if !matchSegment(p, actionSegs[i]) {
			return false
		}
	}
	offset := len(actionSegs) - len(tail)
	for i, p := range tail {
		if !matchSegment(p, actionSegs[offset+i]) {
			return false
		}
	}

	// ** may consume zero or more segments, but never empty ones.
	for _, s := range actionSegs[len(head):offset] {
		if s == "" {
			return false
		}
	}
	return true
}

func matchSegment(pattern, s string) bool {
	matched, err := path.Match(pattern, s)
	return err == nil && matched
}
