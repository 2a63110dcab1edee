// Package guard evaluates approval-time guard predicates against freshly
// fetched prestate immediately before an approved write fires. This is the
// time-of-check/time-of-use defense: approval may be granted hours before
// execution, and the re-check here is what makes it meaningful at the moment
// it is spent.
package guard

import (
	"strconv"
	"strings"
)

// Resolve addresses a field inside a nested document using dot and bracket
// segments, e.g. "order.items[0].status". It is total: any missing or
// mistyped segment yields ok=false, never a panic. Callers treat a missing
// path as a failed guard.
func Resolve(doc interface{}, path string) (interface{}, bool) {
	segments, ok := splitPath(path)
	if !ok {
		return nil, false
	}

	current := doc
	for _, seg := range segments {
		if seg.index >= 0 {
			arr, ok := current.([]interface{})
			if !ok || seg.index >= len(arr) {
				return nil, false
			}
			current = arr[seg.index]
			continue
		}
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[seg.key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

type segment struct {
	key   string
	index int // -1 for object keys
}

func splitPath(path string) ([]segment, bool) {
	if path == "" {
		return nil, false
	}
	var segments []segment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, false
		}
		// A part may carry bracket indices: "items[0][2]".
		key := part
		rest := ""
		if i := strings.IndexByte(part, '['); i >= 0 {
			key, rest = part[:i], part[i:]
		}
		if key != "" {
			segments = append(segments, segment{key: key, index: -1})
		} else if rest == "" {
			return nil, false
		}
		for rest != "" {
			if rest[0] != '[' {
				return nil, false
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, false
			}
			idx, err := strconv.Atoi(rest[1:end])
			if err != nil || idx < 0 {
				return nil, false
			}
			segments = append(segments, segment{index: idx})
			rest = rest[end+1:]
		}
	}
	return segments, len(segments) > 0
}
