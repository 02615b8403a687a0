// Package pathutil validates and joins the slash separated object keys
// that make up theme folders.
package pathutil

import (
	"path"
	"strings"
)

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// SafeSegment reports whether s can be used as a single key segment: it is
// non-empty, has no slash, backslash or control bytes, and is not a dot
// segment.
func SafeSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '/' || c == '\\' || c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}

// Join builds a key from segments, dropping empty ones. dir marks the
// result as a folder prefix with a trailing slash.
func Join(dir bool, segs ...string) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if s = strings.Trim(s, "/"); s != "" {
			parts = append(parts, s)
		}
	}
	k := strings.Join(parts, "/")
	if dir && k != "" {
		k += "/"
	}
	return k
}

// Base returns the last segment of an object key. Keys ending in a slash
// (folder placeholders) have no base and return "".
func Base(key string) string {
	if key == "" || strings.HasSuffix(key, "/") {
		return ""
	}
	return path.Base(key)
}

// Segment returns the i-th slash separated segment of key, or "" when the
// key is too short.
func Segment(key string, i int) string {
	parts := strings.Split(key, "/")
	if i < 0 || i >= len(parts) {
		return ""
	}
	return parts[i]
}
