// Package pathutil holds URL path checks shared by handlers that map
// request paths onto files.
package pathutil

import "strings"

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// Unsafe reports whether p carries a NUL byte, a backslash or any ".."
// sequence, or has dot segments. Such paths are refused before touching a
// filesystem.
func Unsafe(p string) bool {
	return strings.ContainsAny(p, "\x00\\") || strings.Contains(p, "..") || HasDotSegments(p)
}
