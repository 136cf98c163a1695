package transport

import (
	"net/url"
	"strings"
)

// JoinURL joins a base URL and a resource path with exactly one slash.
func JoinURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return base
	}
	if base == "" {
		return "/" + path
	}
	return base + "/" + path
}

// Segments splits a path into its non-empty segments.
func Segments(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LastSegment returns the final path segment, or "" for an empty path.
func LastSegment(path string) string {
	segs := Segments(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// Resource returns the leading path segment.
func Resource(path string) string {
	segs := Segments(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[0]
}

// SplitResourceID splits "<resource...>/<id>" into the resource path and the
// unescaped id. A single-segment path has no id.
func SplitResourceID(path string) (string, string) {
	segs := Segments(path)
	switch len(segs) {
	case 0:
		return "", ""
	case 1:
		return segs[0], ""
	default:
		return strings.Join(segs[:len(segs)-1], "/"), unescapeID(segs[len(segs)-1])
	}
}

func unescapeID(seg string) string {
	id, err := url.PathUnescape(seg)
	if err != nil {
		return seg
	}
	return id
}

// ItemPath builds "<resource>/<id>" with the id escaped into a single segment,
// so ids holding "/", "?" or dot segments cannot leave the resource.
func ItemPath(resource string, id any) string {
	seg := url.PathEscape(Stringify(id))
	if seg == "." || seg == ".." {
		seg = strings.ReplaceAll(seg, ".", "%2E")
	}
	return JoinURL(strings.Trim(resource, "/"), seg)
}
