package recordstore

import (
	"strings"
)

const (
	// MaxDepth is the deepest path a record may be stored at.
	MaxDepth = 32
	// MaxKeyBytes bounds the length of a single segment.
	MaxKeyBytes = 768
)

// Path addresses a node in the namespace. The zero value is the root.
type Path []string

// ParsePath splits a slash separated path and validates every segment.
// Leading and trailing slashes are ignored.
func ParsePath(s string) (Path, error) {
	s = strings.Trim(s, "/")
	if s == "" {
		return Path{}, nil
	}
	return Join(strings.Split(s, "/")...)
}

// MustParsePath is ParsePath for literals known to be valid.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Join builds a path from individual segments.
func Join(segs ...string) (Path, error) {
	if len(segs) > MaxDepth {
		return nil, Errorf(KindInvalidRecord, "path deeper than %d segments", MaxDepth)
	}
	p := make(Path, 0, len(segs))
	for _, s := range segs {
		if err := ValidateKey(s); err != nil {
			return nil, err
		}
		p = append(p, s)
	}
	return p, nil
}

// ValidateKey reports whether s can be used as a single path segment.
func ValidateKey(s string) error {
	if s == "" {
		return Errorf(KindMissingIdentifier, "empty path segment")
	}
	if len(s) > MaxKeyBytes {
		return Errorf(KindInvalidRecord, "key longer than %d bytes", MaxKeyBytes)
	}
	for _, r := range s {
		switch {
		case r < 0x20 || r == 0x7f:
			return Errorf(KindInvalidRecord, "key %q contains a control character", s)
		case strings.ContainsRune(".$#[]/", r):
			return Errorf(KindInvalidRecord, "key %q contains %q", s, r)
		}
	}
	return nil
}

func (p Path) String() string { return strings.Join(p, "/") }

// IsRoot reports whether p is the namespace root.
func (p Path) IsRoot() bool { return len(p) == 0 }

// Key returns the last segment, or "" for the root.
func (p Path) Key() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Child appends rel (which may hold several segments) to p.
func (p Path) Child(rel string) (Path, error) {
	r, err := ParsePath(rel)
	if err != nil {
		return nil, err
	}
	if len(r) == 0 {
		return nil, Errorf(KindMissingIdentifier, "empty child path")
	}
	if len(p)+len(r) > MaxDepth {
		return nil, Errorf(KindInvalidRecord, "path deeper than %d segments", MaxDepth)
	}
	out := make(Path, 0, len(p)+len(r))
	out = append(out, p...)
	return append(out, r...), nil
}

// HasPrefix reports whether q is p or an ancestor of p.
func (p Path) HasPrefix(q Path) bool {
	if len(q) > len(p) {
		return false
	}
	for i := range q {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// Overlaps reports whether a write at one path can change the value at the other.
func (p Path) Overlaps(q Path) bool {
	return p.HasPrefix(q) || q.HasPrefix(p)
}

// Template is a path with {placeholder} segments, e.g. "people/{courseId}/{personId}".
type Template string

// Expand substitutes ids into the placeholders in order.
func (t Template) Expand(ids ...string) (Path, error) {
	segs := strings.Split(strings.Trim(string(t), "/"), "/")
	out := make([]string, 0, len(segs))
	next := 0
	for _, s := range segs {
		if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
			name := s[1 : len(s)-1]
			if next >= len(ids) || ids[next] == "" {
				return nil, Errorf(KindMissingIdentifier, "%s: missing %s", t, name)
			}
			s = ids[next]
			next++
		}
		out = append(out, s)
	}
	if next < len(ids) {
		return nil, Errorf(KindInvalidRecord, "%s: %d identifiers given, %d used", t, len(ids), next)
	}
	p, err := Join(out...)
	if err != nil {
		return nil, wrap("expand", nil, err)
	}
	return p, nil
}
