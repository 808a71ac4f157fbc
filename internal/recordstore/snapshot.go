package recordstore

import (
	"sort"

	"github.com/mitchellh/mapstructure"
)

// Snapshot is the value at a path at one point in time.
type Snapshot struct {
	Path  Path
	Value any
}

// Exists reports whether anything is stored at the path.
func (s Snapshot) Exists() bool { return s.Value != nil }

// Key is the last segment of the path.
func (s Snapshot) Key() string { return s.Path.Key() }

// Child returns the snapshot of a descendant.
func (s Snapshot) Child(rel string) Snapshot {
	p, err := s.Path.Child(rel)
	if err != nil {
		return Snapshot{}
	}
	return Snapshot{Path: p, Value: getAt(s.Value, p[len(s.Path):])}
}

// Children returns the direct children ordered by key.
func (s Snapshot) Children() []Snapshot {
	m, ok := s.Value.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Snapshot, 0, len(keys))
	for _, k := range keys {
		p := append(append(make(Path, 0, len(s.Path)+1), s.Path...), k)
		out = append(out, Snapshot{Path: p, Value: m[k]})
	}
	return out
}

// Str returns the value when it is a string scalar.
func (s Snapshot) Str() (string, bool) {
	v, ok := s.Value.(string)
	return v, ok
}

// Decode copies the value into out, matching map keys to json struct tags.
func (s Snapshot) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(s.Value); err != nil {
		return wrap("decode", s.Path, &Error{Kind: KindInvalidRecord, Err: err})
	}
	return nil
}
