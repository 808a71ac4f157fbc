package recordstore

import (
	"encoding/json"
	"reflect"
	"sort"
	"strconv"
)

// Normalize converts v into the canonical node form: nil, string, bool,
// float64, or map[string]any with validated keys. Empty maps and nil
// children are dropped, so an empty record normalizes to nil. Slices
// become maps keyed by index, the way the realtime database stores
// arrays and returns nodes whose keys are sequential integers.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string, bool, float64:
		return t, nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, Errorf(KindInvalidRecord, "number %q: %v", t, err)
		}
		return f, nil
	case map[string]any:
		return normalizeMap(len(t), func(fn func(string, any) error) error {
			for k, c := range t {
				if err := fn(k, c); err != nil {
					return err
				}
			}
			return nil
		})
	case []any:
		return normalizeMap(len(t), func(fn func(string, any) error) error {
			for i, c := range t {
				if err := fn(strconv.Itoa(i), c); err != nil {
					return err
				}
			}
			return nil
		})
	case map[string]string:
		return normalizeMap(len(t), func(fn func(string, any) error) error {
			for k, c := range t {
				if err := fn(k, c); err != nil {
					return err
				}
			}
			return nil
		})
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		return normalizeMap(rv.Len(), func(fn func(string, any) error) error {
			for i := 0; i < rv.Len(); i++ {
				if err := fn(strconv.Itoa(i), rv.Index(i).Interface()); err != nil {
					return err
				}
			}
			return nil
		})
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, Errorf(KindInvalidRecord, "map keys must be strings, got %s", rv.Type().Key())
		}
		return normalizeMap(rv.Len(), func(fn func(string, any) error) error {
			iter := rv.MapRange()
			for iter.Next() {
				if err := fn(iter.Key().String(), iter.Value().Interface()); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return nil, Errorf(KindInvalidRecord, "unsupported value type %T", v)
}

func normalizeMap(n int, each func(func(string, any) error) error) (any, error) {
	out := make(map[string]any, n)
	err := each(func(k string, c any) error {
		if err := ValidateKey(k); err != nil {
			return err
		}
		nc, err := Normalize(c)
		if err != nil {
			return err
		}
		if nc != nil {
			out[k] = nc
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// Clone deep-copies a normalized value.
func Clone(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, c := range m {
		out[k] = Clone(c)
	}
	return out
}

// getAt returns the node at p below root, or nil.
func getAt(root any, p Path) any {
	node := root
	for _, seg := range p {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[seg]
	}
	return node
}

// setAt writes v at p below node and returns the new node. Maps along the
// path are modified in place; maps left empty are pruned.
func setAt(node any, p Path, v any) any {
	if len(p) == 0 {
		return v
	}
	m, ok := node.(map[string]any)
	if !ok {
		if v == nil {
			return node
		}
		m = make(map[string]any)
	}
	child := setAt(m[p[0]], p[1:], v)
	if child == nil {
		delete(m, p[0])
	} else {
		m[p[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// Flatten calls fn for every scalar leaf of v with its path relative to v.
func Flatten(v any, fn func(rel Path, leaf any)) {
	flatten(nil, v, fn)
}

func flatten(prefix Path, v any, fn func(Path, any)) {
	switch t := v.(type) {
	case nil:
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			next := make(Path, len(prefix), len(prefix)+1)
			copy(next, prefix)
			flatten(append(next, k), t[k], fn)
		}
	default:
		fn(prefix, t)
	}
}

// Unflatten rebuilds a node from leaves produced by Flatten.
func Unflatten(leaves map[string]any) any {
	var root any
	for rel, leaf := range leaves {
		p, err := ParsePath(rel)
		if err != nil {
			continue
		}
		root = setAt(root, p, leaf)
	}
	return root
}

// Write is one absolute-path assignment of a multi-path update. A nil Value
// removes the node.
type Write struct {
	Path  Path
	Value any
}

// ParseUpdate validates the keys of a multi-path update relative to base and
// normalizes its values. Keys may not overlap one another.
func ParseUpdate(base Path, children map[string]any) ([]Write, error) {
	if len(children) == 0 {
		return nil, Errorf(KindInvalidRecord, "empty update")
	}
	out := make([]Write, 0, len(children))
	for k, v := range children {
		p, err := base.Child(k)
		if err != nil {
			return nil, err
		}
		nv, err := Normalize(v)
		if err != nil {
			return nil, err
		}
		out = append(out, Write{Path: p, Value: nv})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path.String() < out[j].Path.String() })
	for i := 1; i < len(out); i++ {
		for j := 0; j < i; j++ {
			if out[i].Path.Overlaps(out[j].Path) {
				return nil, Errorf(KindInvalidRecord, "update paths %s and %s overlap", out[j].Path, out[i].Path)
			}
		}
	}
	return out, nil
}
