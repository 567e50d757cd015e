package pathops

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotFound is returned when a path does not resolve to a value.
var ErrNotFound = errors.New("path not found")

// Path is a parsed dot-notation path. The empty path addresses the root.
type Path []string

// Parse splits a dot-notation path. "" and "." both parse to the root.
func Parse(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "." {
		return Path{}, nil
	}
	parts := strings.Split(s, ".")
	for i, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("path %q: empty segment at position %d", s, i)
		}
	}
	return parts, nil
}

// MustParse is like [Parse] but panics on an invalid path.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Extend returns a new path with segs appended. Non-string segments are
// formatted: integral numbers as list indexes, everything else with %v.
func (p Path) Extend(segs ...any) Path {
	out := make(Path, len(p), len(p)+len(segs))
	copy(out, p)
	for _, s := range segs {
		out = append(out, segment(s))
	}
	return out
}

func segment(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	default:
		return fmt.Sprint(v)
	}
}

// Get returns the value at path inside doc.
func Get(doc any, path Path) (any, bool) {
	current := doc
	for _, part := range path {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			i, ok := index(part, len(node))
			if !ok {
				return nil, false
			}
			current = node[i]
		default:
			return nil, false
		}
	}
	return current, true
}

// Set returns a copy of doc with the value at path replaced by value.
//
// Missing map keys along the path are created as empty maps. A list index
// equal to the list length appends. Setting the root returns value.
func Set(doc any, path Path, value any) (any, error) {
	if len(path) == 0 {
		return value, nil
	}
	return set(doc, path, value, 0)
}

func set(node any, path Path, value any, depth int) (any, error) {
	part := path[depth]
	last := depth == len(path)-1

	switch n := node.(type) {
	case nil:
		n = map[string]any{}
		return set(n, path, value, depth)
	case map[string]any:
		child := value
		if !last {
			var err error
			if child, err = set(n[part], path, value, depth+1); err != nil {
				return nil, err
			}
		}
		out := make(map[string]any, len(n)+1)
		for k, v := range n {
			out[k] = v
		}
		out[part] = child
		return out, nil
	case []any:
		i, ok := index(part, len(n)+1)
		if !ok {
			return nil, fmt.Errorf("%w: %s: index %q out of range", ErrNotFound, path[:depth+1], part)
		}
		var existing any
		if i < len(n) {
			existing = n[i]
		}
		child := value
		if !last {
			var err error
			if child, err = set(existing, path, value, depth+1); err != nil {
				return nil, err
			}
		}
		out := make([]any, len(n), len(n)+1)
		copy(out, n)
		if i == len(n) {
			out = append(out, child)
		} else {
			out[i] = child
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s: cannot descend into %T", ErrNotFound, path[:depth], node)
	}
}

// Delete returns a copy of doc without the value at path. Deleting a list
// element shifts the following elements down. Deleting the root returns nil.
func Delete(doc any, path Path) (any, error) {
	if len(path) == 0 {
		return nil, nil
	}
	return del(doc, path, 0)
}

func del(node any, path Path, depth int) (any, error) {
	part := path[depth]
	last := depth == len(path)-1

	switch n := node.(type) {
	case map[string]any:
		v, ok := n[part]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path[:depth+1])
		}
		out := make(map[string]any, len(n))
		for k, e := range n {
			out[k] = e
		}
		if last {
			delete(out, part)
			return out, nil
		}
		child, err := del(v, path, depth+1)
		if err != nil {
			return nil, err
		}
		out[part] = child
		return out, nil
	case []any:
		i, ok := index(part, len(n))
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path[:depth+1])
		}
		if last {
			out := make([]any, 0, len(n)-1)
			out = append(out, n[:i]...)
			return append(out, n[i+1:]...), nil
		}
		child, err := del(n[i], path, depth+1)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(n))
		copy(out, n)
		out[i] = child
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path[:depth+1])
	}
}

// index parses part as a list index below limit.
func index(part string, limit int) (int, bool) {
	i, err := strconv.Atoi(part)
	if err != nil || i < 0 || i >= limit {
		return 0, false
	}
	return i, true
}
