// Package ordered provides an insertion-ordered keyed map.
//
// Map backs every named table in cellstore: validators and watchers on a
// cell, reducers and selectors on a store, and the per-subscription
// notifiable registry. Iteration follows first-insertion order; setting an
// existing key replaces its value in place.
//
// Map is not safe for concurrent use. Owners guard it with their own mutex.
package ordered

// Map is an insertion-ordered map from K to V.
type Map[K comparable, V any] struct {
	keys  []K
	vals  []V
	index map[K]int
}

// New creates an empty [Map].
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{index: make(map[K]int)}
}

// Set inserts or replaces the value for key.
// Returns true if an existing entry was replaced.
func (m *Map[K, V]) Set(key K, val V) bool {
	if i, ok := m.index[key]; ok {
		m.vals[i] = val
		return true
	}
	m.index[key] = len(m.keys)
	m.keys = append(m.keys, key)
	m.vals = append(m.vals, val)
	return false
}

// Get returns the value for key and whether it exists.
func (m *Map[K, V]) Get(key K) (V, bool) {
	i, ok := m.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return m.vals[i], true
}

// Delete removes key. Returns false if the key was absent.
func (m *Map[K, V]) Delete(key K) bool {
	i, ok := m.index[key]
	if !ok {
		return false
	}
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	m.vals = append(m.vals[:i], m.vals[i+1:]...)
	delete(m.index, key)
	for j := i; j < len(m.keys); j++ {
		m.index[m.keys[j]] = j
	}
	return true
}

// MoveToBack moves key to the last position. Returns false if absent.
func (m *Map[K, V]) MoveToBack(key K) bool {
	val, ok := m.Get(key)
	if !ok {
		return false
	}
	m.Delete(key)
	m.Set(key, val)
	return true
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	return len(m.keys)
}

// Keys returns a copy of the keys in order.
func (m *Map[K, V]) Keys() []K {
	out := make([]K, len(m.keys))
	copy(out, m.keys)
	return out
}

// Values returns a copy of the values in order.
func (m *Map[K, V]) Values() []V {
	out := make([]V, len(m.vals))
	copy(out, m.vals)
	return out
}

// Entry is a key/value pair returned by [Map.Entries].
type Entry[K comparable, V any] struct {
	Key K
	Val V
}

// Entries returns a snapshot of all entries in order.
//
// The snapshot is detached from the map, so callers may run code that
// mutates the map (including reentrantly) while ranging over it.
func (m *Map[K, V]) Entries() []Entry[K, V] {
	out := make([]Entry[K, V], len(m.keys))
	for i := range m.keys {
		out[i] = Entry[K, V]{Key: m.keys[i], Val: m.vals[i]}
	}
	return out
}
