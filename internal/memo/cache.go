package memo

import (
	"reflect"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the number of input pairs kept per memoized function
// when no capacity is configured.
const DefaultCapacity = 128

type entry[R any] struct {
	state any
	args  []any
	out   R
}

// Cache stores results of a single function keyed by its inputs.
//
// A nil *Cache is valid and never hits; [Wrap] returns the function
// unchanged in that case.
type Cache[R any] struct {
	mu      sync.Mutex
	buckets *lru.Cache[uint64, []entry[R]]
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// NewCache creates a [Cache] holding at most capacity hash buckets.
// Returns nil (memoization disabled) if capacity is zero or negative.
func NewCache[R any](capacity int) *Cache[R] {
	if capacity <= 0 {
		return nil
	}
	buckets, err := lru.New[uint64, []entry[R]](capacity)
	if err != nil {
		// only fails for non-positive sizes, ruled out above
		return nil
	}
	return &Cache[R]{buckets: buckets}
}

// Get returns the cached output for (state, args).
func (c *Cache[R]) Get(state any, args []any) (R, bool) {
	var zero R
	if c == nil {
		return zero, false
	}
	key := inputKey(state, args)

	c.mu.Lock()
	bucket, ok := c.buckets.Get(key)
	c.mu.Unlock()

	if ok {
		for _, e := range bucket {
			if reflect.DeepEqual(e.state, state) && argsEqual(e.args, args) {
				c.hits.Add(1)
				return e.out, true
			}
		}
	}
	c.misses.Add(1)
	return zero, false
}

// Put records out as the result for (state, args).
func (c *Cache[R]) Put(state any, args []any, out R) {
	if c == nil {
		return
	}
	key := inputKey(state, args)
	stored := append([]any(nil), args...)

	c.mu.Lock()
	defer c.mu.Unlock()

	// buckets are copy-on-write: Get ranges over them without the lock
	bucket, _ := c.buckets.Peek(key)
	next := make([]entry[R], 0, len(bucket)+1)
	for _, e := range bucket {
		if reflect.DeepEqual(e.state, state) && argsEqual(e.args, args) {
			continue
		}
		next = append(next, e)
	}
	next = append(next, entry[R]{state: state, args: stored, out: out})
	c.buckets.Add(key, next)
}

// Len returns the number of occupied hash buckets.
func (c *Cache[R]) Len() int {
	if c == nil {
		return 0
	}
	return c.buckets.Len()
}

// Stats returns the lifetime hit and miss counts.
func (c *Cache[R]) Stats() (hits, misses uint64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

// argsEqual compares argument tuples, treating nil and empty as equal.
func argsEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// ArgsEqual reports whether two argument tuples are structurally equal.
func ArgsEqual(a, b []any) bool {
	return argsEqual(a, b)
}

// Wrap memoizes fn through c. A nil c returns fn unchanged.
func Wrap[T, R any](c *Cache[R], fn func(T, ...any) R) func(T, ...any) R {
	if c == nil {
		return fn
	}
	return func(state T, args ...any) R {
		if out, ok := c.Get(state, args); ok {
			return out
		}
		out := fn(state, args...)
		c.Put(state, args, out)
		return out
	}
}
