package cellstore

import (
	"math"
	"reflect"
	"sync"

	"github.com/jpalmerr/cellstore/internal/errs"
	"github.com/jpalmerr/cellstore/internal/ordered"
)

// Validator is a pure predicate over a candidate cell value.
// Returning false rejects the value.
type Validator[T any] func(value T) bool

// Watcher is called after every accepted mutation of a [Cell] with the key
// it was registered under and the values before and after the change.
type Watcher[T any] func(key string, old, new T)

// Reducer computes a new state from the current state and call arguments.
// Reducers must be pure: they may be invoked more than once per update and
// their results are memoized.
type Reducer[T any] func(state T, args ...any) T

// Cell holds one immutable value of type T, replaced wholesale on every
// mutation.
//
// Candidate values pass through every registered [Validator] before they are
// installed; every registered [Watcher] observes each accepted change. Both
// tables are keyed by name, iterate in registration order, and replace on a
// duplicate key.
//
// The internal mutex guards only the stored value and the tables; it is never
// held while reducers, validators, or watchers run. Those functions may
// therefore call back into the same cell (for example a watcher that
// triggers another update) without deadlocking.
//
// Watchers see transitions in commit order, across goroutines as well as
// reentrant calls: each commit is queued, and one delivery pass at a time
// drains the queue. A commit made while a pass is running (from a watcher
// of that pass, or from another goroutine) is delivered by that pass after
// the transitions before it, so every watcher's old value is the previous
// call's new value.
type Cell[T any] struct {
	mu         sync.Mutex
	value      T
	version    uint64
	validators *ordered.Map[string, Validator[T]]
	watchers   *ordered.Map[string, Watcher[T]]
	equal      func(a, b T) bool

	// committed transitions not yet delivered to watchers
	pending    []transition[T]
	delivering bool

	// onRetry is called each time Update discards a computed candidate
	// because the value changed underneath it.
	onRetry func()
}

// NewCell creates a [Cell] holding initial.
//
// The initial value is not validated; validators apply to later mutations.
func NewCell[T any](initial T, opts ...CellOption[T]) *Cell[T] {
	c := &Cell[T]{
		value:      initial,
		validators: ordered.New[string, Validator[T]](),
		watchers:   ordered.New[string, Watcher[T]](),
		equal:      defaultEqual[T],
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Read returns the current value.
func (c *Cell[T]) Read() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

type transition[T any] struct {
	old, new T
}

// Set validates v and, if every validator accepts it, installs it and runs
// the watchers.
//
// Returns an [InvalidValueError] (matching [ErrInvalidValue]) naming the
// first rejecting validator. A rejected value leaves the cell untouched and
// fires no watchers.
func (c *Cell[T]) Set(v T) error {
	if err := c.validate(v); err != nil {
		return err
	}

	c.mu.Lock()
	c.commitLocked(v)
	c.deliverUnlock()
	return nil
}

// Update applies fn to the current value and installs the result.
//
// The commit is optimistic: after fn returns and the candidate passes
// validation, the candidate is installed only if the stored value is still
// the one fn was given (same version, or structurally equal to it).
// Otherwise the whole read-apply-validate step is repeated against the new
// value. The loop is unbounded, so fn must be pure and cheap.
//
// The retry guards against reentrancy (fn, a validator, or a watcher
// updating the same cell mid-call) and against concurrent writers on other
// goroutines. Watchers fire exactly once per successful call, even when fn
// returns its input unchanged. When a delivery pass is already running, the
// call returns once committed and that pass runs its watchers in order.
func (c *Cell[T]) Update(fn Reducer[T], args ...any) error {
	for {
		c.mu.Lock()
		snapshot, version := c.value, c.version
		c.mu.Unlock()

		candidate := fn(snapshot, args...)
		if err := c.validate(candidate); err != nil {
			return err
		}

		c.mu.Lock()
		if c.version == version || c.equal(snapshot, c.value) {
			c.commitLocked(candidate)
			c.deliverUnlock()
			return nil
		}
		onRetry := c.onRetry
		c.mu.Unlock()

		if onRetry != nil {
			onRetry()
		}
	}
}

// AddValidator registers fn under key, replacing any validator already
// registered with that key. A replaced validator keeps its position in the
// evaluation order.
func (c *Cell[T]) AddValidator(key string, fn Validator[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validators.Set(key, fn)
}

// RemoveValidator unregisters the validator under key.
// Returns false if no validator had that key.
func (c *Cell[T]) RemoveValidator(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validators.Delete(key)
}

// AddWatcher registers fn under key, replacing any watcher already registered
// with that key. Only the newest watcher for a key fires.
func (c *Cell[T]) AddWatcher(key string, fn Watcher[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers.Set(key, fn)
}

// RemoveWatcher unregisters the watcher under key.
// Returns false if no watcher had that key.
func (c *Cell[T]) RemoveWatcher(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watchers.Delete(key)
}

// ValidatorKeys returns validator keys in evaluation order.
func (c *Cell[T]) ValidatorKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validators.Keys()
}

// WatcherKeys returns watcher keys in invocation order.
func (c *Cell[T]) WatcherKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watchers.Keys()
}

// moveWatcherToBack keeps key last in the invocation order.
func (c *Cell[T]) moveWatcherToBack(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers.MoveToBack(key)
}

// validate runs validators in order and stops at the first rejection.
func (c *Cell[T]) validate(v T) error {
	c.mu.Lock()
	validators := c.validators.Entries()
	c.mu.Unlock()

	for _, e := range validators {
		if !e.Val(v) {
			return &errs.InvalidValueError{Validator: e.Key, Value: v}
		}
	}
	return nil
}

// commitLocked installs v and queues the transition. c.mu must be held.
func (c *Cell[T]) commitLocked(v T) {
	c.pending = append(c.pending, transition[T]{old: c.value, new: v})
	c.value = v
	c.version++
}

// deliverUnlock releases c.mu and, unless a pass is already running,
// delivers queued transitions until the queue is empty. c.mu must be held.
func (c *Cell[T]) deliverUnlock() {
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	c.mu.Unlock()

	done := false
	defer func() {
		if !done {
			// a watcher panicked; let the next commit resume delivery
			c.mu.Lock()
			c.delivering = false
			c.mu.Unlock()
		}
	}()

	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.pending = nil
			c.delivering = false
			c.mu.Unlock()
			done = true
			return
		}
		t := c.pending[0]
		c.pending[0] = transition[T]{}
		c.pending = c.pending[1:]
		watchers := c.watchers.Entries()
		c.mu.Unlock()

		for _, e := range watchers {
			e.Val(e.Key, t.old, t.new)
		}
	}
}

// defaultEqual compares scalars with == and everything else with
// reflect.DeepEqual. A NaN equals another NaN, so a selector yielding NaN
// does not count as changed. NaN nested inside a composite value is
// compared by reflect.DeepEqual and never matches.
func defaultEqual[T any](a, b T) bool {
	switch av := any(a).(type) {
	case int:
		bv, ok := any(b).(int)
		return ok && av == bv
	case int64:
		bv, ok := any(b).(int64)
		return ok && av == bv
	case float64:
		bv, ok := any(b).(float64)
		return ok && (av == bv || (math.IsNaN(av) && math.IsNaN(bv)))
	case float32:
		bv, ok := any(b).(float32)
		return ok && (av == bv || (math.IsNaN(float64(av)) && math.IsNaN(float64(bv))))
	case string:
		bv, ok := any(b).(string)
		return ok && av == bv
	case bool:
		bv, ok := any(b).(bool)
		return ok && av == bv
	default:
		return reflect.DeepEqual(a, b)
	}
}
