package cellstore

import (
	"reflect"
	"sync"

	"github.com/jpalmerr/cellstore/internal/ordered"
)

// ObserversWatcherKey is the watcher a [ReactiveCell] registers to tell its
// observers about changes.
const ObserversWatcherKey = "notify_observers"

// Observer is told about every change of a [ReactiveCell] it observes.
//
// Observers are identified by interface equality, like [Notifiable], so
// implementations should be pointer types.
type Observer[T any] interface {
	Changed(old, new T)
}

type funcObserver[T any] struct {
	fn func(old, new T)
}

func (f *funcObserver[T]) Changed(old, new T) {
	f.fn(old, new)
}

// ObserverFunc adapts fn to an [Observer]. Every call returns a distinct
// observer; keep the returned value to unobserve it later.
func ObserverFunc[T any](fn func(old, new T)) Observer[T] {
	return &funcObserver[T]{fn: fn}
}

// ReactiveCell is a [Cell] whose observers stay registered.
//
// Unlike a store subscription, which is consumed by its notification, an
// observer registered with [ReactiveCell.Observe] hears about every later
// change until it is removed with [ReactiveCell.Unobserve]. Mutations that
// leave the value equal to the previous one (by the cell's equality, see
// [WithEqual]) notify nobody.
//
//	rc := cellstore.NewReactiveCell(Theme{Dark: false})
//	v, _ := rc.Observe(view) // view.Changed on every real change
//	_ = rc.Set(Theme{Dark: true})
type ReactiveCell[T any] struct {
	*Cell[T]

	mu        sync.Mutex
	observers *ordered.Map[Observer[T], struct{}]
}

// NewReactiveCell creates a [ReactiveCell] holding initial. Observers are
// told after the watchers given in opts.
func NewReactiveCell[T any](initial T, opts ...CellOption[T]) *ReactiveCell[T] {
	r := &ReactiveCell[T]{
		Cell:      NewCell(initial, opts...),
		observers: ordered.New[Observer[T], struct{}](),
	}
	r.Cell.AddWatcher(ObserversWatcherKey, r.notifyObservers)
	return r
}

// Observe registers o and returns the current value. Observing twice with
// the same observer registers it once.
//
// Returns [ErrInvalidNotifiable] if o is nil or not comparable.
func (r *ReactiveCell[T]) Observe(o Observer[T]) (T, error) {
	if o == nil || !reflect.TypeOf(o).Comparable() {
		var zero T
		return zero, ErrInvalidNotifiable
	}

	r.mu.Lock()
	r.observers.Set(o, struct{}{})
	r.mu.Unlock()
	return r.Read(), nil
}

// Unobserve removes o. Returns false if o was not observing.
func (r *ReactiveCell[T]) Unobserve(o Observer[T]) bool {
	if o == nil || !reflect.TypeOf(o).Comparable() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.observers.Delete(o)
}

// Observers returns the number of registered observers.
func (r *ReactiveCell[T]) Observers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.observers.Len()
}

func (r *ReactiveCell[T]) notifyObservers(_ string, old, new T) {
	if r.Cell.equal(old, new) {
		return
	}

	r.mu.Lock()
	observers := r.observers.Keys()
	r.mu.Unlock()

	for _, o := range observers {
		o.Changed(old, new)
	}
}
