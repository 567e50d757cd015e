package cellstore

import (
	"reflect"

	"github.com/jpalmerr/cellstore/internal/memo"
)

// Notifiable receives change notifications for subscriptions made through
// [Store.Subscribe].
//
// Notify is called once per accepted mutation that changed the derived value
// of at least one argument tuple the notifiable subscribed with under sub.
// old and new are the whole states before and after the mutation.
//
// Notifiables are identified by interface equality, so implementations
// should be pointer types: two distinct pointers are two subscribers even if
// they point at equal values.
type Notifiable[T any] interface {
	Notify(sub string, old, new T)
}

type funcNotifiable[T any] struct {
	fn func(sub string, old, new T)
}

func (f *funcNotifiable[T]) Notify(sub string, old, new T) {
	f.fn(sub, old, new)
}

// NotifyFunc adapts fn to a [Notifiable]. Every call returns a distinct
// notifiable; keep the returned value to subscribe the same identity again.
func NotifyFunc[T any](fn func(sub string, old, new T)) Notifiable[T] {
	return &funcNotifiable[T]{fn: fn}
}

// checkNotifiable rejects values that cannot serve as an identity map key.
func checkNotifiable[T any](n Notifiable[T]) error {
	if n == nil {
		return ErrInvalidNotifiable
	}
	if !reflect.TypeOf(n).Comparable() {
		return ErrInvalidNotifiable
	}
	return nil
}

// argSet holds the distinct argument tuples one notifiable subscribed with
// under one subscription name. Tuples are deduplicated by value.
type argSet struct {
	tuples [][]any
}

// add inserts args unless an equal tuple is already present.
func (a *argSet) add(args []any) bool {
	for _, t := range a.tuples {
		if memo.ArgsEqual(t, args) {
			return false
		}
	}
	a.tuples = append(a.tuples, args)
	return true
}

// snapshot returns a copy of the tuple list.
func (a *argSet) snapshot() [][]any {
	out := make([][]any, len(a.tuples))
	copy(out, a.tuples)
	return out
}

// remove drops every tuple equal to one in consumed.
func (a *argSet) remove(consumed [][]any) {
	kept := a.tuples[:0]
	for _, t := range a.tuples {
		drop := false
		for _, c := range consumed {
			if memo.ArgsEqual(t, c) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, t)
		}
	}
	// clear the tail so dropped tuples can be collected
	for i := len(kept); i < len(a.tuples); i++ {
		a.tuples[i] = nil
	}
	a.tuples = kept
}

func (a *argSet) len() int {
	return len(a.tuples)
}

// pendingCheck is one (subscription, notifiable) pair captured for diffing.
type pendingCheck[T any] struct {
	sub      string
	selector Selector[T]
	n        Notifiable[T]
	tuples   [][]any
}

// updateSubscribers is the store's watcher on its cell. It notifies every
// notifiable whose selector output changed for any of its argument tuples,
// consuming those registrations first.
//
// The registry lock is only held while snapshotting and while clearing; the
// selectors and Notify callbacks run unlocked so they may subscribe or
// dispatch again. Tuples registered while the diff runs are not consumed.
func (s *Store[T]) updateSubscribers(_ string, old, new T) {
	s.mu.Lock()
	var checks []pendingCheck[T]
	for _, se := range s.subs.Entries() {
		reg := s.subscribers[se.Key]
		if reg == nil || reg.Len() == 0 {
			continue
		}
		for _, ne := range reg.Entries() {
			checks = append(checks, pendingCheck[T]{
				sub:      se.Key,
				selector: se.Val.fn,
				n:        ne.Key,
				tuples:   ne.Val.snapshot(),
			})
		}
	}
	s.mu.Unlock()

	var due []pendingCheck[T]
	for _, c := range checks {
		for _, args := range c.tuples {
			if !s.valueEqual(c.selector(old, args...), c.selector(new, args...)) {
				// the whole set is consumed, no need to diff the rest
				due = append(due, c)
				break
			}
		}
	}
	if len(due) == 0 {
		return
	}

	s.mu.Lock()
	for _, d := range due {
		reg := s.subscribers[d.sub]
		if reg == nil {
			continue
		}
		set, ok := reg.Get(d.n)
		if !ok {
			continue
		}
		set.remove(d.tuples)
		if set.len() == 0 {
			reg.Delete(d.n)
		}
	}
	s.mu.Unlock()

	for _, d := range due {
		s.recorder.SubscriberNotified(d.sub)
		s.logger.Debug("notifying subscriber", "subscription", d.sub, "tuples", len(d.tuples))
		d.n.Notify(d.sub, old, new)
	}
}
