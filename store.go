package cellstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jpalmerr/cellstore/internal/memo"
	"github.com/jpalmerr/cellstore/internal/ordered"
)

// SubscribersWatcherKey is the key of the watcher a [Store] installs on its
// cell to drive notifications. Registering another watcher under this key
// through [Store.AddWatcher] replaces it and silences every subscriber.
const SubscribersWatcherKey = "update_subscribers"

// Selector derives a value from the state and call arguments. Selectors must
// be pure; their results are memoized and diffed to decide who to notify.
type Selector[T any] func(state T, args ...any) any

type eventEntry[T any] struct {
	fn    Reducer[T]
	check func(args []any) error
}

type subEntry[T any] struct {
	fn    Selector[T]
	check func(args []any) error
}

// Store is the single source of truth for application state of type T.
//
// A Store owns one [Cell]. State changes only through named events, each
// handled by a registered [Reducer]; state is observed through named
// subscriptions, each computed by a registered [Selector]. A notifiable that
// subscribes is told once when its derived value changes and must subscribe
// again to hear about later changes.
//
// The typical lifecycle is:
//
//	st, _ := cellstore.New(Counter{})
//	st.RegEvent("inc", func(s Counter, args ...any) Counter {
//	    return Counter{Count: s.Count + args[0].(int)}
//	})
//	st.RegSub("count", func(s Counter, args ...any) any { return s.Count })
//
//	v, _ := st.Subscribe(view, "count") // 0, view registered once
//	_ = st.Dispatch("inc", 5)           // view.Notify("count", {0}, {5})
//
// All methods are safe for concurrent use. Reducers, selectors and
// validators run on the calling goroutine with no store lock held. Watchers
// and Notify callbacks also run with no lock held, one transition at a time
// and in commit order, on whichever goroutine is delivering; they may
// dispatch or subscribe again, and a dispatch made from Notify is delivered
// after the current transition finishes.
type Store[T any] struct {
	cell         *Cell[T]
	logger       *slog.Logger
	tracer       trace.Tracer
	recorder     Recorder
	memoCapacity int
	valueEqual   func(a, b any) bool

	mu          sync.Mutex
	events      *ordered.Map[string, eventEntry[T]]
	subs        *ordered.Map[string, subEntry[T]]
	subscribers map[string]*ordered.Map[Notifiable[T], *argSet]
}

// New creates a [Store] holding initial.
//
// Defaults:
//   - Logger: slog.Default()
//   - Tracer: the global OpenTelemetry tracer provider (no-op unless set)
//   - Memo capacity: 128 input pairs per reducer or selector
//
// Returns an error if any option is invalid.
func New[T any](initial T, opts ...Option) (*Store[T], error) {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	s := &Store[T]{
		logger:       cfg.logger,
		tracer:       cfg.tracer,
		recorder:     cfg.recorder,
		memoCapacity: cfg.memoCapacity,
		valueEqual:   cfg.valueEqual,
		events:       ordered.New[string, eventEntry[T]](),
		subs:         ordered.New[string, subEntry[T]](),
		subscribers:  make(map[string]*ordered.Map[Notifiable[T], *argSet]),
	}
	s.cell = NewCell(initial)
	s.cell.onRetry = func() {
		s.recorder.UpdateRetried()
		s.logger.Debug("update retried, state changed during reducer")
	}
	s.cell.AddWatcher(SubscribersWatcherKey, s.updateSubscribers)
	return s, nil
}

// Read returns the current state.
func (s *Store[T]) Read() T {
	return s.cell.Read()
}

// RegEvent registers fn as the reducer for event, silently replacing any
// reducer already registered under that name. fn is memoized by the value of
// (state, args) and must be pure.
func (s *Store[T]) RegEvent(event string, fn Reducer[T]) {
	s.regEvent(event, fn, nil)
}

func (s *Store[T]) regEvent(event string, fn Reducer[T], check func([]any) error) {
	wrapped := memo.Wrap[T, T](memo.NewCache[T](s.memoCapacity), fn)

	s.mu.Lock()
	replaced := s.events.Set(event, eventEntry[T]{fn: wrapped, check: check})
	s.mu.Unlock()

	s.logger.Debug("event registered", "event", event, "replaced", replaced)
}

// RegSub registers fn as the selector for sub, silently replacing any
// selector already registered under that name. fn is memoized by the value
// of (state, args) and must be pure.
func (s *Store[T]) RegSub(sub string, fn Selector[T]) {
	s.regSub(sub, fn, nil)
}

func (s *Store[T]) regSub(sub string, fn Selector[T], check func([]any) error) {
	wrapped := memo.Wrap[T, any](memo.NewCache[any](s.memoCapacity), fn)

	s.mu.Lock()
	replaced := s.subs.Set(sub, subEntry[T]{fn: wrapped, check: check})
	s.mu.Unlock()

	s.logger.Debug("subscription registered", "subscription", sub, "replaced", replaced)
}

// Dispatch applies the reducer registered for event to the state.
//
// This is the only way to change a store's state. The reducer runs through
// [Cell.Update]: the result is validated, committed optimistically (the
// reducer is re-run if the state changed while it ran), and then watchers
// and subscribers are notified before Dispatch returns.
//
// Returns an error matching [ErrUnknownEvent] if no reducer is registered,
// [ErrInvalidArgs] if a typed reducer rejects args, or [ErrInvalidValue] if
// the new state fails validation. The state is unchanged on error.
func (s *Store[T]) Dispatch(event string, args ...any) error {
	return s.DispatchContext(context.Background(), event, args...)
}

// DispatchContext is [Store.Dispatch] with a parent context for tracing.
// The context is not used for cancellation: a dispatch always runs to
// completion.
func (s *Store[T]) DispatchContext(ctx context.Context, event string, args ...any) error {
	_, span := s.tracer.Start(ctx, "cellstore.dispatch",
		trace.WithAttributes(
			attribute.String("cellstore.event", event),
			attribute.Int("cellstore.arg_count", len(args)),
		),
	)
	defer span.End()

	start := time.Now()
	err := s.dispatch(event, args)
	elapsed := time.Since(start)
	s.recorder.EventDispatched(event, elapsed, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Debug("dispatch rejected", "event", event, "error", err)
		return err
	}
	span.SetStatus(codes.Ok, "")
	s.logger.Debug("event dispatched", "event", event, "duration_us", elapsed.Microseconds())
	return nil
}

func (s *Store[T]) dispatch(event string, args []any) error {
	s.mu.Lock()
	e, ok := s.events.Get(event)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	if e.check != nil {
		if err := e.check(args); err != nil {
			return fmt.Errorf("event %q: %w", event, err)
		}
	}
	if err := s.cell.Update(e.fn, args...); err != nil {
		return fmt.Errorf("event %q: %w", event, err)
	}
	return nil
}

// Subscribe registers n for one notification on sub and returns the current
// derived value.
//
// args is added to the set of argument tuples n holds under sub; a tuple
// equal by value to one already held is not added twice. After the next
// mutation that changes the selector output for any held tuple, n is
// notified once and its whole set for sub is consumed. Call Subscribe again
// to keep observing.
//
// Returns an error matching [ErrUnknownSubscription] if no selector is
// registered, [ErrInvalidArgs] if a typed selector rejects args, or
// [ErrInvalidNotifiable] if n cannot be used as an identity key. Nothing is
// registered on error.
func (s *Store[T]) Subscribe(n Notifiable[T], sub string, args ...any) (any, error) {
	if err := checkNotifiable(n); err != nil {
		return nil, err
	}
	args = append([]any(nil), args...)

	e, err := s.lookupSub(sub, args)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	reg := s.subscribers[sub]
	if reg == nil {
		reg = ordered.New[Notifiable[T], *argSet]()
		s.subscribers[sub] = reg
	}
	set, ok := reg.Get(n)
	if !ok {
		set = &argSet{}
		reg.Set(n, set)
	}
	added := set.add(args)
	s.mu.Unlock()

	s.logger.Debug("subscribed", "subscription", sub, "new_tuple", added)
	return e.fn(s.cell.Read(), args...), nil
}

// Query returns the current derived value of sub without registering a
// subscriber.
func (s *Store[T]) Query(sub string, args ...any) (any, error) {
	e, err := s.lookupSub(sub, args)
	if err != nil {
		return nil, err
	}
	return e.fn(s.cell.Read(), args...), nil
}

// lookupSub finds sub and runs its argument check outside the lock.
func (s *Store[T]) lookupSub(sub string, args []any) (subEntry[T], error) {
	s.mu.Lock()
	e, ok := s.subs.Get(sub)
	s.mu.Unlock()
	if !ok {
		return e, fmt.Errorf("%w: %q", ErrUnknownSubscription, sub)
	}
	if e.check != nil {
		if err := e.check(args); err != nil {
			return e, fmt.Errorf("subscription %q: %w", sub, err)
		}
	}
	return e, nil
}

// Forget drops every pending registration held by n and returns how many
// argument tuples were dropped. Use it when a notifiable goes away before
// its subscriptions fire.
func (s *Store[T]) Forget(n Notifiable[T]) int {
	if checkNotifiable(n) != nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for _, reg := range s.subscribers {
		if set, ok := reg.Get(n); ok {
			dropped += set.len()
			reg.Delete(n)
		}
	}
	return dropped
}

// Pending returns the number of argument tuples waiting for a notification
// under sub, across all notifiables.
func (s *Store[T]) Pending(sub string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := s.subscribers[sub]
	if reg == nil {
		return 0
	}
	total := 0
	for _, set := range reg.Values() {
		total += set.len()
	}
	return total
}

// Events returns registered event names in registration order.
func (s *Store[T]) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.Keys()
}

// Subscriptions returns registered subscription names in registration order.
func (s *Store[T]) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs.Keys()
}

// AddValidator registers a validator on the store's cell. See
// [Cell.AddValidator].
func (s *Store[T]) AddValidator(key string, fn Validator[T]) {
	s.cell.AddValidator(key, fn)
}

// AddWatcher registers a watcher on the store's cell. See [Cell.AddWatcher].
//
// The subscriber watcher is kept last, so user watchers observe a
// transition before any Notify callback runs. Using [SubscribersWatcherKey]
// as key replaces the subscriber watcher.
func (s *Store[T]) AddWatcher(key string, fn Watcher[T]) {
	s.cell.AddWatcher(key, fn)
	if key != SubscribersWatcherKey {
		s.cell.moveWatcherToBack(SubscribersWatcherKey)
	}
}
