package cellstore

import (
	"errors"
	"fmt"
	"reflect"
)

// ArgsCheck inspects call arguments before a reducer or selector runs.
type ArgsCheck func(args []any) error

// RegEventChecked is [Store.RegEvent] with check run on the arguments
// before fn. Dispatch fails with [ErrInvalidArgs] when check returns an
// error, and fn never sees those arguments.
func (s *Store[T]) RegEventChecked(event string, fn Reducer[T], check ArgsCheck) {
	s.regEvent(event, fn, wrapCheck(check))
}

// RegSubChecked is [Store.RegSub] with check run on the arguments before
// fn. Subscribe and Query fail with [ErrInvalidArgs] when check returns an
// error.
func (s *Store[T]) RegSubChecked(sub string, fn Selector[T], check ArgsCheck) {
	s.regSub(sub, fn, wrapCheck(check))
}

func wrapCheck(check ArgsCheck) func([]any) error {
	if check == nil {
		return nil
	}
	return func(args []any) error {
		err := check(args)
		if err == nil || errors.Is(err, ErrInvalidArgs) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
}

// RegEventArg registers a reducer that takes exactly one argument of type A.
//
// Dispatch fails with [ErrInvalidArgs] if called with any other number of
// arguments or with an argument that is not an A; the reducer never sees a
// mistyped call.
//
//	cellstore.RegEventArg(st, "inc", func(s Counter, n int) Counter {
//	    return Counter{Count: s.Count + n}
//	})
func RegEventArg[T, A any](s *Store[T], event string, fn func(state T, arg A) T) {
	s.regEvent(event, func(state T, args ...any) T {
		return fn(state, args[0].(A))
	}, checkOneArg[A])
}

// RegSubValue registers a selector that takes no arguments.
func RegSubValue[T, V any](s *Store[T], sub string, fn func(state T) V) {
	s.regSub(sub, func(state T, args ...any) any {
		return fn(state)
	}, checkNoArgs)
}

// RegSubArg registers a selector that takes exactly one argument of type A.
func RegSubArg[T, A, V any](s *Store[T], sub string, fn func(state T, arg A) V) {
	s.regSub(sub, func(state T, args ...any) any {
		return fn(state, args[0].(A))
	}, checkOneArg[A])
}

// SubscribeValue is [Store.Subscribe] with the derived value asserted to V.
func SubscribeValue[V, T any](s *Store[T], n Notifiable[T], sub string, args ...any) (V, error) {
	v, err := s.Subscribe(n, sub, args...)
	if err != nil {
		var zero V
		return zero, err
	}
	return assertValue[V](sub, v)
}

// QueryValue is [Store.Query] with the derived value asserted to V.
func QueryValue[V, T any](s *Store[T], sub string, args ...any) (V, error) {
	v, err := s.Query(sub, args...)
	if err != nil {
		var zero V
		return zero, err
	}
	return assertValue[V](sub, v)
}

func assertValue[V any](sub string, v any) (V, error) {
	var zero V
	if v == nil {
		return zero, nil
	}
	out, ok := v.(V)
	if !ok {
		return zero, fmt.Errorf("subscription %q yields %T, not %s", sub, v, typeName[V]())
	}
	return out, nil
}

func checkNoArgs(args []any) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: want no arguments, got %d", ErrInvalidArgs, len(args))
	}
	return nil
}

func checkOneArg[A any](args []any) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: want 1 argument, got %d", ErrInvalidArgs, len(args))
	}
	if _, ok := args[0].(A); !ok {
		return fmt.Errorf("%w: want %s, got %T", ErrInvalidArgs, typeName[A](), args[0])
	}
	return nil
}

func typeName[A any]() string {
	return reflect.TypeOf((*A)(nil)).Elem().String()
}
