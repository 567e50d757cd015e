package cellstore

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

type todos struct {
	Items []string
	Done  map[string]bool
}

func newTodoStore(t *testing.T) *Store[todos] {
	t.Helper()
	s, err := New(todos{Done: map[string]bool{}}, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	RegEventArg(s, "add", func(st todos, item string) todos {
		items := append(append([]string(nil), st.Items...), item)
		return todos{Items: items, Done: st.Done}
	})
	RegSubValue(s, "count", func(st todos) int { return len(st.Items) })
	RegSubArg(s, "item", func(st todos, i int) string {
		if i < 0 || i >= len(st.Items) {
			return ""
		}
		return st.Items[i]
	})
	return s
}

func TestRegEventArg(t *testing.T) {
	s := newTodoStore(t)

	if err := s.Dispatch("add", "milk"); err != nil {
		t.Fatalf("Dispatch(add, milk) error = %v", err)
	}
	if got := s.Read().Items; len(got) != 1 || got[0] != "milk" {
		t.Errorf("Items = %v, want [milk]", got)
	}
}

func TestRegEventArg_RejectsBadArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []any
		wantErr string
	}{
		{"no args", nil, "want 1 argument, got 0"},
		{"too many", []any{"a", "b"}, "want 1 argument, got 2"},
		{"wrong type", []any{42}, "want string, got int"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTodoStore(t)

			err := s.Dispatch("add", tt.args...)
			if !errors.Is(err, ErrInvalidArgs) {
				t.Fatalf("Dispatch() error = %v, want ErrInvalidArgs", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Dispatch() error = %v, want error containing %q", err, tt.wantErr)
			}
			if len(s.Read().Items) != 0 {
				t.Error("state changed on rejected dispatch")
			}
		})
	}
}

func TestSubscribeValue(t *testing.T) {
	s := newTodoStore(t)
	obs := &observer[todos]{}

	n, err := SubscribeValue[int](s, obs, "count")
	if err != nil {
		t.Fatalf("SubscribeValue() error = %v", err)
	}
	if n != 0 {
		t.Errorf("SubscribeValue() = %d, want 0", n)
	}

	if err := s.Dispatch("add", "eggs"); err != nil {
		t.Fatal(err)
	}
	if len(obs.Calls()) != 1 {
		t.Errorf("Notify called %d times, want 1", len(obs.Calls()))
	}

	item, err := QueryValue[string](s, "item", 0)
	if err != nil {
		t.Fatalf("QueryValue() error = %v", err)
	}
	if item != "eggs" {
		t.Errorf("QueryValue(item, 0) = %q, want eggs", item)
	}
}

func TestSubscribeValue_Errors(t *testing.T) {
	s := newTodoStore(t)
	obs := &observer[todos]{}

	if _, err := SubscribeValue[int](s, obs, "count", "extra"); !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("SubscribeValue(count, extra) error = %v, want ErrInvalidArgs", err)
	}
	if _, err := SubscribeValue[string](s, obs, "item", "zero"); !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("SubscribeValue(item, zero) error = %v, want ErrInvalidArgs", err)
	}
	if s.Pending("count")+s.Pending("item") != 0 {
		t.Error("rejected subscribe registered a tuple")
	}

	_, err := QueryValue[string](s, "count")
	if err == nil || !strings.Contains(err.Error(), "yields int, not string") {
		t.Errorf("QueryValue[string](count) error = %v, want type mismatch", err)
	}
	if _, err := QueryValue[int](s, "missing"); !errors.Is(err, ErrUnknownSubscription) {
		t.Errorf("QueryValue(missing) error = %v, want ErrUnknownSubscription", err)
	}
}

func TestAssertValue_Nil(t *testing.T) {
	got, err := assertValue[[]string]("list", nil)
	if err != nil {
		t.Fatalf("assertValue(nil) error = %v", err)
	}
	if got != nil {
		t.Errorf("assertValue(nil) = %v, want nil", got)
	}
}

func TestRegEventChecked(t *testing.T) {
	s := newTodoStore(t)
	calls := 0
	s.RegEventChecked("rename", func(st todos, args ...any) todos {
		calls++
		items := append([]string(nil), st.Items...)
		items[0] = args[0].(string)
		return todos{Items: items, Done: st.Done}
	}, func(args []any) error {
		if len(args) != 1 {
			return errors.New("want a name")
		}
		if _, ok := args[0].(string); !ok {
			return errors.New("name must be a string")
		}
		return nil
	})

	if err := s.Dispatch("add", "milk"); err != nil {
		t.Fatalf("Dispatch(add) error = %v", err)
	}

	err := s.Dispatch("rename", 7)
	if !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("Dispatch(rename, 7) error = %v, want ErrInvalidArgs", err)
	}
	if !strings.Contains(err.Error(), "name must be a string") {
		t.Errorf("error = %v, want check message", err)
	}
	if calls != 0 {
		t.Errorf("reducer ran %d times for rejected args", calls)
	}

	if err := s.Dispatch("rename", "eggs"); err != nil {
		t.Fatalf("Dispatch(rename, eggs) error = %v", err)
	}
	if got := s.Read().Items[0]; got != "eggs" {
		t.Errorf("Items[0] = %q, want eggs", got)
	}
}

func TestRegSubChecked(t *testing.T) {
	s := newTodoStore(t)
	s.RegSubChecked("prefixed", func(st todos, args ...any) any {
		return args[0].(string) + strings.Join(st.Items, ",")
	}, func(args []any) error {
		if len(args) != 1 {
			// already wrapped errors pass through unchanged
			return fmt.Errorf("%w: want a prefix", ErrInvalidArgs)
		}
		return nil
	})

	if _, err := s.Query("prefixed"); !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("Query(prefixed) error = %v, want ErrInvalidArgs", err)
	} else if strings.Count(err.Error(), ErrInvalidArgs.Error()) != 1 {
		t.Errorf("error = %v, want ErrInvalidArgs once", err)
	}

	if err := s.Dispatch("add", "milk"); err != nil {
		t.Fatalf("Dispatch(add) error = %v", err)
	}
	v, err := s.Query("prefixed", "> ")
	if err != nil {
		t.Fatalf("Query(prefixed) error = %v", err)
	}
	if v != "> milk" {
		t.Errorf("Query(prefixed) = %v, want \"> milk\"", v)
	}
}

func TestRegEventChecked_NilCheck(t *testing.T) {
	s := newTodoStore(t)
	s.RegEventChecked("clear", func(st todos, args ...any) todos {
		return todos{Done: st.Done}
	}, nil)

	if err := s.Dispatch("add", "milk"); err != nil {
		t.Fatalf("Dispatch(add) error = %v", err)
	}
	if err := s.Dispatch("clear", "anything", 1); err != nil {
		t.Fatalf("Dispatch(clear) error = %v", err)
	}
	if got := len(s.Read().Items); got != 0 {
		t.Errorf("len(Items) = %d, want 0", got)
	}
}
