package config

import (
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/cellstore"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const todoYAML = `
initial_state:
  count: 0
  done: false
  todos: [milk]
  users: {}

validators:
  - path: count
    rule: min:0
  - path: todos
    rule: maxlen:3
  - path: users
    rule: type:object

events:
  - name: inc
    op: inc
    path: count
  - name: bump
    op: inc
    path: count
    value: 10
  - name: set-count
    op: set
    path: count
  - name: add-todo
    op: append
    path: todos
  - name: drop-todo
    op: remove
    path: todos
  - name: set-user
    op: set
    path: users
  - name: patch-user
    op: merge
    path: users
  - name: delete-user
    op: delete
    path: users
  - name: toggle
    op: toggle
    path: done
  - name: clear
    op: reset
    path: todos
    value: []
  - name: replace
    op: set

subscriptions:
  - name: count
    path: count
  - name: todo
    path: todos
  - name: todo-count
    op: len
    path: todos
  - name: user
    path: users
    default: nobody
`

func buildTodoStore(t *testing.T) *cellstore.Store[any] {
	t.Helper()
	cfg, err := Parse([]byte(todoYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	st, err := BuildStore(cfg, cellstore.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("BuildStore() error = %v", err)
	}
	return st
}

func TestBuildStore_Registers(t *testing.T) {
	st := buildTodoStore(t)

	wantEvents := []string{"inc", "bump", "set-count", "add-todo", "drop-todo", "set-user",
		"patch-user", "delete-user", "toggle", "clear", "replace"}
	if got := st.Events(); !reflect.DeepEqual(got, wantEvents) {
		t.Errorf("Events() = %v, want %v", got, wantEvents)
	}
	wantSubs := []string{"count", "todo", "todo-count", "user"}
	if got := st.Subscriptions(); !reflect.DeepEqual(got, wantSubs) {
		t.Errorf("Subscriptions() = %v, want %v", got, wantSubs)
	}
}

func TestBuildStore_EventOps(t *testing.T) {
	tests := []struct {
		name  string
		steps [][]any // event name followed by args
		sub   string
		args  []any
		want  any
	}{
		{"inc default step", [][]any{{"inc"}, {"inc"}}, "count", nil, 2.0},
		{"inc by arg", [][]any{{"inc", 5}}, "count", nil, 5.0},
		{"inc configured step", [][]any{{"bump"}}, "count", nil, 10.0},
		{"set", [][]any{{"set-count", 7}}, "count", nil, 7.0},
		{"append", [][]any{{"add-todo", "eggs"}}, "todo", nil, []any{"milk", "eggs"}},
		{"remove", [][]any{{"drop-todo", "milk"}}, "todo", nil, []any{}},
		{"remove missing is a no-op", [][]any{{"drop-todo", "bread"}}, "todo", nil, []any{"milk"}},
		{"set with path args", [][]any{{"set-user", "ada", map[string]any{"age": 36}}}, "user", []any{"ada"}, map[string]any{"age": 36.0}},
		{
			"merge",
			[][]any{{"set-user", "ada", map[string]any{"age": 36}}, {"patch-user", "ada", map[string]any{"role": "admin"}}},
			"user", []any{"ada"},
			map[string]any{"age": 36.0, "role": "admin"},
		},
		{
			"delete",
			[][]any{{"set-user", "ada", "x"}, {"delete-user", "ada"}},
			"user", []any{"ada"},
			"nobody",
		},
		{"delete missing is a no-op", [][]any{{"delete-user", "bob"}}, "user", nil, map[string]any{}},
		{"reset", [][]any{{"add-todo", "eggs"}, {"clear"}}, "todo-count", nil, 0.0},
		{"get by index", [][]any{{"add-todo", "eggs"}}, "todo", []any{1}, "eggs"},
		{"missing path uses default", nil, "user", []any{"nobody-here"}, "nobody"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := buildTodoStore(t)
			for _, step := range tt.steps {
				if err := st.Dispatch(step[0].(string), step[1:]...); err != nil {
					t.Fatalf("Dispatch(%v) error = %v", step, err)
				}
			}
			got, err := st.Query(tt.sub, tt.args...)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Query(%s, %v) = %#v, want %#v", tt.sub, tt.args, got, tt.want)
			}
		})
	}
}

func TestBuildStore_Toggle(t *testing.T) {
	st := buildTodoStore(t)
	for _, want := range []bool{true, false} {
		if err := st.Dispatch("toggle"); err != nil {
			t.Fatalf("Dispatch(toggle) error = %v", err)
		}
		state := st.Read().(map[string]any)
		if state["done"] != want {
			t.Errorf("done = %v, want %v", state["done"], want)
		}
	}
}

func TestBuildStore_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		event     string
		args      []any
		wantErr   error
		validator string
	}{
		{"min rule", "inc", []any{-1}, cellstore.ErrInvalidValue, "count min:0"},
		{"append without value", "add-todo", nil, cellstore.ErrInvalidArgs, ""},
		{"inc non-number arg", "inc", []any{"two"}, cellstore.ErrInvalidArgs, ""},
		{"inc too many args", "inc", []any{1, 2}, cellstore.ErrInvalidArgs, ""},
		{"reset takes no args", "clear", []any{1}, cellstore.ErrInvalidArgs, ""},
		{"merge wants object", "patch-user", []any{"ada", 3}, cellstore.ErrInvalidArgs, ""},
		{"bad path segment", "set-user", []any{true, 1}, cellstore.ErrInvalidArgs, ""},
		{"min rule on a string", "set-count", []any{"seven"}, cellstore.ErrInvalidValue, "count min:0"},
		{"maxlen on a number", "replace", []any{map[string]any{"todos": 1}}, cellstore.ErrInvalidValue, "todos maxlen:3"},
		{"type rule", "set-user", []any{"list"}, cellstore.ErrInvalidValue, "users type:object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := buildTodoStore(t)
			before := st.Read()

			err := st.Dispatch(tt.event, tt.args...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Dispatch() error = %v, want %v", err, tt.wantErr)
			}
			if tt.validator != "" {
				var ive *cellstore.InvalidValueError
				if !errors.As(err, &ive) || ive.Validator != tt.validator {
					t.Errorf("rejected by %v, want %q", err, tt.validator)
				}
			}
			if !reflect.DeepEqual(st.Read(), before) {
				t.Errorf("state changed on a rejected dispatch")
			}
		})
	}
}

func TestBuildStore_OpFailureRejected(t *testing.T) {
	st := buildTodoStore(t)
	if err := st.Dispatch("replace", map[string]any{"todos": "x"}); err != nil {
		t.Fatalf("Dispatch(replace) error = %v", err)
	}

	err := st.Dispatch("add-todo", "eggs")
	var ive *cellstore.InvalidValueError
	if !errors.As(err, &ive) {
		t.Fatalf("Dispatch(add-todo) error = %v, want InvalidValueError", err)
	}
	if ive.Validator != OpsValidatorKey {
		t.Errorf("Validator = %q, want %q", ive.Validator, OpsValidatorKey)
	}
	if !strings.Contains(err.Error(), "append todos: value is string, not a list") {
		t.Errorf("error = %q, want the op failure reason", err.Error())
	}
}

func TestBuildStore_Notifies(t *testing.T) {
	st := buildTodoStore(t)

	var calls []string
	n := cellstore.NotifyFunc(func(sub string, _, _ any) { calls = append(calls, sub) })
	if _, err := st.Subscribe(n, "todo-count"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if _, err := st.Subscribe(n, "count"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := st.Dispatch("add-todo", "eggs"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !reflect.DeepEqual(calls, []string{"todo-count"}) {
		t.Errorf("notified %v, want [todo-count]", calls)
	}
}

func TestBuildStore_InitialStateRejected(t *testing.T) {
	cfg, err := Parse([]byte(`
initial_state:
  count: -1
validators:
  - path: count
    rule: min:0
events:
  - name: inc
    op: inc
    path: count
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	_, err = BuildStore(cfg)
	if err == nil || !strings.Contains(err.Error(), `initial_state: rejected by validator "count min:0"`) {
		t.Errorf("BuildStore() error = %v", err)
	}
}

func TestRuleValidator(t *testing.T) {
	state := map[string]any{
		"n":    5.0,
		"s":    "héllo",
		"list": []any{1.0, 2.0},
		"nil":  nil,
	}

	tests := []struct {
		path string
		rule RuleConfig
		want bool
	}{
		{"n", RuleConfig{Kind: "min", Value: "5"}, true},
		{"n", RuleConfig{Kind: "min", Value: "6"}, false},
		{"n", RuleConfig{Kind: "max", Value: "4.5"}, false},
		{"s", RuleConfig{Kind: "max", Value: "4"}, false},
		{"missing", RuleConfig{Kind: "min", Value: "1"}, true},
		{"missing", RuleConfig{Kind: "required"}, false},
		{"nil", RuleConfig{Kind: "required"}, false},
		{"n", RuleConfig{Kind: "required"}, true},
		{"s", RuleConfig{Kind: "maxlen", Value: "5"}, true},
		{"s", RuleConfig{Kind: "maxlen", Value: "4"}, false},
		{"n", RuleConfig{Kind: "maxlen", Value: "9"}, false},
		{"list", RuleConfig{Kind: "type", Value: "list"}, true},
		{"nil", RuleConfig{Kind: "type", Value: "null"}, true},
		{"n", RuleConfig{Kind: "type", Value: "string"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.path+" "+tt.rule.String(), func(t *testing.T) {
			fn := ruleValidator(ValidatorConfig{Path: tt.path, Rule: tt.rule})
			if got := fn(state); got != tt.want {
				t.Errorf("validator = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildStore_MemoCapacity(t *testing.T) {
	cfg, err := Parse([]byte(`
memo_capacity: 0
events:
  - name: inc
    op: inc
    path: count
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// caller options are applied after the configured capacity
	if _, err := BuildStore(cfg, cellstore.WithMemoCapacity(-1)); err == nil {
		t.Error("BuildStore() expected the caller's invalid option to fail")
	}
	st, err := BuildStore(cfg)
	if err != nil {
		t.Fatalf("BuildStore() error = %v", err)
	}
	if err := st.Dispatch("inc"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
}

func TestBuildFeeds(t *testing.T) {
	cfg, err := Parse([]byte(`
events:
  - name: set-price
    op: set
    path: price
feeds:
  - name: btc
    url: https://example.com/ticker
    event: set-price
    path: data.price
    timeout: 3s
    interval: 1m
    headers:
      B: "2"
      A: "1"
  - name: eth
    url: http://localhost:9000/eth
    event: set-price
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	feeds, err := BuildFeeds(cfg)
	if err != nil {
		t.Fatalf("BuildFeeds() error = %v", err)
	}
	if len(feeds) != 2 {
		t.Fatalf("len(feeds) = %d, want 2", len(feeds))
	}

	f := feeds[0]
	if f.Name() != "btc" || f.Event() != "set-price" || f.Path() != "data.price" {
		t.Errorf("feed = %s %s %s", f.Name(), f.Event(), f.Path())
	}
	if f.Timeout() != 3*time.Second || f.Interval() != time.Minute {
		t.Errorf("timeout, interval = %v, %v", f.Timeout(), f.Interval())
	}
	if !reflect.DeepEqual(f.Headers(), map[string]string{"A": "1", "B": "2"}) {
		t.Errorf("Headers() = %v", f.Headers())
	}
	if feeds[1].Timeout() != 10*time.Second {
		t.Errorf("default timeout = %v, want 10s", feeds[1].Timeout())
	}

	opts, err := ServeOptions(cfg)
	if err != nil {
		t.Fatalf("ServeOptions() error = %v", err)
	}
	if len(opts) != 4 {
		t.Errorf("len(ServeOptions()) = %d, want 4", len(opts))
	}
}

func TestMapToKeyValuePairs(t *testing.T) {
	got := mapToKeyValuePairs(map[string]string{"b": "2", "a": "1"})
	want := []string{"a", "1", "b", "2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mapToKeyValuePairs() = %v, want %v", got, want)
	}
}

func TestExampleConfig(t *testing.T) {
	cfg, err := Load("../example/store.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	st, err := BuildStore(cfg, cellstore.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("BuildStore() error = %v", err)
	}
	if got := len(st.Events()); got != 7 {
		t.Errorf("len(Events()) = %d, want 7", got)
	}
	feeds, err := BuildFeeds(cfg)
	if err != nil {
		t.Fatalf("BuildFeeds() error = %v", err)
	}
	if len(feeds) != 2 {
		t.Errorf("len(feeds) = %d, want 2", len(feeds))
	}

	if err := st.Dispatch("set-acme", -1.0); !errors.Is(err, cellstore.ErrInvalidValue) {
		t.Errorf("Dispatch(set-acme, -1) error = %v, want ErrInvalidValue", err)
	}
	if err := st.Dispatch("set-acme", 101.5); err != nil {
		t.Fatalf("Dispatch(set-acme) error = %v", err)
	}
	if v, _ := st.Query("price", "ACME"); v != 101.5 {
		t.Errorf("Query(price, ACME) = %v, want 101.5", v)
	}
}

func TestBuildStore_RejectsValidatorNameReuse(t *testing.T) {
	tests := []struct {
		name  string
		names []string
	}{
		{"ops key", []string{OpsValidatorKey}},
		{"duplicate", []string{"limits", "limits"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				InitialState: map[string]any{"count": 0.0, "name": "widget"},
				Events:       []EventConfig{{Name: "bump", Op: "inc", Path: "name"}},
			}
			for _, n := range tt.names {
				cfg.Validators = append(cfg.Validators, ValidatorConfig{
					Name: n, Path: "count", Rule: RuleConfig{Kind: "min", Value: "0"},
				})
			}

			_, err := BuildStore(cfg, cellstore.WithLogger(quietLogger()))
			if err == nil || !strings.Contains(err.Error(), "reserved or already used") {
				t.Errorf("BuildStore() error = %v, want a name reuse error", err)
			}
		})
	}
}

func TestBuildStore_OpFailureNeverCommits(t *testing.T) {
	cfg, err := Parse([]byte(`
initial_state:
  count: 0
  name: widget
validators:
  - name: count floor
    path: count
    rule: min:0
events:
  - name: bump
    op: inc
    path: name
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	st, err := BuildStore(cfg, cellstore.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("BuildStore() error = %v", err)
	}

	if err := st.Dispatch("bump"); !errors.Is(err, cellstore.ErrInvalidValue) {
		t.Fatalf("Dispatch(bump) error = %v, want ErrInvalidValue", err)
	}
	want := map[string]any{"count": 0.0, "name": "widget"}
	if got := st.Read(); !reflect.DeepEqual(got, want) {
		t.Errorf("state = %#v, want %#v", got, want)
	}
}
