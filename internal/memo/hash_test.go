package memo

import (
	"testing"
)

type point struct {
	X, Y int
	tag  string
}

func TestHash_StructurallyEqualValues(t *testing.T) {
	tests := []struct {
		name string
		a, b any
	}{
		{"ints", 42, 42},
		{"strings", "count", "count"},
		{"slices", []any{1, "a", true}, []any{1, "a", true}},
		{"nested maps", map[string]any{"a": map[string]any{"b": []int{1, 2}}}, map[string]any{"a": map[string]any{"b": []int{1, 2}}}},
		{"structs with unexported fields", point{1, 2, "p"}, point{1, 2, "p"}},
		{"pointers to equal values", &point{X: 1}, &point{X: 1}},
		{"negative zero", 0.0, negZero()},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Hash(tt.a) != Hash(tt.b) {
				t.Errorf("Hash(%v) != Hash(%v)", tt.a, tt.b)
			}
		})
	}
}

func negZero() float64 {
	z := 0.0
	return -z
}

func TestHash_MapOrderIndependent(t *testing.T) {
	a := map[string]int{}
	b := map[string]int{}
	keys := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta"}
	for i, k := range keys {
		a[k] = i
	}
	for i := len(keys) - 1; i >= 0; i-- {
		b[keys[i]] = i
	}

	for i := 0; i < 20; i++ {
		if Hash(a) != Hash(b) {
			t.Fatal("map hash depends on iteration order")
		}
	}
}

func TestHash_DistinguishesValues(t *testing.T) {
	tests := []struct {
		name string
		a, b any
	}{
		{"different ints", 1, 2},
		{"int vs string", 1, "1"},
		{"different slice lengths", []int{1}, []int{1, 1}},
		{"map value differs", map[string]int{"a": 1}, map[string]int{"a": 2}},
		{"map keys swapped", map[string]int{"a": 1, "b": 2}, map[string]int{"a": 2, "b": 1}},
		{"struct field differs", point{X: 1}, point{X: 2}},
		{"nil vs empty slice", []int(nil), []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Hash(tt.a) == Hash(tt.b) {
				t.Errorf("Hash(%v) == Hash(%v), want different", tt.a, tt.b)
			}
		})
	}
}

func TestHash_SelfReferenceTerminates(t *testing.T) {
	m := map[string]any{}
	m["self"] = m

	// must not recurse forever
	_ = Hash(m)
}

func TestInputKey_NilAndEmptyArgs(t *testing.T) {
	if inputKey(1, nil) != inputKey(1, []any{}) {
		t.Error("nil and empty args should hash alike")
	}
	if inputKey(1, []any{2}) == inputKey(1, []any{3}) {
		t.Error("different args should hash differently")
	}
}
