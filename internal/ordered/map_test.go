package ordered

import (
	"reflect"
	"testing"
)

func TestMap_InsertionOrder(t *testing.T) {
	m := New[string, int]()
	m.Set("c", 3)
	m.Set("a", 1)
	m.Set("b", 2)

	if got, want := m.Keys(), []string{"c", "a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	if got, want := m.Values(), []int{3, 1, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("Values() = %v, want %v", got, want)
	}
}

func TestMap_ReplaceKeepsPosition(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)

	if replaced := m.Set("a", 10); !replaced {
		t.Error("Set() on existing key should report replaced")
	}

	if got, want := m.Keys(), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	if v, _ := m.Get("a"); v != 10 {
		t.Errorf("Get(a) = %d, want 10", v)
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}

func TestMap_Delete(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)

	if !m.Delete("b") {
		t.Fatal("Delete(b) = false, want true")
	}
	if m.Delete("missing") {
		t.Error("Delete(missing) = true, want false")
	}

	if got, want := m.Keys(), []string{"a", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	// index must be rebuilt after delete
	if v, ok := m.Get("c"); !ok || v != 3 {
		t.Errorf("Get(c) = %d, %v, want 3, true", v, ok)
	}
	m.Set("d", 4)
	if v, _ := m.Get("d"); v != 4 {
		t.Errorf("Get(d) = %d, want 4", v)
	}
}

func TestMap_MoveToBack(t *testing.T) {
	m := New[string, int]()
	m.Set("internal", 0)
	m.Set("user", 1)

	if !m.MoveToBack("internal") {
		t.Fatal("MoveToBack() = false, want true")
	}
	if got, want := m.Keys(), []string{"user", "internal"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	if m.MoveToBack("missing") {
		t.Error("MoveToBack(missing) = true, want false")
	}
}

func TestMap_EntriesDetached(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)

	entries := m.Entries()
	m.Delete("a")
	m.Set("z", 26)

	if len(entries) != 2 || entries[0].Key != "a" || entries[1].Val != 2 {
		t.Errorf("Entries() snapshot changed after mutation: %v", entries)
	}
}

func TestMap_GetMissing(t *testing.T) {
	m := New[string, *int]()
	v, ok := m.Get("nope")
	if ok || v != nil {
		t.Errorf("Get(nope) = %v, %v, want nil, false", v, ok)
	}
}
