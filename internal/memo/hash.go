package memo

import (
	"encoding/binary"
	"math"
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// maxDepth bounds the reflection walk so self-referencing values terminate.
// Values nested deeper than this hash identically past the cut-off, which
// only costs a DeepEqual comparison on collision.
const maxDepth = 64

// kind tags keep values of different shapes from hashing alike.
const (
	tagNil byte = iota
	tagBool
	tagInt
	tagUint
	tagFloat
	tagComplex
	tagString
	tagSeq
	tagMap
	tagStruct
	tagPtr
	tagIface
	tagOpaque
	tagDeep
)

// Hash returns a structural hash of vals.
//
// Structurally equal inputs (in the reflect.DeepEqual sense) always produce
// the same hash. Map entries are combined order-independently. Unexported
// struct fields are included.
func Hash(vals ...any) uint64 {
	h := newHasher()
	for _, v := range vals {
		h.walk(reflect.ValueOf(v), 0)
	}
	return h.d.Sum64()
}

// inputKey hashes a (state, args) pair. A nil and an empty args tuple hash
// alike because they compare equal.
func inputKey(state any, args []any) uint64 {
	h := newHasher()
	h.walk(reflect.ValueOf(state), 0)
	h.tag(tagSeq)
	h.u64(uint64(len(args)))
	for _, a := range args {
		h.walk(reflect.ValueOf(a), 0)
	}
	return h.d.Sum64()
}

type hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func newHasher() *hasher {
	return &hasher{d: xxhash.New()}
}

func (h *hasher) tag(t byte) {
	h.buf[0] = t
	_, _ = h.d.Write(h.buf[:1])
}

func (h *hasher) u64(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.d.Write(h.buf[:])
}

func (h *hasher) str(s string) {
	h.u64(uint64(len(s)))
	_, _ = h.d.WriteString(s)
}

func (h *hasher) float(f float64) {
	if f == 0 {
		f = 0 // fold -0 into +0, they compare equal
	}
	h.u64(math.Float64bits(f))
}

func (h *hasher) walk(v reflect.Value, depth int) {
	if !v.IsValid() {
		h.tag(tagNil)
		return
	}
	if depth > maxDepth {
		h.tag(tagDeep)
		return
	}

	switch v.Kind() {
	case reflect.Bool:
		h.tag(tagBool)
		if v.Bool() {
			h.u64(1)
		} else {
			h.u64(0)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		h.tag(tagInt)
		h.u64(uint64(v.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		h.tag(tagUint)
		h.u64(v.Uint())
	case reflect.Float32, reflect.Float64:
		h.tag(tagFloat)
		h.float(v.Float())
	case reflect.Complex64, reflect.Complex128:
		h.tag(tagComplex)
		c := v.Complex()
		h.float(real(c))
		h.float(imag(c))
	case reflect.String:
		h.tag(tagString)
		h.str(v.String())
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			h.tag(tagNil)
			return
		}
		h.tag(tagSeq)
		h.u64(uint64(v.Len()))
		for i := 0; i < v.Len(); i++ {
			h.walk(v.Index(i), depth+1)
		}
	case reflect.Map:
		if v.IsNil() {
			h.tag(tagNil)
			return
		}
		h.tag(tagMap)
		h.u64(uint64(v.Len()))
		// sum of per-entry hashes is independent of iteration order
		var sum uint64
		iter := v.MapRange()
		for iter.Next() {
			eh := newHasher()
			eh.walk(iter.Key(), depth+1)
			eh.walk(iter.Value(), depth+1)
			sum += eh.d.Sum64()
		}
		h.u64(sum)
	case reflect.Struct:
		h.tag(tagStruct)
		h.str(v.Type().String())
		for i := 0; i < v.NumField(); i++ {
			h.walk(v.Field(i), depth+1)
		}
	case reflect.Pointer:
		if v.IsNil() {
			h.tag(tagNil)
			return
		}
		h.tag(tagPtr)
		h.walk(v.Elem(), depth+1)
	case reflect.Interface:
		if v.IsNil() {
			h.tag(tagNil)
			return
		}
		h.tag(tagIface)
		h.str(v.Elem().Type().String())
		h.walk(v.Elem(), depth+1)
	default:
		// func, chan, unsafe pointer: identity is all DeepEqual can compare
		h.tag(tagOpaque)
		h.u64(uint64(v.Pointer()))
	}
}
