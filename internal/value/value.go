// Package value implements the dynamically-typed configuration/parameter
// tree shared by component params, query params, and query results.
package value

import (
	"fmt"
	"sort"
)

// Kind tags the sum-type variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindS64
	KindU64
	KindF64
	KindString
	KindArray
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindS64:
		return "s64"
	case KindU64:
		return "u64"
	case KindF64:
		return "f64"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is an immutable-once-frozen node in the tagged-sum value tree.
// Values are mutable while under construction by a source; once handed to
// the runtime they are frozen and Append, Insert and Extend panic.
type Value struct {
	kind   Kind
	b      bool
	s64    int64
	u64    uint64
	f64    float64
	str    string
	arr    []*Value
	keys   []string // insertion order, parallel to mapv
	mapv   map[string]*Value
	frozen bool
}

func Null() *Value               { return &Value{kind: KindNull} }
func Bool(b bool) *Value         { return &Value{kind: KindBool, b: b} }
func S64(v int64) *Value         { return &Value{kind: KindS64, s64: v} }
func U64(v uint64) *Value        { return &Value{kind: KindU64, u64: v} }
func F64(v float64) *Value       { return &Value{kind: KindF64, f64: v} }
func String(s string) *Value     { return &Value{kind: KindString, str: s} }
func Array() *Value              { return &Value{kind: KindArray} }
func Map() *Value                { return &Value{kind: KindMap, mapv: make(map[string]*Value)} }

func (v *Value) Kind() Kind  { return v.kind }
func (v *Value) Frozen() bool { return v.frozen }

func (v *Value) AsBool() bool       { return v.b }
func (v *Value) AsS64() int64       { return v.s64 }
func (v *Value) AsU64() uint64      { return v.u64 }
func (v *Value) AsF64() float64     { return v.f64 }
func (v *Value) AsString() string   { return v.str }
func (v *Value) AsArray() []*Value  { return v.arr }

// Freeze recursively marks v and all its children immutable. Calling
// Freeze twice is a no-op.
func (v *Value) Freeze() {
	if v.frozen {
		return
	}
	v.frozen = true
	for _, e := range v.arr {
		e.Freeze()
	}
	for _, k := range v.keys {
		v.mapv[k].Freeze()
	}
}

// Append adds an element to an array Value. Panics if v is frozen or not
// an array — arrays are built by their owner before being frozen.
func (v *Value) Append(e *Value) {
	v.mustBeArray("append")
	v.arr = append(v.arr, e)
}

// Insert adds a key to a map Value, failing if the key already exists.
// Panics if v is frozen.
func (v *Value) Insert(key string, e *Value) error {
	v.mustBeMap("insert")
	if v.frozen {
		panic("value: insert called on frozen Value")
	}
	if _, exists := v.mapv[key]; exists {
		return fmt.Errorf("value: duplicate map key %q", key)
	}
	v.mapv[key] = e
	v.keys = append(v.keys, key)
	return nil
}

// Extend merges other into v; keys present in other overwrite v's,
// insertion order of new keys is preserved. Panics if v is frozen.
func (v *Value) Extend(other *Value) {
	v.mustBeMap("extend")
	other.mustBeMap("extend")
	if v.frozen {
		panic("value: extend called on frozen Value")
	}
	for _, k := range other.keys {
		if _, exists := v.mapv[k]; !exists {
			v.keys = append(v.keys, k)
		}
		v.mapv[k] = other.mapv[k]
	}
}

// Get looks up a map key, returning (nil, false) if absent.
func (v *Value) Get(key string) (*Value, bool) {
	v.mustBeMap("get")
	e, ok := v.mapv[key]
	return e, ok
}

// Keys returns the map's keys in insertion order.
func (v *Value) Keys() []string {
	v.mustBeMap("keys")
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

func (v *Value) mustBeArray(op string) {
	if v.kind != KindArray {
		panic(fmt.Sprintf("value: %s called on non-array Value (kind=%s)", op, v.kind))
	}
	if v.frozen {
		panic(fmt.Sprintf("value: %s called on frozen Value", op))
	}
}

func (v *Value) mustBeMap(op string) {
	if v.kind != KindMap {
		panic(fmt.Sprintf("value: %s called on non-map Value (kind=%s)", op, v.kind))
	}
}

// Copy returns a deep copy of v. Freezing the copy never affects the
// original, and the copy starts unfrozen regardless of v's state so
// callers can safely mutate a copy of a frozen default.
func (v *Value) Copy() *Value {
	switch v.kind {
	case KindNull:
		return Null()
	case KindBool:
		return Bool(v.b)
	case KindS64:
		return S64(v.s64)
	case KindU64:
		return U64(v.u64)
	case KindF64:
		return F64(v.f64)
	case KindString:
		return String(v.str)
	case KindArray:
		out := Array()
		for _, e := range v.arr {
			out.arr = append(out.arr, e.Copy())
		}
		return out
	case KindMap:
		out := Map()
		for _, k := range v.keys {
			out.keys = append(out.keys, k)
			out.mapv[k] = v.mapv[k].Copy()
		}
		return out
	default:
		return Null()
	}
}

// Equals performs a deep comparison: array comparison is order-sensitive,
// map comparison is based on key sets.
func (v *Value) Equals(other *Value) bool {
	if v == nil || other == nil {
		return v == other
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindS64:
		return v.s64 == other.s64
	case KindU64:
		return v.u64 == other.u64
	case KindF64:
		return v.f64 == other.f64
	case KindString:
		return v.str == other.str
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equals(other.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.keys) != len(other.keys) {
			return false
		}
		for k, e := range v.mapv {
			oe, ok := other.mapv[k]
			if !ok || !e.Equals(oe) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// SortedKeys returns m's keys in ascending order, for deterministic
// output when iteration order doesn't matter semantically.
func SortedKeys(m map[string]*Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
