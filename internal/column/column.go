// Package column implements the immutable column-bundle and row-view
// model: a shared-by-reference set of typed columns plus a
// cheap, value-copyable view that layers selection and ordering onto it.
package column

import "sync/atomic"

// KeyID identifies a registry key. KeyID 1 is the row identifier.
type KeyID int64

// DebugCounters tracks copies that break the zero-copy guarantee, shared
// by reference across every bundle derived from a common ancestor.
type DebugCounters struct {
	materializations atomic.Int64
}

// RecordMaterialization increments the shared materialization counter.
func (c *DebugCounters) RecordMaterialization() {
	if c != nil {
		c.materializations.Add(1)
	}
}

// Materializations returns the number of recorded materializations.
func (c *DebugCounters) Materializations() int64 {
	if c == nil {
		return 0
	}
	return c.materializations.Load()
}

// FloatColumn is a dense, co-allocated {values, valid} pair.
type FloatColumn struct {
	Values []float64
	Valid  []bool
}

// Get returns the value at i and whether it is valid (non-null).
func (c *FloatColumn) Get(i int) (float64, bool) {
	if c.Valid != nil && !c.Valid[i] {
		return 0, false
	}
	return c.Values[i], true
}

// Dictionary is a shared, never-mutated list of distinct strings. Identity
// (pointer equality) is what the regex dict-scan cache keys on.
type Dictionary struct {
	Entries []string
}

// StringColumn is dictionary-encoded: a shared Dictionary, dense int32
// codes into it, and a validity bitmap.
type StringColumn struct {
	Dict  *Dictionary
	Codes []int32
	Valid []bool
}

// Get returns the decoded string at i and whether it is valid.
func (c *StringColumn) Get(i int) (string, bool) {
	if c.Valid != nil && !c.Valid[i] {
		return "", false
	}
	code := c.Codes[i]
	if code < 0 || int(code) >= len(c.Dict.Entries) {
		return "", false
	}
	return c.Dict.Entries[code], true
}

// Bundle is an immutable set of equal-length columns. Adding a
// column never mutates a Bundle; it returns a new Bundle sharing every
// other column by reference (WithFloatColumn / WithStringColumn below).
type Bundle struct {
	N       int
	IDs     []int64 // dense identifier column, always valid by convention
	Floats  map[KeyID]*FloatColumn
	Strings map[KeyID]*StringColumn
	Debug   *DebugCounters
}

// NewBundle constructs a source bundle from a dense identifier column.
func NewBundle(ids []int64) *Bundle {
	return &Bundle{
		N:       len(ids),
		IDs:     ids,
		Floats:  make(map[KeyID]*FloatColumn),
		Strings: make(map[KeyID]*StringColumn),
		Debug:   &DebugCounters{},
	}
}

// WithFloatColumn returns a new Bundle with key bound to col, sharing all
// other columns by reference with b.
func (b *Bundle) WithFloatColumn(key KeyID, col *FloatColumn) *Bundle {
	out := b.shallowCopy()
	out.Floats[key] = col
	return out
}

// WithStringColumn returns a new Bundle with key bound to col, sharing all
// other columns by reference with b.
func (b *Bundle) WithStringColumn(key KeyID, col *StringColumn) *Bundle {
	out := b.shallowCopy()
	out.Strings[key] = col
	return out
}

func (b *Bundle) shallowCopy() *Bundle {
	floats := make(map[KeyID]*FloatColumn, len(b.Floats)+1)
	for k, v := range b.Floats {
		floats[k] = v
	}
	strings := make(map[KeyID]*StringColumn, len(b.Strings)+1)
	for k, v := range b.Strings {
		strings[k] = v
	}
	b.Debug.RecordMaterialization()
	return &Bundle{
		N:       b.N,
		IDs:     b.IDs,
		Floats:  floats,
		Strings: strings,
		Debug:   b.Debug,
	}
}

// Keys returns the set of KeyIDs with a bound column (identifier key 1 is
// implicit and not included — every bundle carries it).
func (b *Bundle) Keys() []KeyID {
	out := make([]KeyID, 0, len(b.Floats)+len(b.Strings))
	for k := range b.Floats {
		out = append(out, k)
	}
	for k := range b.Strings {
		out = append(out, k)
	}
	return out
}
