package ids

import (
	"sort"
	"strconv"
)

// Module is the owning scope for Declared Types and FunctionIds.
type Module struct {
	Name                               string
	NumberOfVirtuallyCallableFunctions int
}

// Counter hands out dense, per-module local indices, so that a later
// rewrite pass can address a private target by (module, index) in
// linear time.
type Counter struct {
	nextType     int
	nextFunction int
	nextSymbol   int
}

// NextTypeIndex returns the next dense Private-type local index.
func (c *Counter) NextTypeIndex() int {
	i := c.nextType
	c.nextType++
	return i
}

// NextFunctionIndex returns the next dense Private-function local index.
func (c *Counter) NextFunctionIndex() int {
	i := c.nextFunction
	c.nextFunction++
	return i
}

// NextSymbolIndex returns the next virtual-function-table slot and
// reserves it; callers feed the result into Module.NumberOfVirtuallyCallableFunctions.
func (c *Counter) NextSymbolIndex() int {
	i := c.nextSymbol
	c.nextSymbol++
	return i
}

// TypeTable is the per-program collection of all Declared types, used
// for subtype queries during constraint-graph building and devirtualization.
type TypeTable struct {
	byKey map[string]Type // SortKey-derived string -> Type
	order []Type          // insertion order, for deterministic iteration

	subtypeMemo map[[2]string]bool
}

// NewTypeTable returns an empty table.
func NewTypeTable() *TypeTable {
	return &TypeTable{
		byKey:       make(map[string]Type),
		subtypeMemo: make(map[[2]string]bool),
	}
}

func key(t Type) string {
	kind, module, index, name := t.SortKey()
	if kind == int(TypePrivate) {
		return module + "#" + strconv.Itoa(index)
	}
	return strconv.Itoa(kind) + ":" + name
}

// Add registers t (a Declared type carrying superTypes/vtable/itable),
// replacing any earlier registration with the same identity.
func (tt *TypeTable) Add(t Type) {
	k := key(t)
	if _, ok := tt.byKey[k]; !ok {
		tt.order = append(tt.order, t)
	}
	tt.byKey[k] = t
}

// Lookup returns the full Declared Type for a bare identity (as carried
// on a constraint-graph node, say), falling back to t itself if t is not
// Declared or was never registered (e.g. Virtual, External).
func (tt *TypeTable) Lookup(t Type) Type {
	if full, ok := tt.byKey[key(t)]; ok {
		return full
	}
	return t
}

// All returns every registered Declared type, in insertion order.
func (tt *TypeTable) All() []Type {
	out := make([]Type, len(tt.order))
	copy(out, tt.order)
	return out
}

// Sorted returns every registered Declared type in deterministic
// (kind, module, index, name) order, for deterministic output.
func (tt *TypeTable) Sorted() []Type {
	out := tt.All()
	sort.Slice(out, func(i, j int) bool {
		ki, mi, ii, ni := out[i].SortKey()
		kj, mj, ij, nj := out[j].SortKey()
		if ki != kj {
			return ki < kj
		}
		if mi != mj {
			return mi < mj
		}
		if ii != ij {
			return ii < ij
		}
		return ni < nj
	})
	return out
}

// IsSubtypeOf reports whether sub <: super, via memoized DFS over
// SuperTypes. Every type is
// its own subtype. Virtual and External types have no registered
// supertypes and are subtypes only of themselves and of Virtual.
func (tt *TypeTable) IsSubtypeOf(sub, super Type) bool {
	if sub.Equal(super) {
		return true
	}
	if super.Kind == TypeVirtual {
		return true
	}
	if sub.Kind == TypeVirtual {
		return false
	}
	memoKey := [2]string{key(sub), key(super)}
	if v, ok := tt.subtypeMemo[memoKey]; ok {
		return v
	}
	// Mark in-progress as false to break cycles defensively; a
	// well-formed hierarchy has none, but malformed IR might.
	tt.subtypeMemo[memoKey] = false
	full := tt.Lookup(sub)
	for _, s := range full.SuperTypes {
		if tt.IsSubtypeOf(s, super) {
			tt.subtypeMemo[memoKey] = true
			return true
		}
	}
	return false
}
