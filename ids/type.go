// Package ids defines the stable identities the analysis reasons about:
// class Types and function FunctionIds, scoped to an owning Module.
//
// These are lightweight tagged variants, not the rich dataflow graph
// (see package template for that); they play the role that go/types.Object
// identity plays for golang.org/x/tools/go/ssa, one level below the SSA
// value graph itself.
package ids

import "fmt"

// TypeKind discriminates the variants of Type.
type TypeKind int

const (
	// TypeVirtual is the sentinel top type: an unknown concrete class,
	// used for opaque receivers (forward-declared or Obj-C interop classes).
	TypeVirtual TypeKind = iota
	// TypeExternal is declared in another module; its body is unknown
	// until that module's summary is linked in.
	TypeExternal
	// TypePublic is declared in this module and exported.
	TypePublic
	// TypePrivate is declared in this module and not exported.
	TypePrivate
)

func (k TypeKind) String() string {
	switch k {
	case TypeVirtual:
		return "Virtual"
	case TypeExternal:
		return "External"
	case TypePublic:
		return "Public"
	case TypePrivate:
		return "Private"
	default:
		return fmt.Sprintf("TypeKind(%d)", int(k))
	}
}

// Type is a semantic class identity. The zero value is TypeVirtual, the
// top/unknown marker, so a missing Type never silently reads as concrete.
//
// Equality for Public and External types is by Name; for Private types
// it is by (Module, LocalIndex). Use Equal rather than ==, since the
// declaration fields below are irrelevant to identity and only
// meaningful on Declared (Public/Private) variants.
type Type struct {
	Kind   TypeKind
	Name   string // Public, External: qualified name. Private: informational only.
	Module string // owning module name; empty for Virtual/External.

	// LocalIndex identifies a Private type within its Module.
	LocalIndex int

	// Declared-only fields (Public and Private). Populated by symtab.
	IsFinal    bool
	IsAbstract bool
	SuperTypes []Type
	Vtable     []FunctionId         // ordered by vtable slot
	Itable     map[uint64]FunctionId // interface-method hash -> implementation
}

// IsDeclared reports whether t carries vtable/itable/superTypes data,
// i.e. is Public or Private rather than Virtual or External.
func (t Type) IsDeclared() bool {
	return t.Kind == TypePublic || t.Kind == TypePrivate
}

// Equal implements the identity rule: by Name for
// Public/External, by (Module, LocalIndex) for Private.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TypeVirtual:
		return true
	case TypePrivate:
		return t.Module == o.Module && t.LocalIndex == o.LocalIndex
	default: // External, Public
		return t.Name == o.Name
	}
}

// SortKey gives a total, deterministic order across a program's types,
// per the determinism requirement on ordering.
func (t Type) SortKey() (kind int, module string, index int, name string) {
	return int(t.Kind), t.Module, t.LocalIndex, t.Name
}

func (t Type) String() string {
	switch t.Kind {
	case TypeVirtual:
		return "Virtual"
	case TypePrivate:
		return fmt.Sprintf("Private(%s#%d)", t.Module, t.LocalIndex)
	default:
		return fmt.Sprintf("%s(%s)", t.Kind, t.Name)
	}
}

// Virtual is the canonical top-type value.
var Virtual = Type{Kind: TypeVirtual}
