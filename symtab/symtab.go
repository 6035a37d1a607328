// Package symtab implements the symbol table: it assigns stable
// ids.Type and ids.FunctionId identities to every class and function of
// an hir.Module, and fills in vtable, itable, and superTypes for
// classes whose implementation is known.
package symtab

import (
	"sort"

	"github.com/nativetool/devirt/direrr"
	"github.com/nativetool/devirt/hir"
	"github.com/nativetool/devirt/ids"
)

// SymbolTable is the per-module result of Build.
type SymbolTable struct {
	Module    ids.Module
	Types     *ids.TypeTable
	Functions map[*hir.Function]ids.FunctionId

	classType map[*hir.Class]ids.Type
	vb        hir.VtableBuilder
}

// ResolveOverride delegates to the VtableBuilder supplied to Build, so
// the template builder can resolve super-qualified calls without
// needing its own VtableBuilder handle.
func (st *SymbolTable) ResolveOverride(f *hir.Function, super *hir.Class) *hir.Function {
	return st.vb.ResolveOverride(f, super)
}

// FunctionID looks up the FunctionId already assigned to f.
func (st *SymbolTable) FunctionID(f *hir.Function) ids.FunctionId {
	return st.Functions[f]
}

// TypeOf looks up the ids.Type already assigned to c.
func (st *SymbolTable) TypeOf(c *hir.Class) ids.Type {
	if c == nil {
		return ids.Virtual
	}
	return st.classType[c]
}

// Build assigns identities for every class and function reachable from
// m, classifying each External/Public/Private.
func Build(m *hir.Module, vb hir.VtableBuilder) (*SymbolTable, error) {
	st := &SymbolTable{
		Module:    ids.Module{Name: m.Name},
		Types:     ids.NewTypeTable(),
		Functions: make(map[*hir.Function]ids.FunctionId),
		classType: make(map[*hir.Class]ids.Type),
		vb:        vb,
	}
	counter := &ids.Counter{}

	// Classes first: functions' VtableCall/ItableCall resolution and
	// the vtable/itable fill below both need every class's Type ready.
	classOrder := stableClasses(m)
	for _, c := range classOrder {
		t, err := assignClassType(st, c, counter)
		if err != nil {
			return nil, err
		}
		st.classType[c] = t
		if t.IsDeclared() {
			st.Types.Add(t)
		}
	}

	funcOrder := stableFunctions(m)
	for _, f := range funcOrder {
		id, err := assignFunctionID(st, f, counter)
		if err != nil {
			return nil, err
		}
		st.Functions[f] = id
		if id.VirtuallyCallable() {
			st.Module.NumberOfVirtuallyCallableFunctions++
		}
	}

	// Second pass: fill vtable/itable/superTypes, now that every
	// function and class has an identity.
	for _, c := range classOrder {
		t := st.classType[c]
		if !t.IsDeclared() {
			continue
		}
		if err := fillDeclared(st, c, &t, vb); err != nil {
			return nil, err
		}
		st.Types.Add(t)
		st.classType[c] = t
	}

	return st, nil
}

func stableClasses(m *hir.Module) []*hir.Class {
	out := append([]*hir.Class(nil), m.Classes...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func stableFunctions(m *hir.Module) []*hir.Function {
	out := append([]*hir.Function(nil), m.Functions...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func assignClassType(st *SymbolTable, c *hir.Class, counter *ids.Counter) (ids.Type, error) {
	if c.IsOpaque {
		return ids.Virtual, nil
	}
	if c.IsExternal {
		return ids.Type{Kind: ids.TypeExternal, Name: c.Name}, nil
	}
	// isFinal && isAbstract is a module bug (an invariant,
	// resolved fatal per an earlier design decision).
	if c.IsFinal && c.IsAbstract {
		return ids.Type{}, direrr.Malformed(c.Name, "class is both final and abstract")
	}
	if isExported(c.Name) {
		return ids.Type{Kind: ids.TypePublic, Name: c.Name, Module: st.Module.Name}, nil
	}
	return ids.Type{
		Kind:       ids.TypePrivate,
		Name:       c.Name,
		Module:     st.Module.Name,
		LocalIndex: counter.NextTypeIndex(),
	}, nil
}

func assignFunctionID(st *SymbolTable, f *hir.Function, counter *ids.Counter) (ids.FunctionId, error) {
	if f.IsExternal {
		return ids.FunctionId{Kind: ids.FunctionExternal, Name: f.Name, SymbolTableIndex: -1}, nil
	}
	symIndex := -1
	if isVirtuallyCallable(f) {
		symIndex = counter.NextSymbolIndex()
	}
	if isExported(f.Name) {
		return ids.FunctionId{
			Kind:             ids.FunctionPublic,
			Name:             f.Name,
			Module:           st.Module.Name,
			SymbolTableIndex: symIndex,
		}, nil
	}
	return ids.FunctionId{
		Kind:             ids.FunctionPrivate,
		Name:             f.Name,
		Module:           st.Module.Name,
		LocalIndex:       counter.NextFunctionIndex(),
		SymbolTableIndex: symIndex,
	}, nil
}

// isVirtuallyCallable reports whether f occupies a vtable or itable
// slot and so may be called virtually from another module.
func isVirtuallyCallable(f *hir.Function) bool {
	return f.Owner != nil && !f.Owner.IsOpaque && (f.VtableSlot >= 0 || f.MethodHash != 0)
}

func isExported(name string) bool {
	return len(name) > 0 && name[0] >= 'A' && name[0] <= 'Z'
}

// fillDeclared fills vtable, itable (iff not abstract), and superTypes
// for a non-interface, non-forward-declared, non-Obj-C-interop class,
//
func fillDeclared(st *SymbolTable, c *hir.Class, t *ids.Type, vb hir.VtableBuilder) error {
	for _, s := range c.SuperTypes {
		t.SuperTypes = append(t.SuperTypes, st.TypeOf(s))
	}
	t.IsFinal = c.IsFinal
	t.IsAbstract = c.IsAbstract

	if c.IsInterface {
		return nil
	}

	for _, impl := range vb.VtableEntries(c) {
		id, ok := st.Functions[impl]
		if !ok {
			return direrr.Malformed(c.Name, "vtable entry has no assigned FunctionId")
		}
		t.Vtable = append(t.Vtable, id)
	}

	if !c.IsAbstract {
		entries := vb.ITableEntries(c)
		if len(entries) > 0 {
			t.Itable = make(map[uint64]ids.FunctionId, len(entries))
			for hash, impl := range entries {
				id, ok := st.Functions[impl]
				if !ok {
					return direrr.Malformed(c.Name, "itable entry has no assigned FunctionId")
				}
				t.Itable[hash] = id
			}
		}
	}
	return nil
}
