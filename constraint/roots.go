package constraint

import (
	"sort"

	"github.com/nativetool/devirt/hir"
	"github.com/nativetool/devirt/ids"
	"github.com/nativetool/devirt/symtab"
	"github.com/nativetool/devirt/template"
)

// Roots implements the root-set selector: a program build's only
// root is its main function; a library build's roots are every
// exported, non-abstract function, since any of them may be called by
// code outside the module.
func Roots(m *hir.Module, st *symtab.SymbolTable) []ids.FunctionId {
	if m.MainFunction != nil {
		return []ids.FunctionId{st.FunctionID(m.MainFunction)}
	}

	var roots []ids.FunctionId
	for _, f := range m.Functions {
		if f.IsExternal || f.IsAbstract {
			continue
		}
		id := st.FunctionID(f)
		if id.Kind == ids.FunctionPublic {
			roots = append(roots, id)
		}
	}
	sort.Slice(roots, func(i, j int) bool {
		ki, mi, ii, ni := roots[i].SortKey()
		kj, mj, ij, nj := roots[j].SortKey()
		return less4(ki, mi, ii, ni, kj, mj, ij, nj)
	})
	return roots
}

func less4(ki int, mi string, ii int, ni string, kj int, mj string, ij int, nj string) bool {
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
}

// Reachable computes the set of functions transitively callable from
// roots, following static calls directly and virtual calls through
// every plausible vtable/itable override (the same conservative fan-out
// Build uses for dataflow edges).
func Reachable(templates []*template.FunctionTemplate, types *ids.TypeTable, roots []ids.FunctionId) map[string]bool {
	byFunc := make(map[string]*template.FunctionTemplate, len(templates))
	for _, t := range templates {
		byFunc[funcKey(t.ID)] = t
	}

	reached := make(map[string]bool)
	var queue []ids.FunctionId
	for _, r := range roots {
		k := funcKey(r)
		if !reached[k] {
			reached[k] = true
			queue = append(queue, r)
		}
	}

	visit := func(callee ids.FunctionId) {
		k := funcKey(callee)
		if !reached[k] {
			reached[k] = true
			queue = append(queue, callee)
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		t, ok := byFunc[funcKey(cur)]
		if !ok {
			continue
		}
		for _, n := range t.Body.Nodes {
			switch n.Kind {
			case template.NodeStaticCall, template.NodeNewObject:
				visit(n.Callee)
			case template.NodeVtableCall:
				for _, c := range candidateVtableCallees(types, n.VtableIndex) {
					visit(c)
				}
			case template.NodeItableCall:
				for _, c := range candidateItableCallees(types, n.MethodHash) {
					visit(c)
				}
			}
		}
	}
	return reached
}
