package template

import "github.com/nativetool/devirt/hir"

// VariableClosure computes the transitive set of non-variable
// value expressions reachable from each variable via variable-to-
// variable assignment chains, via DFS with a visited set (fixed point
// guaranteed since the visited set only grows).
type VariableClosure struct {
	cache map[*hir.Variable][]hir.Expr
}

// NewVariableClosure returns an empty, lazily-populated closure cache.
func NewVariableClosure() *VariableClosure {
	return &VariableClosure{cache: make(map[*hir.Variable][]hir.Expr)}
}

// Closure returns every non-GetValue expression reachable from v by
// following GetValue(var') hops through its assigned values.
func (vc *VariableClosure) Closure(v *hir.Variable) []hir.Expr {
	if cached, ok := vc.cache[v]; ok {
		return cached
	}
	visited := map[*hir.Variable]bool{v: true}
	var out []hir.Expr
	var walk func(cur *hir.Variable)
	walk = func(cur *hir.Variable) {
		for _, val := range cur.Values {
			if gv, ok := val.(hir.GetValue); ok && gv.Variable != nil {
				if !visited[gv.Variable] {
					visited[gv.Variable] = true
					walk(gv.Variable)
				}
				continue
			}
			out = append(out, val)
		}
	}
	walk(v)
	vc.cache[v] = out
	return out
}
