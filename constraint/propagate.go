package constraint

import (
	"sort"
	"strconv"

	"github.com/nativetool/devirt/ids"
)

// typeSet is a deduplicated, growable set of ids.Type, keyed the same
// way ids.TypeTable dedups: by Name for Public/External, by
// (Module, LocalIndex) for Private.
type typeSet struct {
	byKey map[string]ids.Type
}

func newTypeSet() *typeSet { return &typeSet{byKey: make(map[string]ids.Type)} }

func typeSetKey(t ids.Type) string {
	k, m, i, n := t.SortKey()
	if ids.TypeKind(k) == ids.TypePrivate {
		return "P:" + m + ":" + strconv.Itoa(i)
	}
	return strconv.Itoa(k) + ":" + n
}

// add inserts t, reporting whether the set grew.
func (s *typeSet) add(t ids.Type) bool {
	k := typeSetKey(t)
	if _, ok := s.byKey[k]; ok {
		return false
	}
	s.byKey[k] = t
	return true
}

// addAll merges other into s, reporting whether s grew.
func (s *typeSet) addAll(other *typeSet) bool {
	grew := false
	for k, t := range other.byKey {
		if _, ok := s.byKey[k]; !ok {
			s.byKey[k] = t
			grew = true
		}
	}
	return grew
}

// filtered returns a new set containing only s's members that are
// subtypes of target, per a cast edge's narrowing.
func (s *typeSet) filtered(types *ids.TypeTable, target ids.Type) *typeSet {
	out := newTypeSet()
	for _, t := range s.byKey {
		if types.IsSubtypeOf(t, target) {
			out.add(t)
		}
	}
	return out
}

// Sorted returns s's members in deterministic order.
func (s *typeSet) Sorted() []ids.Type {
	out := make([]ids.Type, 0, len(s.byKey))
	for _, t := range s.byKey {
		out = append(out, t)
	}
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

// Result is the program's fixed-point type assignment: for every
// constraint-graph node, the set of concrete types that may reach it.
type Result struct {
	nodeToSCC []int
	sets      []*typeSet
}

// Types returns the fixed-point type set reaching node n.
func (r *Result) Types(n int) []ids.Type {
	return r.sets[r.nodeToSCC[n]].Sorted()
}

func regularEdge(e Edge) bool { return e.CastTo == nil }

// Propagate computes the fixed point of type information flowing
// through g: SCC condensation over regular edges only, then forward
// propagation of each SCC's type set to its successors in topological
// order, narrowed by any cast edge crossing the boundary. A cast edge
// whose target SCC precedes its source in the regular-edge topological
// order (a "bad edge") cannot be satisfied in a single forward sweep,
// so the whole sweep repeats until no SCC's set grows — simpler than
// tracking bad edges individually, and still a finite fixed point since
// every type set is bounded by the program's total type count and only
// ever grows.
func Propagate(g *Graph) *Result {
	nodeToSCC, numSCC := scc(g, regularEdge)

	sccNodes := make([][]int, numSCC)
	for v := 0; v < g.NumNodes(); v++ {
		id := nodeToSCC[v]
		sccNodes[id] = append(sccNodes[id], v)
	}

	sets := make([]*typeSet, numSCC)
	for i := range sets {
		sets[i] = newTypeSet()
	}
	for v := 0; v < g.NumNodes(); v++ {
		if t, ok := g.Seed(v); ok {
			sets[nodeToSCC[v]].add(t)
		}
	}

	for changed := true; changed; {
		changed = false
		for i := numSCC - 1; i >= 0; i-- {
			for _, v := range sccNodes[i] {
				for _, e := range g.Successors(v) {
					target := nodeToSCC[e.To]
					if target == i {
						continue // shared set already covers intra-SCC flow
					}
					contributed := sets[i]
					if e.CastTo != nil {
						contributed = sets[i].filtered(g.Types, *e.CastTo)
					}
					if sets[target].addAll(contributed) {
						changed = true
					}
				}
			}
		}
	}

	return &Result{nodeToSCC: nodeToSCC, sets: sets}
}
