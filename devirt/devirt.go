// Package devirt implements the devirtualizer: for each call site
// registered during constraint-graph construction, it reads the
// fixed-point types reaching the call's receiver, narrows them by Rapid
// Type Analysis's instantiated-class set, and resolves the call's
// actual vtable/itable entries, producing either a precise single
// callee (eligible for rewriting to a direct call) or a bounded
// candidate list.
package devirt

import (
	"sort"
	"strconv"

	"github.com/nativetool/devirt/constraint"
	"github.com/nativetool/devirt/direrr"
	"github.com/nativetool/devirt/ids"
)

// Site is one devirtualized call site: PossibleCallees is the resolved,
// deduplicated, deterministically ordered set of functions the call may
// actually reach, after RTA narrowing.
type Site struct {
	Enclosing       ids.FunctionId
	Ordinal         int
	PossibleCallees []ids.FunctionId
}

// Resolve computes a Site for every call site g registered, using the
// propagated types in result and the program's instantiated-class set.
// It returns a *direrr.Fault when a resolved callee violates one of the
// analysis's fatal invariants (an interface lookup miss on an
// instantiated implementor, or a resolved callee that isn't virtually
// callable).
func Resolve(g *constraint.Graph, result *constraint.Result, instantiated *constraint.InstantiatedSet) ([]Site, error) {
	var sites []Site
	for _, cs := range g.CallSites {
		if cs.ReceiverID < 0 {
			continue // malformed IR: call site with no receiver edge
		}
		receiverTypes := result.Types(cs.ReceiverID)
		callees, err := resolveCandidates(g, receiverTypes, instantiated, cs)
		if err != nil {
			return nil, err
		}
		sites = append(sites, Site{Enclosing: cs.Enclosing, Ordinal: cs.Ordinal, PossibleCallees: callees})
	}
	sort.Slice(sites, func(i, j int) bool {
		ki, mi, ii, ni := sites[i].Enclosing.SortKey()
		kj, mj, ij, nj := sites[j].Enclosing.SortKey()
		if ki != kj {
			return ki < kj
		}
		if mi != mj {
			return mi < mj
		}
		if ii != ij {
			return ii < ij
		}
		if ni != nj {
			return ni < nj
		}
		return sites[i].Ordinal < sites[j].Ordinal
	})
	return sites, nil
}

// resolveCandidates intersects the node's fixed-point receiver types
// with the call's declared narrowing (cs.ReceiverCastTo, if any) and the
// program's instantiated set, then maps each surviving concrete type to
// its vtable/itable implementation for this call's slot.
func resolveCandidates(g *constraint.Graph, receiverTypes []ids.Type, instantiated *constraint.InstantiatedSet, cs constraint.CallSite) ([]ids.FunctionId, error) {
	seen := make(map[string]bool)
	var out []ids.FunctionId
	for _, rt := range receiverTypes {
		if rt.Kind == ids.TypeVirtual {
			// An unconstrained receiver means every instantiated
			// type with an implementation of this slot remains
			// possible: no narrowing survives.
			return allOverridesOf(g, cs, instantiated)
		}
		if !rt.IsDeclared() {
			continue // External: body (and so its override) is unknown
		}
		if cs.ReceiverCastTo != nil && !g.Types.IsSubtypeOf(rt, *cs.ReceiverCastTo) {
			continue
		}
		if !instantiated.Contains(rt) {
			continue
		}
		full := g.Types.Lookup(rt)
		impl, err := implementationFor(full, cs)
		if err != nil {
			return nil, err
		}
		if impl == nil {
			continue
		}
		k := funcKeyOf(*impl)
		if !seen[k] {
			seen[k] = true
			out = append(out, *impl)
		}
	}
	sortCallees(out)
	return out, nil
}

// allOverridesOf is the conservative fallback for an unconstrained
// receiver: every instantiated type's implementation of this call's
// slot, i.e. no devirtualization is possible but the candidate set is
// still RTA-bounded.
func allOverridesOf(g *constraint.Graph, cs constraint.CallSite, instantiated *constraint.InstantiatedSet) ([]ids.FunctionId, error) {
	seen := make(map[string]bool)
	var out []ids.FunctionId
	for _, t := range g.Types.Sorted() {
		if !instantiated.Contains(t) {
			continue
		}
		impl, err := implementationFor(t, cs)
		if err != nil {
			return nil, err
		}
		if impl == nil {
			continue
		}
		k := funcKeyOf(*impl)
		if !seen[k] {
			seen[k] = true
			out = append(out, *impl)
		}
	}
	sortCallees(out)
	return out, nil
}

// implementationFor looks up t's implementation of cs's slot. A vtable
// miss (t has no override in range) just means t doesn't reach this
// call, since vtable slots are only assigned where a class in the
// hierarchy actually declares the method; a miss on an itable lookup for
// an instantiated type is impossible in well-formed IR (the type
// implements the interface or it couldn't have reached this call site as
// a possible receiver) and is a fatal out-of-range fault instead of a
// silently dropped candidate. Either taxon also requires the found
// implementation to be virtually callable: a Declared callee with
// SymbolTableIndex < 0 means the producer never meant for it to be
// reachable through this table, a malformed-IR fault.
func implementationFor(t ids.Type, cs constraint.CallSite) (*ids.FunctionId, error) {
	var impl ids.FunctionId
	if cs.IsVtable {
		if cs.VtableIndex < 0 || cs.VtableIndex >= len(t.Vtable) {
			return nil, nil
		}
		impl = t.Vtable[cs.VtableIndex]
	} else {
		found, ok := t.Itable[cs.MethodHash]
		if !ok {
			return nil, direrr.OutOfRange(t.String(), "no itable entry for method hash %d", cs.MethodHash)
		}
		impl = found
	}
	if !impl.VirtuallyCallable() {
		return nil, direrr.Malformed(impl.String(), "devirtualized callee is not virtually callable")
	}
	return &impl, nil
}

func funcKeyOf(f ids.FunctionId) string {
	if f.Kind == ids.FunctionPrivate {
		return f.Module + "#" + strconv.Itoa(f.LocalIndex)
	}
	return strconv.Itoa(int(f.Kind)) + ":" + f.Name
}

func sortCallees(fs []ids.FunctionId) {
	sort.Slice(fs, func(i, j int) bool {
		ki, mi, ii, ni := fs[i].SortKey()
		kj, mj, ij, nj := fs[j].SortKey()
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
}
