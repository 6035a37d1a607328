// Package constraint implements the interprocedural constraint graph,
// its SCC condensation and type propagation to a fixed point, the
// root-set selector, and the RTA instantiation scan.
//
// The graph-building style is grounded on golang.org/x/tools/go/callgraph/vta:
// a flat node set with typed edges, built once from every function
// template in the program, then reduced via SCC condensation before
// propagation (see condense.go/propagate.go).
package constraint

import (
	"fmt"
	"sort"

	"github.com/nativetool/devirt/direrr"
	"github.com/nativetool/devirt/ids"
	"github.com/nativetool/devirt/template"
)

// Edge is a dataflow edge in the graph, narrowed to subtypes of CastTo
// when non-nil.
type Edge struct {
	To     int
	CastTo *ids.Type
}

// CallSite is a registered VtableCall/ItableCall node, carried through
// for the devirtualizer to read the fixed-point types reaching its
// receiver node.
type CallSite struct {
	Enclosing      ids.FunctionId
	Ordinal        int
	NodeID         int // this call's own node, in the global graph
	ReceiverID     int // -1 if the node had no Receiver edge (malformed IR)
	ReceiverCastTo *ids.Type

	// IsVtable discriminates which of VtableIndex/MethodHash resolves
	// this call's slot on a candidate receiver type.
	IsVtable    bool
	VtableIndex int
	MethodHash  uint64
}

// Graph is the whole program's constraint graph: one node per
// FunctionTemplate node plus one synthetic node per distinct field name.
type Graph struct {
	Types *ids.TypeTable

	seed    []ids.Type // initial/seed type per node, meaningful only where hasSeed[i]
	hasSeed []bool
	succ    [][]Edge
	owner   []ids.FunctionId // owning function of each node; zero value for field nodes
	label   []string         // debug label

	nodeID      map[string]int
	fieldNodeID map[string]int
	paramNode   map[string][]int
	returnsNode map[string]int

	CallSites []CallSite
}

func funcKey(f ids.FunctionId) string {
	if f.Kind == ids.FunctionPrivate {
		return fmt.Sprintf("P:%s#%d", f.Module, f.LocalIndex)
	}
	return fmt.Sprintf("%d:%s", f.Kind, f.Name)
}

func localKey(f ids.FunctionId, index int) string {
	return fmt.Sprintf("%s@%d", funcKey(f), index)
}

func (g *Graph) newNode(owner ids.FunctionId, label string) int {
	id := len(g.succ)
	g.succ = append(g.succ, nil)
	g.seed = append(g.seed, ids.Type{})
	g.hasSeed = append(g.hasSeed, false)
	g.owner = append(g.owner, owner)
	g.label = append(g.label, label)
	return id
}

// setSeed marks node n as having initial type t, present at the start of
// propagation regardless of incoming edges.
func (g *Graph) setSeed(n int, t ids.Type) {
	g.seed[n] = t
	g.hasSeed[n] = true
}

func (g *Graph) addEdge(from int, e Edge) {
	g.succ[from] = append(g.succ[from], e)
}

// NumNodes returns the number of nodes in the graph.
func (g *Graph) NumNodes() int { return len(g.succ) }

// Successors returns the outgoing edges of node n.
func (g *Graph) Successors(n int) []Edge { return g.succ[n] }

// Seed returns the initial type seeded at node n and whether one exists.
func (g *Graph) Seed(n int) (ids.Type, bool) { return g.seed[n], g.hasSeed[n] }

// Build constructs the constraint graph from every function template in
// the (possibly cross-module, linked) program. roots scopes the
// conservative Virtual seeding of exported-function parameters: a
// program build's roots are just its main function (see Roots), so only
// those parameters start unconstrained and an exported-but-only-
// internally-called function keeps the precision of its actual callers.
// A nil roots treats every Public function as a root, the fully
// conservative choice used when no root set is known (e.g. linking
// already-compiled summaries with no access to the original hir.Module).
func Build(templates []*template.FunctionTemplate, types *ids.TypeTable, roots []ids.FunctionId) (*Graph, error) {
	g := &Graph{
		Types:       types,
		nodeID:      make(map[string]int),
		fieldNodeID: make(map[string]int),
		paramNode:   make(map[string][]int),
		returnsNode: make(map[string]int),
	}
	byFunc := make(map[string]*template.FunctionTemplate, len(templates))
	for _, t := range templates {
		byFunc[funcKey(t.ID)] = t
	}
	var rootSet map[string]bool
	if roots != nil {
		rootSet = make(map[string]bool, len(roots))
		for _, r := range roots {
			rootSet[funcKey(r)] = true
		}
	}

	// Pass 1: allocate a node for every template node and every distinct
	// field name, so pass 2's edges can reference any of them regardless
	// of declaration order (mirrors symtab.Build's two-pass shape).
	for _, t := range templates {
		fk := funcKey(t.ID)
		isRoot := t.ID.Kind == ids.FunctionPublic && (rootSet == nil || rootSet[fk])
		params := make([]int, t.ParameterCount)
		for i, n := range t.Body.Nodes {
			id := g.newNode(t.ID, fmt.Sprintf("%s#%d:%s", fk, i, n.Kind))
			g.nodeID[localKey(t.ID, i)] = id
			switch n.Kind {
			case template.NodeConst, template.NodeSingleton, template.NodeNewObject:
				g.setSeed(id, n.Type)
			case template.NodeParameter:
				// A root's parameters are callable by unknown external
				// code, so they're conservatively seeded Virtual (top);
				// everyone else's are fed only by the Args edges of
				// their known call sites.
				if isRoot {
					g.setSeed(id, ids.Virtual)
				}
			}
			if n.Kind == template.NodeParameter {
				if n.ParamIndex >= 0 && n.ParamIndex < len(params) {
					params[n.ParamIndex] = id
				}
			}
		}
		g.paramNode[fk] = params
		if id, ok := g.nodeID[localKey(t.ID, t.Body.Returns)]; ok {
			g.returnsNode[fk] = id
		}
	}

	// Collect field names up front in deterministic order.
	var fieldNames []string
	seenField := make(map[string]bool)
	for _, t := range templates {
		for _, n := range t.Body.Nodes {
			if n.Kind == template.NodeFieldRead || n.Kind == template.NodeFieldWrite {
				if !seenField[n.Field.Name] {
					seenField[n.Field.Name] = true
					fieldNames = append(fieldNames, n.Field.Name)
				}
			}
		}
	}
	sort.Strings(fieldNames)
	for _, name := range fieldNames {
		id := g.newNode(ids.FunctionId{}, "field:"+name)
		g.fieldNodeID[name] = id
	}

	// Pass 2: wire edges, per the node-kind rules.
	for _, t := range templates {
		for i, n := range t.Body.Nodes {
			if err := wireNode(g, byFunc, t, i, &n); err != nil {
				return nil, err
			}
		}
	}

	return g, nil
}

func (g *Graph) localID(f ids.FunctionId, index int) int {
	return g.nodeID[localKey(f, index)]
}

func wireNode(g *Graph, byFunc map[string]*template.FunctionTemplate, t *template.FunctionTemplate, i int, n *template.Node) error {
	self := g.localID(t.ID, i)
	// src returns the local-graph node id an Args[j]/Values[j]/Value
	// edge originates from.
	src := func(localIdx int) int { return g.localID(t.ID, localIdx) }

	switch n.Kind {
	case template.NodeVariable, template.NodeTempVariable:
		for _, v := range n.Values {
			g.addEdge(src(v.Node), Edge{To: self, CastTo: v.CastTo})
		}

	case template.NodeFieldWrite:
		fid, ok := g.fieldNodeID[n.Field.Name]
		if !ok {
			return direrr.Malformed(n.Field.Name, "constraint graph: field write to unregistered field")
		}
		if n.Value != nil {
			g.addEdge(src(n.Value.Node), Edge{To: fid, CastTo: n.Value.CastTo})
		}

	case template.NodeFieldRead:
		fid, ok := g.fieldNodeID[n.Field.Name]
		if !ok {
			return direrr.Malformed(n.Field.Name, "constraint graph: field read of unregistered field")
		}
		g.addEdge(fid, Edge{To: self})

	case template.NodeStaticCall, template.NodeNewObject:
		wireCallee(g, byFunc, t, n.Callee, argsWithReceiver(n), self, n.ReturnType, src)

	case template.NodeVtableCall:
		wireVirtualCall(g, byFunc, t, n, self, src, candidateVtableCallees(g.Types, n.VtableIndex))

	case template.NodeItableCall:
		wireVirtualCall(g, byFunc, t, n, self, src, candidateItableCallees(g.Types, n.MethodHash))
	}

	if (n.Kind == template.NodeVtableCall || n.Kind == template.NodeItableCall) && n.CallSite != nil {
		cs := CallSite{Enclosing: n.CallSite.Enclosing, Ordinal: n.CallSite.Ordinal, NodeID: self, ReceiverID: -1}
		if n.Receiver != nil {
			cs.ReceiverID = src(n.Receiver.Node)
			cs.ReceiverCastTo = n.Receiver.CastTo
		}
		if n.Kind == template.NodeVtableCall {
			cs.IsVtable = true
			cs.VtableIndex = n.VtableIndex
		} else {
			cs.MethodHash = n.MethodHash
		}
		g.CallSites = append(g.CallSites, cs)
	}

	return nil
}

// argsWithReceiver prepends n's receiver edge to its argument edges, so
// the callee's parameter 0 (self, by the same convention templates use
// for method parameters) receives the receiver's flow instead of being
// shifted out of alignment by the value arguments.
func argsWithReceiver(n *template.Node) []template.Edge {
	if n.Receiver == nil {
		return n.Args
	}
	return append([]template.Edge{*n.Receiver}, n.Args...)
}

// wireCallee connects a statically-resolved call's Args/return to one
// known callee, or seeds the call node with its declared ReturnType if
// the callee's template is unavailable (external or unlinked).
func wireCallee(g *Graph, byFunc map[string]*template.FunctionTemplate, caller *template.FunctionTemplate, callee ids.FunctionId, args []template.Edge, self int, returnType ids.Type, src func(int) int) {
	if _, ok := byFunc[funcKey(callee)]; !ok {
		g.setSeed(self, returnType)
		return
	}
	params := g.paramNode[funcKey(callee)]
	for j, a := range args {
		if j >= len(params) {
			break
		}
		g.addEdge(src(a.Node), Edge{To: params[j], CastTo: a.CastTo})
	}
	if retID, ok := g.returnsNode[funcKey(callee)]; ok {
		g.addEdge(retID, Edge{To: self})
	}
}

// wireVirtualCall connects a virtual call's Args/return to every
// plausible override (the vtable/itable entry at the call's slot of
// every declared type in g.Types, subtype of the receiver or not), a CHA-style
// soundness requirement: the exact override is unknown until fixed-point
// propagation and is only resolved precisely by the devirtualizer.
func wireVirtualCall(g *Graph, byFunc map[string]*template.FunctionTemplate, caller *template.FunctionTemplate, n *template.Node, self int, src func(int) int, candidates []ids.FunctionId) {
	if len(candidates) == 0 {
		g.setSeed(self, n.ReturnType)
		return
	}
	args := argsWithReceiver(n)
	for _, c := range candidates {
		wireCallee(g, byFunc, caller, c, args, self, n.ReturnType, src)
	}
}

// candidateVtableCallees returns every distinct implementation occupying
// vtableIndex across all declared types, in deterministic order.
func candidateVtableCallees(types *ids.TypeTable, vtableIndex int) []ids.FunctionId {
	var out []ids.FunctionId
	seen := make(map[string]bool)
	for _, t := range types.Sorted() {
		if vtableIndex < 0 || vtableIndex >= len(t.Vtable) {
			continue
		}
		f := t.Vtable[vtableIndex]
		k := funcKey(f)
		if !seen[k] {
			seen[k] = true
			out = append(out, f)
		}
	}
	return out
}

// candidateItableCallees returns every distinct implementation of the
// interface method with the given hash, across all declared types.
func candidateItableCallees(types *ids.TypeTable, hash uint64) []ids.FunctionId {
	var out []ids.FunctionId
	seen := make(map[string]bool)
	for _, t := range types.Sorted() {
		f, ok := t.Itable[hash]
		if !ok {
			continue
		}
		k := funcKey(f)
		if !seen[k] {
			seen[k] = true
			out = append(out, f)
		}
	}
	return out
}
