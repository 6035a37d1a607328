package summary

import (
	"fmt"
	"sort"

	"github.com/nativetool/devirt/direrr"
	"github.com/nativetool/devirt/ids"
	"github.com/nativetool/devirt/template"
)

// Module is the decoded form of one module's summary: everything a
// consumer module needs to link against it.
type Module struct {
	Name                               string
	NumberOfVirtuallyCallableFunctions int
	Types                              []ids.Type
	Functions                          []ids.FunctionId
	Templates                          []*template.FunctionTemplate
}

// registry assigns dense, stable indices to every Type/FunctionId the
// module's symbol table and templates touch, in SortKey order, so the
// wire format can reference them by varint index (golang.org/x/tools/go/gcimporter15's
// exporter does the same for go/types.Object via its own object map).
type registry struct {
	types     []ids.Type
	typeIndex map[string]int
	funcs     []ids.FunctionId
	funcIndex map[string]int
}

func typeKey(t ids.Type) string {
	if t.Kind == ids.TypePrivate {
		return fmt.Sprintf("P:%s#%d", t.Module, t.LocalIndex)
	}
	return fmt.Sprintf("%d:%s", t.Kind, t.Name)
}

func funcKey(f ids.FunctionId) string {
	if f.Kind == ids.FunctionPrivate {
		return fmt.Sprintf("P:%s#%d", f.Module, f.LocalIndex)
	}
	return fmt.Sprintf("%d:%s", f.Kind, f.Name)
}

func (r *registry) addType(t ids.Type) int {
	k := typeKey(t)
	if i, ok := r.typeIndex[k]; ok {
		// Keep the richer (Declared, superTypes/vtable/itable-filled)
		// copy if we see one after a bare reference.
		if len(t.SuperTypes) > 0 || len(t.Vtable) > 0 || len(t.Itable) > 0 {
			r.types[i] = t
		}
		return i
	}
	i := len(r.types)
	r.types = append(r.types, t)
	r.typeIndex[k] = i
	return i
}

func (r *registry) addFunc(f ids.FunctionId) int {
	k := funcKey(f)
	if i, ok := r.funcIndex[k]; ok {
		return i
	}
	i := len(r.funcs)
	r.funcs = append(r.funcs, f)
	r.funcIndex[k] = i
	return i
}

// buildRegistry walks types and templates collecting every Type/FunctionId
// referenced anywhere, then renumbers both lists into SortKey order so
// two encodings of the same program produce identical indices (the
// determinism TestEncodeIsDeterministic checks).
func buildRegistry(types []ids.Type, templates []*template.FunctionTemplate) *registry {
	r := &registry{typeIndex: make(map[string]int), funcIndex: make(map[string]int)}

	for _, t := range types {
		r.addType(t)
		for _, s := range t.SuperTypes {
			r.addType(s)
		}
		for _, f := range t.Vtable {
			r.addFunc(f)
		}
		for _, f := range t.Itable {
			r.addFunc(f)
		}
	}
	for _, t := range templates {
		r.addFunc(t.ID)
		for _, n := range t.Body.Nodes {
			walkNodeIdentities(&n, r)
		}
	}

	reorder(r)
	return r
}

func walkNodeIdentities(n *template.Node, r *registry) {
	switch n.Kind {
	case template.NodeConst, template.NodeSingleton:
		r.addType(n.Type)
	case template.NodeStaticCall, template.NodeNewObject, template.NodeVtableCall, template.NodeItableCall:
		r.addFunc(n.Callee)
		r.addType(n.ReturnType)
		if n.Kind == template.NodeNewObject {
			r.addType(n.Type)
		}
		for _, e := range n.Args {
			addEdgeCast(e, r)
		}
		if n.Receiver != nil {
			addEdgeCast(*n.Receiver, r)
		}
	case template.NodeFieldRead, template.NodeFieldWrite:
		r.addType(n.Field.ReceiverType)
		if n.Value != nil {
			addEdgeCast(*n.Value, r)
		}
	case template.NodeVariable, template.NodeTempVariable:
		for _, e := range n.Values {
			addEdgeCast(e, r)
		}
	}
}

func addEdgeCast(e template.Edge, r *registry) {
	if e.CastTo != nil {
		r.addType(*e.CastTo)
	}
}

// reorder renumbers types and funcs into SortKey order in place, keeping
// typeIndex/funcIndex consistent with the new positions.
func reorder(r *registry) {
	sort.Slice(r.types, func(i, j int) bool {
		ki, mi, ii, ni := r.types[i].SortKey()
		kj, mj, ij, nj := r.types[j].SortKey()
		return less4(ki, mi, ii, ni, kj, mj, ij, nj)
	})
	r.typeIndex = make(map[string]int, len(r.types))
	for i, t := range r.types {
		r.typeIndex[typeKey(t)] = i
	}

	sort.Slice(r.funcs, func(i, j int) bool {
		ki, mi, ii, ni := r.funcs[i].SortKey()
		kj, mj, ij, nj := r.funcs[j].SortKey()
		return less4(ki, mi, ii, ni, kj, mj, ij, nj)
	})
	r.funcIndex = make(map[string]int, len(r.funcs))
	for i, f := range r.funcs {
		r.funcIndex[funcKey(f)] = i
	}
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

// Encode serializes the given declared types, every function they or the
// templates reference, and every function template into a stable binary
// message.
func Encode(moduleName string, numVirtuallyCallable int, types []ids.Type, templates []*template.FunctionTemplate) ([]byte, error) {
	r := buildRegistry(types, templates)
	sortedTemplates := append([]*template.FunctionTemplate(nil), templates...)
	sort.Slice(sortedTemplates, func(i, j int) bool {
		ki, mi, ii, ni := sortedTemplates[i].ID.SortKey()
		kj, mj, ij, nj := sortedTemplates[j].ID.SortKey()
		return less4(ki, mi, ii, ni, kj, mj, ij, nj)
	})

	e := &encoder{}
	e.byte(formatVersion)
	e.string(moduleName)
	e.int(numVirtuallyCallable)

	e.int(len(r.types))
	for _, t := range r.types {
		encodeType(e, t, r)
	}

	e.int(len(r.funcs))
	for _, f := range r.funcs {
		encodeFunc(e, f)
	}

	e.int(len(sortedTemplates))
	for _, t := range sortedTemplates {
		if err := encodeTemplate(e, t, r); err != nil {
			return nil, err
		}
	}

	return e.bytes(), nil
}

func encodeType(e *encoder, t ids.Type, r *registry) {
	e.byte(byte(t.Kind))
	e.string(t.Name)
	e.string(t.Module)
	e.int(t.LocalIndex)
	if !t.IsDeclared() {
		return
	}
	e.bool(t.IsFinal)
	e.bool(t.IsAbstract)
	e.int(len(t.SuperTypes))
	for _, s := range t.SuperTypes {
		e.int(r.typeIndex[typeKey(s)])
	}
	e.int(len(t.Vtable))
	for _, f := range t.Vtable {
		e.int(r.funcIndex[funcKey(f)])
	}
	e.int(len(t.Itable))
	// Itable's hash order is not program-meaningful; sort the hashes so
	// the encoding is stable across runs.
	hashes := make([]uint64, 0, len(t.Itable))
	for h := range t.Itable {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	for _, h := range hashes {
		e.uint64(h)
		e.int(r.funcIndex[funcKey(t.Itable[h])])
	}
}

func encodeFunc(e *encoder, f ids.FunctionId) {
	e.byte(byte(f.Kind))
	e.string(f.Name)
	e.string(f.Module)
	e.int(f.LocalIndex)
	e.int(f.SymbolTableIndex)
}

func encodeTemplate(e *encoder, t *template.FunctionTemplate, r *registry) error {
	e.int(r.funcIndex[funcKey(t.ID)])
	e.int(t.ParameterCount)
	e.int(len(t.Body.Nodes))
	for i := range t.Body.Nodes {
		if err := encodeNode(e, &t.Body.Nodes[i], r); err != nil {
			return err
		}
	}
	e.int(t.Body.Returns)
	return nil
}

func encodeEdge(e *encoder, edge template.Edge, r *registry) {
	e.int(edge.Node)
	if edge.CastTo == nil {
		e.bool(false)
		return
	}
	e.bool(true)
	e.int(r.typeIndex[typeKey(*edge.CastTo)])
}

func encodeEdges(e *encoder, edges []template.Edge, r *registry) {
	e.int(len(edges))
	for _, edge := range edges {
		encodeEdge(e, edge, r)
	}
}

func encodeCallSite(e *encoder, cs *template.CallSite, r *registry) {
	if cs == nil {
		e.bool(false)
		return
	}
	e.bool(true)
	e.int(r.funcIndex[funcKey(cs.Enclosing)])
	e.int(cs.Ordinal)
}

func encodeOptionalEdge(e *encoder, edge *template.Edge, r *registry) {
	if edge == nil {
		e.bool(false)
		return
	}
	e.bool(true)
	encodeEdge(e, *edge, r)
}

func encodeNode(e *encoder, n *template.Node, r *registry) error {
	e.byte(byte(n.Kind))
	switch n.Kind {
	case template.NodeParameter:
		e.int(n.ParamIndex)
	case template.NodeConst, template.NodeSingleton:
		e.int(r.typeIndex[typeKey(n.Type)])
	case template.NodeStaticCall:
		e.int(r.funcIndex[funcKey(n.Callee)])
		encodeEdges(e, n.Args, r)
		e.int(r.typeIndex[typeKey(n.ReturnType)])
	case template.NodeNewObject:
		e.int(r.typeIndex[typeKey(n.Type)])
		e.int(r.funcIndex[funcKey(n.Callee)])
		encodeEdges(e, n.Args, r)
		e.int(r.typeIndex[typeKey(n.ReturnType)])
	case template.NodeVtableCall:
		e.int(r.funcIndex[funcKey(n.Callee)])
		encodeEdges(e, n.Args, r)
		e.int(r.typeIndex[typeKey(n.ReturnType)])
		encodeOptionalEdge(e, n.Receiver, r)
		e.int(n.VtableIndex)
		encodeCallSite(e, n.CallSite, r)
	case template.NodeItableCall:
		e.int(r.funcIndex[funcKey(n.Callee)])
		encodeEdges(e, n.Args, r)
		e.int(r.typeIndex[typeKey(n.ReturnType)])
		encodeOptionalEdge(e, n.Receiver, r)
		e.uint64(n.MethodHash)
		encodeCallSite(e, n.CallSite, r)
	case template.NodeFieldRead:
		e.string(n.Field.Name)
		e.int(r.typeIndex[typeKey(n.Field.ReceiverType)])
	case template.NodeFieldWrite:
		e.string(n.Field.Name)
		e.int(r.typeIndex[typeKey(n.Field.ReceiverType)])
		encodeOptionalEdge(e, n.Value, r)
	case template.NodeVariable, template.NodeTempVariable:
		encodeEdges(e, n.Values, r)
	default:
		return direrr.Malformed(n.Kind.String(), "summary codec: unknown node kind")
	}
	return nil
}
