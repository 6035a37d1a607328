package summary

import (
	"fmt"

	"github.com/nativetool/devirt/direrr"
	"github.com/nativetool/devirt/ids"
	"github.com/nativetool/devirt/template"
)

// typeShell is a Type read before its SuperTypes/Vtable/Itable can be
// resolved (those index into arrays not yet fully decoded); rawSuper/
// rawVtable/rawItable hold the raw indices for the second pass.
type typeShell struct {
	t         ids.Type
	rawSuper  []int
	rawVtable []int
	rawItable map[uint64]int
}

// Decode is the inverse of Encode, grounded on
// golang.org/x/tools/internal/gcimporter's two-pass reader idiom
// (export data also reads a flat object list before resolving the
// cross-references between entries).
func Decode(data []byte) (*Module, error) {
	d := newDecoder(data)

	version := d.byte()
	if version != formatVersion {
		return nil, direrr.Malformed(fmt.Sprintf("version %d", version), "summary codec: unsupported format version")
	}
	name := d.string()
	numVirtual := d.int()

	typeCount := d.int()
	shells := make([]typeShell, typeCount)
	for i := 0; i < typeCount; i++ {
		shells[i] = decodeTypeShell(d)
	}

	funcCount := d.int()
	funcs := make([]ids.FunctionId, funcCount)
	for i := 0; i < funcCount; i++ {
		funcs[i] = decodeFunc(d)
	}

	templateCount := d.int()
	templates := make([]*template.FunctionTemplate, templateCount)
	for i := 0; i < templateCount; i++ {
		tmpl, err := decodeTemplate(d, shells, funcs)
		if err != nil {
			return nil, err
		}
		templates[i] = tmpl
	}

	types := resolveTypes(shells, funcs)

	return &Module{
		Name:                               name,
		NumberOfVirtuallyCallableFunctions: numVirtual,
		Types:                              types,
		Functions:                          funcs,
		Templates:                          templates,
	}, nil
}

func decodeTypeShell(d *decoder) typeShell {
	var sh typeShell
	sh.t.Kind = ids.TypeKind(d.byte())
	sh.t.Name = d.string()
	sh.t.Module = d.string()
	sh.t.LocalIndex = d.int()
	if !sh.t.IsDeclared() {
		return sh
	}
	sh.t.IsFinal = d.bool()
	sh.t.IsAbstract = d.bool()

	superCount := d.int()
	sh.rawSuper = make([]int, superCount)
	for i := range sh.rawSuper {
		sh.rawSuper[i] = d.int()
	}

	vtableCount := d.int()
	sh.rawVtable = make([]int, vtableCount)
	for i := range sh.rawVtable {
		sh.rawVtable[i] = d.int()
	}

	itableCount := d.int()
	if itableCount > 0 {
		sh.rawItable = make(map[uint64]int, itableCount)
	}
	for i := 0; i < itableCount; i++ {
		h := d.uint64()
		sh.rawItable[h] = d.int()
	}
	return sh
}

func decodeFunc(d *decoder) ids.FunctionId {
	var f ids.FunctionId
	f.Kind = ids.FunctionKind(d.byte())
	f.Name = d.string()
	f.Module = d.string()
	f.LocalIndex = d.int()
	f.SymbolTableIndex = d.int()
	return f
}

// resolveTypes fills each shell's SuperTypes/Vtable/Itable now that both
// the full shell array and the full function array exist.
func resolveTypes(shells []typeShell, funcs []ids.FunctionId) []ids.Type {
	out := make([]ids.Type, len(shells))
	for i, sh := range shells {
		t := sh.t
		for _, si := range sh.rawSuper {
			t.SuperTypes = append(t.SuperTypes, shells[si].t)
		}
		for _, fi := range sh.rawVtable {
			t.Vtable = append(t.Vtable, funcs[fi])
		}
		if sh.rawItable != nil {
			t.Itable = make(map[uint64]ids.FunctionId, len(sh.rawItable))
			for h, fi := range sh.rawItable {
				t.Itable[h] = funcs[fi]
			}
		}
		out[i] = t
	}
	return out
}

func typeAt(shells []typeShell, i int) ids.Type { return shells[i].t }

func decodeTemplate(d *decoder, shells []typeShell, funcs []ids.FunctionId) (*template.FunctionTemplate, error) {
	t := &template.FunctionTemplate{}
	t.ID = funcs[d.int()]
	t.ParameterCount = d.int()
	nodeCount := d.int()
	t.Body.Nodes = make([]template.Node, nodeCount)
	for i := 0; i < nodeCount; i++ {
		n, err := decodeNode(d, shells, funcs)
		if err != nil {
			return nil, err
		}
		t.Body.Nodes[i] = n
	}
	t.Body.Returns = d.int()
	return t, nil
}

func decodeEdge(d *decoder, shells []typeShell) template.Edge {
	var e template.Edge
	e.Node = d.int()
	if d.bool() {
		ct := typeAt(shells, d.int())
		e.CastTo = &ct
	}
	return e
}

func decodeEdges(d *decoder, shells []typeShell) []template.Edge {
	n := d.int()
	if n == 0 {
		return nil
	}
	out := make([]template.Edge, n)
	for i := range out {
		out[i] = decodeEdge(d, shells)
	}
	return out
}

func decodeOptionalEdge(d *decoder, shells []typeShell) *template.Edge {
	if !d.bool() {
		return nil
	}
	e := decodeEdge(d, shells)
	return &e
}

func decodeCallSite(d *decoder, funcs []ids.FunctionId) *template.CallSite {
	if !d.bool() {
		return nil
	}
	return &template.CallSite{
		Enclosing: funcs[d.int()],
		Ordinal:   d.int(),
	}
}

func decodeNode(d *decoder, shells []typeShell, funcs []ids.FunctionId) (template.Node, error) {
	var n template.Node
	n.Kind = template.NodeKind(d.byte())
	switch n.Kind {
	case template.NodeParameter:
		n.ParamIndex = d.int()
	case template.NodeConst, template.NodeSingleton:
		n.Type = typeAt(shells, d.int())
	case template.NodeStaticCall:
		n.Callee = funcs[d.int()]
		n.Args = decodeEdges(d, shells)
		n.ReturnType = typeAt(shells, d.int())
	case template.NodeNewObject:
		n.Type = typeAt(shells, d.int())
		n.Callee = funcs[d.int()]
		n.Args = decodeEdges(d, shells)
		n.ReturnType = typeAt(shells, d.int())
	case template.NodeVtableCall:
		n.Callee = funcs[d.int()]
		n.Args = decodeEdges(d, shells)
		n.ReturnType = typeAt(shells, d.int())
		n.Receiver = decodeOptionalEdge(d, shells)
		n.VtableIndex = d.int()
		n.CallSite = decodeCallSite(d, funcs)
	case template.NodeItableCall:
		n.Callee = funcs[d.int()]
		n.Args = decodeEdges(d, shells)
		n.ReturnType = typeAt(shells, d.int())
		n.Receiver = decodeOptionalEdge(d, shells)
		n.MethodHash = d.uint64()
		n.CallSite = decodeCallSite(d, funcs)
	case template.NodeFieldRead:
		n.Field.Name = d.string()
		n.Field.ReceiverType = typeAt(shells, d.int())
	case template.NodeFieldWrite:
		n.Field.Name = d.string()
		n.Field.ReceiverType = typeAt(shells, d.int())
		n.Value = decodeOptionalEdge(d, shells)
	case template.NodeVariable, template.NodeTempVariable:
		n.Values = decodeEdges(d, shells)
	default:
		return n, direrr.Malformed(n.Kind.String(), "summary codec: unknown node kind on decode")
	}
	return n, nil
}
