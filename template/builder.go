package template

import (
	"github.com/nativetool/devirt/direrr"
	"github.com/nativetool/devirt/hir"
	"github.com/nativetool/devirt/ids"
)

// Resolver supplies the identities the Template Builder needs from the
// symbol table; *symtab.SymbolTable satisfies this implicitly.
type Resolver interface {
	TypeOf(c *hir.Class) ids.Type
	FunctionID(f *hir.Function) ids.FunctionId
	// ResolveOverride resolves a super-qualified call's actual target:
	// the override of f visible starting from super's scope, rather
	// than f's own (possibly further-overridden) declaration.
	ResolveOverride(f *hir.Function, super *hir.Class) *hir.Function
}

// Builder implements the template builder: it walks a function
// body once and creates exactly one Node per IR expression encountered
// as a value.
type Builder struct {
	res    Resolver
	finder *Finder
	vc     *VariableClosure
	fnID   ids.FunctionId

	nodes []Node

	paramNodeIdx      []int
	variableNodeIdx   map[*hir.Variable]int
	pendingVariables  []*hir.Variable
	backfilled        map[*hir.Variable]bool
	continuationParam int

	callSiteSeq int
}

// BuildTemplate runs the Template Builder over fn's body.
func BuildTemplate(fn *hir.Function, res Resolver) (*FunctionTemplate, error) {
	finder := FindElements(fn.Body)
	b := &Builder{
		res:               res,
		finder:            finder,
		vc:                NewVariableClosure(),
		fnID:              res.FunctionID(fn),
		variableNodeIdx:   make(map[*hir.Variable]int),
		backfilled:        make(map[*hir.Variable]bool),
		continuationParam: -1,
	}

	b.paramNodeIdx = make([]int, len(fn.Params))
	for i := range fn.Params {
		b.paramNodeIdx[i] = b.append(Node{Kind: NodeParameter, ParamIndex: i})
	}
	if fn.IsSuspend && len(fn.Params) > 0 {
		b.continuationParam = len(fn.Params) - 1
	} else if fn.ResumesCoroutine && len(fn.Params) > 0 {
		b.continuationParam = 0
	}

	bodyEdge, err := b.buildEdge(fn.Body)
	if err != nil {
		return nil, err
	}

	returnEdges := []Edge{bodyEdge}
	if fn.ReturnTarget != nil {
		for _, rv := range b.finder.Returns[fn.ReturnTarget] {
			e, err := b.buildEdge(rv)
			if err != nil {
				return nil, err
			}
			returnEdges = append(returnEdges, e)
		}
	}
	returnsIdx := b.newTempVariable(returnEdges)

	if err := b.drainVariables(); err != nil {
		return nil, err
	}

	return &FunctionTemplate{
		ID:             b.fnID,
		ParameterCount: len(fn.Params),
		Body:           Body{Nodes: b.nodes, Returns: returnsIdx},
	}, nil
}

func (b *Builder) append(n Node) int {
	b.nodes = append(b.nodes, n)
	return len(b.nodes) - 1
}

func (b *Builder) newTempVariable(values []Edge) int {
	return b.append(Node{Kind: NodeTempVariable, Values: values})
}

// buildEdge implements the edge-construction rule: ask the
// Extractor for e's value set, then take the fast path for a
// pass-through leaf, reduce a singleton result, or build a TempVariable
// over the per-value edges.
func (b *Builder) buildEdge(e hir.Expr) (Edge, error) {
	if isLeaf(e) {
		node, err := b.buildLeafNode(e)
		return Edge{Node: node}, err
	}
	values, err := Values(b.finder, e)
	if err != nil {
		return Edge{}, err
	}
	if len(values) == 1 {
		return b.buildReducedEdge(values[0])
	}
	edges := make([]Edge, 0, len(values))
	for _, v := range values {
		edge, err := b.buildReducedEdge(v)
		if err != nil {
			return Edge{}, err
		}
		edges = append(edges, edge)
	}
	return Edge{Node: b.newTempVariable(edges)}, nil
}

// buildReducedEdge builds an edge for a value already produced by the
// Extractor (so it is guaranteed to be a leaf or a cast over one).
func (b *Builder) buildReducedEdge(v hir.Expr) (Edge, error) {
	if cast, ok := v.(hir.TypeOperatorCall); ok && cast.IsCast {
		inner, err := b.buildReducedEdge(cast.Argument)
		if err != nil {
			return Edge{}, err
		}
		castTo := b.res.TypeOf(cast.TypeOperand)
		return Edge{Node: inner.Node, CastTo: &castTo}, nil
	}
	node, err := b.buildLeafNode(v)
	return Edge{Node: node}, err
}

func isLeaf(e hir.Expr) bool {
	switch v := e.(type) {
	case hir.Call, hir.ConstructorCall, hir.DelegatingConstructorCall,
		hir.GetValue, hir.GetField, hir.GetObjectValue, hir.Const, hir.SetField:
		return true
	case hir.TypeOperatorCall:
		return !v.IsCast
	default:
		return false
	}
}

func (b *Builder) buildLeafNode(e hir.Expr) (int, error) {
	switch v := e.(type) {
	case hir.Call:
		return b.buildCall(v)
	case hir.ConstructorCall:
		return b.buildConstructorCall(v)
	case hir.DelegatingConstructorCall:
		return b.buildDelegatingConstructorCall(v)
	case hir.GetValue:
		return b.buildGetValue(v)
	case hir.GetField:
		return b.buildGetField(v)
	case hir.SetField:
		return b.buildSetField(v)
	case hir.GetObjectValue:
		return b.append(Node{Kind: NodeSingleton, Type: b.res.TypeOf(v.Type)}), nil
	case hir.Const:
		return b.append(Node{Kind: NodeConst, Type: b.res.TypeOf(v.Type)}), nil
	case hir.TypeOperatorCall: // non-cast: declared-type Const
		return b.append(Node{Kind: NodeConst, Type: b.res.TypeOf(v.DeclaredType)}), nil
	default:
		return 0, direrr.Malformed("node", "unsupported leaf expression kind")
	}
}

func (b *Builder) buildArgs(args []hir.Expr) ([]Edge, error) {
	out := make([]Edge, 0, len(args))
	for _, a := range args {
		e, err := b.buildEdge(a)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (b *Builder) buildCall(v hir.Call) (int, error) {
	if v.IsGetContinuation {
		if b.continuationParam < 0 {
			return 0, direrr.Malformed(b.fnID.String(), "getContinuation used but no continuation parameter")
		}
		return b.paramNodeIdx[b.continuationParam], nil
	}
	if v.Callee == nil {
		return 0, direrr.Malformed(b.fnID.String(), "call has no callee")
	}

	callee := v.Callee
	if v.SuperQualifier != nil {
		if resolved := b.res.ResolveOverride(v.Callee, v.SuperQualifier); resolved != nil {
			callee = resolved
		}
	}

	receiver := v.DispatchReceiver
	args := v.Args
	if receiver == nil && v.ExtensionReceiver != nil {
		args = append([]hir.Expr{v.ExtensionReceiver}, args...)
	}
	argEdges, err := b.buildArgs(args)
	if err != nil {
		return 0, err
	}
	if callee.IsSuspend {
		if b.continuationParam < 0 {
			return 0, direrr.Malformed(b.fnID.String(), "suspend call in non-suspend function")
		}
		argEdges = append(argEdges, Edge{Node: b.paramNodeIdx[b.continuationParam]})
	}

	var recvEdge *Edge
	if receiver != nil {
		e, err := b.buildEdge(receiver)
		if err != nil {
			return 0, err
		}
		recvEdge = &e
	}

	// A super-qualified call always dispatches statically to the
	// resolved override, bypassing the vtable/itable slot its unqualified
	// form would otherwise go through.
	overridable := v.SuperQualifier == nil && callee.Owner != nil &&
		(callee.VtableSlot >= 0 || callee.MethodHash != 0)

	if !overridable {
		return b.append(Node{
			Kind:       NodeStaticCall,
			Callee:     b.res.FunctionID(callee),
			Args:       argEdges,
			ReturnType: b.res.TypeOf(callee.ReturnType),
			Receiver:   recvEdge,
		}), nil
	}

	if callee.Owner.IsInterface {
		return b.append(Node{
			Kind:       NodeItableCall,
			Callee:     b.res.FunctionID(callee),
			Args:       argEdges,
			ReturnType: b.res.TypeOf(callee.ReturnType),
			Receiver:   recvEdge,
			MethodHash: callee.MethodHash,
			CallSite:   b.nextCallSite(),
		}), nil
	}
	if callee.VtableSlot < 0 {
		return 0, direrr.Malformed(callee.Name, "overridable class method has no vtable slot")
	}
	return b.append(Node{
		Kind:        NodeVtableCall,
		Callee:      b.res.FunctionID(callee),
		Args:        argEdges,
		ReturnType:  b.res.TypeOf(callee.ReturnType),
		Receiver:    recvEdge,
		VtableIndex: callee.VtableSlot,
		CallSite:    b.nextCallSite(),
	}), nil
}

func (b *Builder) nextCallSite() *CallSite {
	cs := &CallSite{Enclosing: b.fnID, Ordinal: b.callSiteSeq}
	b.callSiteSeq++
	return cs
}

func (b *Builder) buildConstructorCall(v hir.ConstructorCall) (int, error) {
	argEdges, err := b.buildArgs(v.Args)
	if err != nil {
		return 0, err
	}
	return b.append(Node{
		Kind:       NodeNewObject,
		Callee:     b.res.FunctionID(v.Ctor),
		Args:       argEdges,
		ReturnType: b.res.TypeOf(v.Class),
		Type:       b.res.TypeOf(v.Class),
	}), nil
}

func (b *Builder) buildDelegatingConstructorCall(v hir.DelegatingConstructorCall) (int, error) {
	if len(b.paramNodeIdx) == 0 {
		return 0, direrr.Malformed(b.fnID.String(), "delegating constructor call has no receiver parameter")
	}
	argEdges, err := b.buildArgs(v.Args)
	if err != nil {
		return 0, err
	}
	implicitThis := Edge{Node: b.paramNodeIdx[0]}
	return b.append(Node{
		Kind:       NodeStaticCall,
		Callee:     b.res.FunctionID(v.Callee),
		Args:       append([]Edge{implicitThis}, argEdges...),
		ReturnType: b.res.TypeOf(hir.Unit),
	}), nil
}

func (b *Builder) buildGetValue(v hir.GetValue) (int, error) {
	if v.Param != nil {
		return b.paramNodeIdx[v.Param.Index], nil
	}
	if v.Variable == nil {
		return 0, direrr.Malformed(b.fnID.String(), "GetValue has neither Param nor Variable")
	}
	if idx, ok := b.variableNodeIdx[v.Variable]; ok {
		return idx, nil
	}
	idx := b.append(Node{Kind: NodeVariable})
	b.variableNodeIdx[v.Variable] = idx
	b.pendingVariables = append(b.pendingVariables, v.Variable)
	return idx, nil
}

func (b *Builder) buildGetField(v hir.GetField) (int, error) {
	var recvEdge *Edge
	if v.Receiver != nil {
		e, err := b.buildEdge(v.Receiver)
		if err != nil {
			return 0, err
		}
		recvEdge = &e
	}
	return b.append(Node{
		Kind:     NodeFieldRead,
		Receiver: recvEdge,
		Field:    fieldKey(b.res, v.Field),
	}), nil
}

func (b *Builder) buildSetField(v hir.SetField) (int, error) {
	var recvEdge *Edge
	if v.Receiver != nil {
		e, err := b.buildEdge(v.Receiver)
		if err != nil {
			return 0, err
		}
		recvEdge = &e
	}
	valueEdge, err := b.buildEdge(v.Value)
	if err != nil {
		return 0, err
	}
	return b.append(Node{
		Kind:     NodeFieldWrite,
		Receiver: recvEdge,
		Field:    fieldKey(b.res, v.Field),
		Value:    &valueEdge,
	}), nil
}

func fieldKey(res Resolver, f *hir.Field) FieldKey {
	if f == nil {
		return FieldKey{}
	}
	return FieldKey{Name: f.Name, ReceiverType: res.TypeOf(f.ReceiverType)}
}

// drainVariables backfills every Variable node from its variable closure,
// draining b.pendingVariables as a queue since backfilling one variable
// may discover fresh ones nested in its closure values.
func (b *Builder) drainVariables() error {
	for i := 0; i < len(b.pendingVariables); i++ {
		v := b.pendingVariables[i]
		if b.backfilled[v] {
			continue
		}
		b.backfilled[v] = true
		closureVals := b.vc.Closure(v)
		edges := make([]Edge, 0, len(closureVals))
		for _, cv := range closureVals {
			e, err := b.buildEdge(cv)
			if err != nil {
				return err
			}
			edges = append(edges, e)
		}
		b.nodes[b.variableNodeIdx[v]].Values = edges
	}
	return nil
}
