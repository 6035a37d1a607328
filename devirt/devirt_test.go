package devirt

import (
	"testing"

	"github.com/nativetool/devirt/constraint"
	"github.com/nativetool/devirt/ids"
	"github.com/nativetool/devirt/template"
)

// fixture mirrors constraint's animalCatFixture: Animal (abstract
// speak), Cat and Dog overriding it at vtable slot 0, and callIt()
// which only ever constructs a Dog before calling speak() on it. Since
// Cat is never instantiated anywhere, RTA narrows the call to Dog.speak
// alone, making it eligible for the direct-call rewrite.
func fixture() (*ids.TypeTable, []*template.FunctionTemplate, ids.FunctionId) {
	animal := ids.Type{Kind: ids.TypePrivate, Name: "Animal", Module: "pkg", LocalIndex: 0, IsAbstract: true}
	catSpeak := ids.FunctionId{Kind: ids.FunctionPrivate, Name: "Cat.speak", Module: "pkg", LocalIndex: 0}
	dogSpeak := ids.FunctionId{Kind: ids.FunctionPrivate, Name: "Dog.speak", Module: "pkg", LocalIndex: 1}
	caller := ids.FunctionId{Kind: ids.FunctionPrivate, Name: "callIt", Module: "pkg", LocalIndex: 2}

	cat := ids.Type{Kind: ids.TypePrivate, Name: "Cat", Module: "pkg", LocalIndex: 1, IsFinal: true,
		SuperTypes: []ids.Type{animal}, Vtable: []ids.FunctionId{catSpeak}}
	dog := ids.Type{Kind: ids.TypePrivate, Name: "Dog", Module: "pkg", LocalIndex: 2, IsFinal: true,
		SuperTypes: []ids.Type{animal}, Vtable: []ids.FunctionId{dogSpeak}}

	tt := ids.NewTypeTable()
	tt.Add(animal)
	tt.Add(cat)
	tt.Add(dog)

	callerTemplate := &template.FunctionTemplate{
		ID:             caller,
		ParameterCount: 0,
		Body: template.Body{
			Nodes: []template.Node{
				{Kind: template.NodeNewObject, Type: dog, ReturnType: dog},
				{
					Kind:        template.NodeVtableCall,
					VtableIndex: 0,
					Receiver:    &template.Edge{Node: 0},
					ReturnType:  ids.Type{Kind: ids.TypeExternal, Name: "Unit"},
					CallSite:    &template.CallSite{Enclosing: caller, Ordinal: 0},
				},
			},
			Returns: 1,
		},
	}
	catSpeakTemplate := &template.FunctionTemplate{
		ID: catSpeak, ParameterCount: 1,
		Body: template.Body{Nodes: []template.Node{{Kind: template.NodeParameter, ParamIndex: 0}}, Returns: 0},
	}
	dogSpeakTemplate := &template.FunctionTemplate{
		ID: dogSpeak, ParameterCount: 1,
		Body: template.Body{Nodes: []template.Node{{Kind: template.NodeParameter, ParamIndex: 0}}, Returns: 0},
	}

	return tt, []*template.FunctionTemplate{callerTemplate, catSpeakTemplate, dogSpeakTemplate}, caller
}

func TestResolveAndRewriteCollapsesToSingleInstantiatedOverride(t *testing.T) {
	types, templates, caller := fixture()

	g, err := constraint.Build(templates, types, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	result := constraint.Propagate(g)
	instantiated := constraint.NewInstantiatedSet(templates, ids.Type{Kind: ids.TypeExternal, Name: "String"})

	sites, err := Resolve(g, result, instantiated)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(sites) != 1 {
		t.Fatalf("len(sites) = %d, want 1", len(sites))
	}
	if len(sites[0].PossibleCallees) != 1 || sites[0].PossibleCallees[0].Name != "Dog.speak" {
		t.Fatalf("PossibleCallees = %+v, want [Dog.speak]", sites[0].PossibleCallees)
	}

	n := Rewrite(templates, sites)
	if n != 1 {
		t.Fatalf("Rewrite rewrote %d sites, want 1", n)
	}

	var callerTpl *template.FunctionTemplate
	for _, tpl := range templates {
		if tpl.ID.Equal(caller) {
			callerTpl = tpl
		}
	}
	call := callerTpl.Body.Nodes[1]
	if call.Kind != template.NodeStaticCall {
		t.Fatalf("call.Kind = %v, want NodeStaticCall", call.Kind)
	}
	if call.Callee.Name != "Dog.speak" {
		t.Fatalf("call.Callee = %v, want Dog.speak", call.Callee)
	}
	if len(call.Args) != 1 || call.Args[0].Node != 0 {
		t.Fatalf("call.Args = %+v, want [{Node:0}] (receiver folded in)", call.Args)
	}
}
