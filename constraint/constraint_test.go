package constraint

import (
	"testing"

	"github.com/nativetool/devirt/ids"
	"github.com/nativetool/devirt/template"
)

// animalCatFixture builds the symbol-table shapes and templates for
// a polymorphic-dispatch scenario: Animal (abstract speak),
// Cat and Dog each overriding speak at the same vtable slot, and a
// caller whose sole statement constructs a Cat and calls speak() on it
// through the abstract interface.
func animalCatFixture() (*ids.TypeTable, []*template.FunctionTemplate) {
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

	// callIt(): node0 = NewObject Cat; node1 = VtableCall(speak) on node0.
	callerTemplate := &template.FunctionTemplate{
		ID:             caller,
		ParameterCount: 0,
		Body: template.Body{
			Nodes: []template.Node{
				{Kind: template.NodeNewObject, Type: cat, ReturnType: cat},
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

	// Cat.speak(self Cat): node0 = Parameter(0); body returns Unit singleton.
	catSpeakTemplate := &template.FunctionTemplate{
		ID:             catSpeak,
		ParameterCount: 1,
		Body: template.Body{
			Nodes:   []template.Node{{Kind: template.NodeParameter, ParamIndex: 0}},
			Returns: 0,
		},
	}
	dogSpeakTemplate := &template.FunctionTemplate{
		ID:             dogSpeak,
		ParameterCount: 1,
		Body: template.Body{
			Nodes:   []template.Node{{Kind: template.NodeParameter, ParamIndex: 0}},
			Returns: 0,
		},
	}

	return tt, []*template.FunctionTemplate{callerTemplate, catSpeakTemplate, dogSpeakTemplate}
}

func TestBuildAndPropagateNarrowsToInstantiatedReceiver(t *testing.T) {
	types, templates := animalCatFixture()

	g, err := Build(templates, types, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.CallSites) != 1 {
		t.Fatalf("len(CallSites) = %d, want 1", len(g.CallSites))
	}

	result := Propagate(g)

	cs := g.CallSites[0]
	got := result.Types(cs.ReceiverID)
	if len(got) != 1 || got[0].Name != "Cat" {
		t.Fatalf("receiver types = %+v, want [Cat]", got)
	}
}

func TestCandidateVtableCalleesFindsAllOverrides(t *testing.T) {
	types, _ := animalCatFixture()
	got := candidateVtableCallees(types, 0)
	if len(got) != 2 {
		t.Fatalf("candidateVtableCallees(0) = %+v, want 2 entries", got)
	}
}

func TestPropagateDeterministicAcrossRuns(t *testing.T) {
	types, templates := animalCatFixture()
	g1, _ := Build(templates, types, nil)
	g2, _ := Build(templates, types, nil)

	r1 := Propagate(g1)
	r2 := Propagate(g2)

	t1 := r1.Types(g1.CallSites[0].ReceiverID)
	t2 := r2.Types(g2.CallSites[0].ReceiverID)
	if len(t1) != len(t2) {
		t.Fatalf("non-deterministic result sizes: %d vs %d", len(t1), len(t2))
	}
	for i := range t1 {
		if !t1[i].Equal(t2[i]) {
			t.Errorf("non-deterministic result at %d: %v vs %v", i, t1[i], t2[i])
		}
	}
}
