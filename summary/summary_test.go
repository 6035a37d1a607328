package summary

import (
	"reflect"
	"testing"

	"github.com/nativetool/devirt/ids"
	"github.com/nativetool/devirt/template"
)

func findType(types []ids.Type, want ids.Type) (ids.Type, bool) {
	for _, t := range types {
		if t.Equal(want) {
			return t, true
		}
	}
	return ids.Type{}, false
}

// buildFixture mimics what symtab.Build would have produced for a tiny
// two-class, one-method program: Animal (abstract, speak) and Cat
// (final, overrides speak), plus a single Cat.speak template whose body
// is just a constant (a monomorphic-field scenario reduced to
// its symbol-table shape).
func buildFixture() (string, int, []ids.Type, []*template.FunctionTemplate) {
	animal := ids.Type{Kind: ids.TypePrivate, Name: "Animal", Module: "pkg", LocalIndex: 0, IsAbstract: true}
	catSpeak := ids.FunctionId{Kind: ids.FunctionPrivate, Name: "Cat.speak", Module: "pkg", LocalIndex: 1, SymbolTableIndex: 0}
	cat := ids.Type{
		Kind: ids.TypePrivate, Name: "Cat", Module: "pkg", LocalIndex: 1, IsFinal: true,
		SuperTypes: []ids.Type{animal},
		Vtable:     []ids.FunctionId{catSpeak},
	}

	tt := ids.NewTypeTable()
	tt.Add(animal)
	tt.Add(cat)

	constNode := template.Node{Kind: template.NodeConst, Type: ids.Type{Kind: ids.TypeExternal, Name: "Int"}}
	templates := []*template.FunctionTemplate{
		{
			ID:             catSpeak,
			ParameterCount: 1,
			Body: template.Body{
				Nodes:   []template.Node{constNode},
				Returns: 0,
			},
		},
	}
	return "pkg", 1, tt.Sorted(), templates
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	name, numVirtual, types, templates := buildFixture()

	data, err := Encode(name, numVirtual, types, templates)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	mod, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if mod.Name != "pkg" {
		t.Errorf("Name = %q, want pkg", mod.Name)
	}
	if mod.NumberOfVirtuallyCallableFunctions != 1 {
		t.Errorf("NumberOfVirtuallyCallableFunctions = %d, want 1", mod.NumberOfVirtuallyCallableFunctions)
	}

	cat, ok := findType(mod.Types, ids.Type{Kind: ids.TypePrivate, Module: "pkg", LocalIndex: 1})
	if !ok {
		t.Fatalf("decoded types missing Cat: %+v", mod.Types)
	}
	if !cat.IsFinal || cat.IsAbstract {
		t.Errorf("Cat flags = final:%v abstract:%v, want final:true abstract:false", cat.IsFinal, cat.IsAbstract)
	}
	if len(cat.SuperTypes) != 1 || cat.SuperTypes[0].Name != "Animal" {
		t.Errorf("Cat.SuperTypes = %+v, want [Animal]", cat.SuperTypes)
	}
	if len(cat.Vtable) != 1 || cat.Vtable[0].Name != "Cat.speak" {
		t.Errorf("Cat.Vtable = %+v, want [Cat.speak]", cat.Vtable)
	}

	if len(mod.Templates) != 1 {
		t.Fatalf("len(Templates) = %d, want 1", len(mod.Templates))
	}
	got := mod.Templates[0]
	if got.ParameterCount != 1 {
		t.Errorf("ParameterCount = %d, want 1", got.ParameterCount)
	}
	if len(got.Body.Nodes) != 1 || got.Body.Nodes[0].Kind != template.NodeConst {
		t.Fatalf("Body.Nodes = %+v, want one NodeConst", got.Body.Nodes)
	}
	if got.Body.Nodes[0].Type.Name != "Int" {
		t.Errorf("node Type.Name = %q, want Int", got.Body.Nodes[0].Type.Name)
	}
	if got.Body.Returns != 0 {
		t.Errorf("Body.Returns = %d, want 0", got.Body.Returns)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	name, numVirtual, types, templates := buildFixture()

	first, err := Encode(name, numVirtual, types, templates)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	second, err := Encode(name, numVirtual, types, templates)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Encode is not deterministic across repeated runs on the same input")
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	data := []byte{0xFF, 0x00}
	if _, err := Decode(data); err == nil {
		t.Errorf("Decode accepted an unknown format version")
	}
}
