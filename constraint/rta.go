package constraint

import (
	"github.com/nativetool/devirt/ids"
	"github.com/nativetool/devirt/template"
)

// Instantiated implements the RTA instantiation scan: the
// program-wide set of concrete classes actually constructed anywhere,
// used to bound which vtable/itable overrides a virtual call can
// plausibly reach (Rapid Type Analysis). The string
// type is included unconditionally, since string literals construct it
// via NodeConst rather than NodeNewObject/NodeSingleton and so would
// otherwise never appear here.
func Instantiated(templates []*template.FunctionTemplate, stringType ids.Type) []ids.Type {
	set := newTypeSet()
	set.add(stringType)
	for _, t := range templates {
		for _, n := range t.Body.Nodes {
			if n.Kind == template.NodeNewObject || n.Kind == template.NodeSingleton {
				set.add(n.Type)
			}
		}
	}
	return set.Sorted()
}

// InstantiatedSet is Instantiated's result as a membership test, for
// the devirtualizer's candidate filter.
type InstantiatedSet struct {
	byKey map[string]bool
}

// NewInstantiatedSet builds a membership test over Instantiated's result.
func NewInstantiatedSet(templates []*template.FunctionTemplate, stringType ids.Type) *InstantiatedSet {
	s := &InstantiatedSet{byKey: make(map[string]bool)}
	for _, t := range Instantiated(templates, stringType) {
		s.byKey[typeSetKey(t)] = true
	}
	return s
}

// Contains reports whether t was constructed somewhere in the program.
func (s *InstantiatedSet) Contains(t ids.Type) bool {
	return s.byKey[typeSetKey(t)]
}
