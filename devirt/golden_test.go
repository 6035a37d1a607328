package devirt

import (
	"encoding/json"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"

	"github.com/nativetool/devirt/constraint"
	"github.com/nativetool/devirt/ids"
)

// golden-snapshots the resolved-sites report for the Animal/Cat/Dog
// fixture, so an accidental change to propagation or RTA narrowing
// shows up as a snapshot diff rather than a silent regression. Rewrite
// is not run here.
func TestResolveSnapshot(t *testing.T) {
	types, templates, _ := fixture()

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

	type reportEntry struct {
		Function string   `json:"function"`
		Ordinal  int      `json:"ordinal"`
		Callees  []string `json:"possible_callees"`
	}
	report := make([]reportEntry, 0, len(sites))
	for _, s := range sites {
		names := make([]string, len(s.PossibleCallees))
		for i, c := range s.PossibleCallees {
			names[i] = c.String()
		}
		report = append(report, reportEntry{
			Function: s.Enclosing.String(),
			Ordinal:  s.Ordinal,
			Callees:  names,
		})
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		t.Fatalf("MarshalIndent: %v", err)
	}
	snaps.MatchSnapshot(t, string(out))
}
