package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nativetool/devirt/constraint"
	"github.com/nativetool/devirt/devirt"
	"github.com/nativetool/devirt/ids"
	"github.com/nativetool/devirt/summary"
	"github.com/nativetool/devirt/template"
	"github.com/spf13/cobra"
)

var (
	linkOutFile    string
	linkRewrite    bool
	linkStringName string
)

var linkCmd = &cobra.Command{
	Use:   "link [summary-files...]",
	Short: "Link module summaries and report devirtualizable call sites",
	Long: `link reads one or more binary module summaries (produced upstream by
symtab.Build + template.BuildTemplate + summary.Encode), merges their
declared types and function templates into a single whole-program view,
builds the interprocedural constraint graph, propagates concrete types to
a fixed point, and resolves every virtual call site via Rapid Type
Analysis.

Examples:
  # Report devirtualizable call sites across two linked modules
  devirt link app.devirtsum lib.devirtsum

  # Also rewrite resolved call sites and re-encode the result
  devirt link app.devirtsum lib.devirtsum --rewrite -o linked.devirtsum`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLink,
}

func init() {
	rootCmd.AddCommand(linkCmd)

	linkCmd.Flags().StringVarP(&linkOutFile, "output", "o", "", "write the (optionally rewritten) merged templates to this summary file")
	linkCmd.Flags().BoolVar(&linkRewrite, "rewrite", false, "replace virtual calls that resolve to a single Private callee with direct calls before reporting")
	linkCmd.Flags().StringVar(&linkStringName, "string-type", "String", "qualified name of the builtin string type, unconditionally treated as instantiated")
}

func runLink(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")

	types := ids.NewTypeTable()
	var templates []*template.FunctionTemplate
	var moduleName string
	var numVirtuallyCallable int

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		mod, err := summary.Decode(data)
		if err != nil {
			return fmt.Errorf("decoding %s: %w", path, err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "linked %s: %d types, %d functions, %d templates\n",
				path, len(mod.Types), len(mod.Functions), len(mod.Templates))
		}
		if moduleName == "" {
			moduleName = mod.Name
		}
		numVirtuallyCallable += mod.NumberOfVirtuallyCallableFunctions
		for _, t := range mod.Types {
			types.Add(t)
		}
		templates = append(templates, mod.Templates...)
	}

	resolveExternals(types, templates)

	// Linking combines already-compiled summaries with no hir.Module to
	// compute an actual root set from, so every Public function across
	// the linked modules is conservatively treated as a root.
	g, err := constraint.Build(templates, types, nil)
	if err != nil {
		return fmt.Errorf("building constraint graph: %w", err)
	}
	result := constraint.Propagate(g)
	stringType := ids.Type{Kind: ids.TypeExternal, Name: linkStringName}
	instantiated := constraint.NewInstantiatedSet(templates, stringType)

	sites, err := devirt.Resolve(g, result, instantiated)
	if err != nil {
		return fmt.Errorf("resolving call sites: %w", err)
	}

	if linkRewrite {
		n := devirt.Rewrite(templates, sites)
		if verbose {
			fmt.Fprintf(os.Stderr, "rewrote %d call site(s) to direct calls\n", n)
		}
	}

	if linkOutFile != "" {
		out, err := summary.Encode(moduleName, numVirtuallyCallable, types.Sorted(), templates)
		if err != nil {
			return fmt.Errorf("re-encoding merged summary: %w", err)
		}
		if err := os.WriteFile(linkOutFile, out, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", linkOutFile, err)
		}
	}

	return printReport(cmd, sites)
}

// resolveExternals rewrites External type/function references that
// match a Public identity declared by one of the linked modules, so a
// virtual call, field access, or supertype edge that crossed a module
// boundary links against the owning library's actual class instead of
// staying an opaque External: Public names are registered precisely so
// another module's External references to them can be resolved once
// every summary involved is on hand.
func resolveExternals(types *ids.TypeTable, templates []*template.FunctionTemplate) {
	publicTypes := make(map[string]ids.Type)
	publicFuncs := make(map[string]ids.FunctionId)
	for _, t := range types.Sorted() {
		if t.Kind == ids.TypePublic {
			publicTypes[t.Name] = t
		}
		for _, f := range t.Vtable {
			if f.Kind == ids.FunctionPublic {
				publicFuncs[f.Name] = f
			}
		}
		for _, f := range t.Itable {
			if f.Kind == ids.FunctionPublic {
				publicFuncs[f.Name] = f
			}
		}
	}
	for _, tpl := range templates {
		if tpl.ID.Kind == ids.FunctionPublic {
			publicFuncs[tpl.ID.Name] = tpl.ID
		}
	}

	resolveType := func(t ids.Type) ids.Type {
		if t.Kind == ids.TypeExternal {
			if pub, ok := publicTypes[t.Name]; ok {
				return pub
			}
		}
		return t
	}
	resolveFunc := func(f ids.FunctionId) ids.FunctionId {
		if f.Kind == ids.FunctionExternal {
			if pub, ok := publicFuncs[f.Name]; ok {
				return pub
			}
		}
		return f
	}

	for _, t := range types.Sorted() {
		changed := false
		supers := make([]ids.Type, len(t.SuperTypes))
		for i, s := range t.SuperTypes {
			r := resolveType(s)
			if r.Kind != s.Kind {
				changed = true
			}
			supers[i] = r
		}
		if changed {
			t.SuperTypes = supers
			types.Add(t)
		}
	}

	for _, tpl := range templates {
		for i := range tpl.Body.Nodes {
			n := &tpl.Body.Nodes[i]
			switch n.Kind {
			case template.NodeStaticCall, template.NodeVtableCall, template.NodeItableCall:
				n.Callee = resolveFunc(n.Callee)
				n.ReturnType = resolveType(n.ReturnType)
			case template.NodeNewObject:
				n.Callee = resolveFunc(n.Callee)
				n.ReturnType = resolveType(n.ReturnType)
				n.Type = resolveType(n.Type)
			case template.NodeConst, template.NodeSingleton:
				n.Type = resolveType(n.Type)
			case template.NodeFieldRead, template.NodeFieldWrite:
				n.Field.ReceiverType = resolveType(n.Field.ReceiverType)
			}
		}
	}
}

func printReport(cmd *cobra.Command, sites []devirt.Site) error {
	type reportEntry struct {
		Function string   `json:"function"`
		Ordinal  int      `json:"ordinal"`
		Callees  []string `json:"possible_callees"`
		Resolved bool     `json:"resolved"`
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
			Resolved: len(s.PossibleCallees) == 1,
		})
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
