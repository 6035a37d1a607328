// Package cmd implements the devirt command-line tool: a cobra command
// tree over the analysis pipeline (symtab -> template -> summary ->
// constraint -> devirt), grounded on go-dws/cmd/dwscript/cmd's own
// root/subcommand layout.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "devirt",
	Short: "Whole-program devirtualization analyzer",
	Long: `devirt links per-module binary summaries produced by a frontend's
compiler pass, builds the whole-program interprocedural constraint
graph, propagates concrete types to a fixed point, and reports each
virtual call site's possible callees after Rapid Type Analysis
narrowing, optionally rewriting those that resolve to a single private
implementation into direct calls.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(`{{with .Name}}{{printf "%%s " .}}{{end}}{{printf "version %%s" .Version}}
Commit: %s
Built:  %s
`, GitCommit, BuildDate))

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
}
