package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nativetool/devirt/summary"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <summary-file>",
	Short: "Print a binary module summary's contents as JSON",
	Long: `inspect decodes a single binary module summary and prints its types,
functions and templates as JSON, for debugging what a frontend's compiler
pass actually emitted.

Examples:
  devirt inspect app.devirtsum`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	mod, err := summary.Decode(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", args[0], err)
	}

	type dump struct {
		Name                               string   `json:"name"`
		NumberOfVirtuallyCallableFunctions int      `json:"number_of_virtually_callable_functions"`
		Types                              []string `json:"types"`
		Functions                          []string `json:"functions"`
		Templates                          []string `json:"templates"`
	}
	out := dump{
		Name:                               mod.Name,
		NumberOfVirtuallyCallableFunctions: mod.NumberOfVirtuallyCallableFunctions,
	}
	for _, t := range mod.Types {
		out.Types = append(out.Types, t.String())
	}
	for _, f := range mod.Functions {
		out.Functions = append(out.Functions, f.String())
	}
	for _, t := range mod.Templates {
		out.Templates = append(out.Templates, t.ID.String())
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
