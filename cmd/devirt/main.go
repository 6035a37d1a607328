// Command devirt links binary module summaries and reports (or applies)
// whole-program devirtualization decisions.
package main

import (
	"fmt"
	"os"

	"github.com/nativetool/devirt/cmd/devirt/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
