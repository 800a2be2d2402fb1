// Package display decides between human and machine output for commands.
package display

import (
	"os"

	"github.com/spf13/cobra"
)

// OutputEnv set to "json" makes every command print JSON
const OutputEnv = "COLLECTOR_OUTPUT"

// ShouldOutputJSON determines if a command should output JSON based on
// flags and the environment
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return os.Getenv(OutputEnv) == "json"
	}

	// An explicit --json=false wins over the environment
	if f := cmd.Flags().Lookup("json"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetBool("json")
		return v
	}

	return os.Getenv(OutputEnv) == "json"
}
