// Package commands implements the gamemaster demonstration CLI: enough
// of the excluded external driver's surface (run a scenario, optional
// save/load path, optional grace-time override) to show how the core
// packages wire together. It is explicitly not the interactive
// state-inspection shell, the renderers, or the informational
// list/info flags the original driver also has.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

var rootCmd = &cobra.Command{
	Use:   "gamemaster",
	Short: "Gamemaster - a demonstration Game Master binary",
	Long: `Gamemaster wires the blackboard, registry, interest index, wait
registry, and scheduler into a single running game, reading a scenario
from a YAML file. It exists to demonstrate the core's external
interfaces, not to replace the excluded CLI driver's full surface.`,
	Version: version,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information reported by --version.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
