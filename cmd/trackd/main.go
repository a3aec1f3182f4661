// Package main implements the trackd CLI: a phase-gated work tracking
// daemon and its command surface.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/trackd/internal/coordinator"
)

// Version information (set via ldflags during build).
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	// configPath overrides the default config file location.
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// The exit code carries the error class so scripts can branch on
		// gate failures versus conflicts without parsing output.
		os.Exit(coordinator.ResponseCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "trackd",
	Short: "Phase-gated work item tracking",
	Long: `trackd tracks work items through a phase-gated lifecycle. Items
advance one boundary at a time; each boundary is guarded by a gate whose
criteria must hold before the transition is applied.

Exit codes:
  0  success
  1  entity not found / internal error
  2  illegal transition or forbidden phase
  3  gate not satisfied (block report printed)
  4  storage conflict (concurrent modification)`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/trackd/config.yaml)")
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"trackd %s (commit %s, built %s)\n", version, gitCommit, buildDate))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(advanceCmd)
	rootCmd.AddCommand(transitionCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(backlogCmd)
	rootCmd.AddCommand(ideaCmd)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
