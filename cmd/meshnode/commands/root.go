package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// configPath is the path to the meshnode YAML configuration file, shared
// by every subcommand that loads configuration.
var configPath string

// rootCmd is the top-level cobra command for meshnode.
var rootCmd = &cobra.Command{
	Use:   "meshnode",
	Short: "Simulation harness for the mesh discovery and election engine",
	Long:  "meshnode drives an in-process simulation of one or more mesh.Engine instances over a shared lossy broadcast medium, for exercising discovery and clusterhead election without real radios.",

	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "meshnode.yml",
		"path to the meshnode YAML configuration file")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
