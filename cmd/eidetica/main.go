// Command eidetica runs and manages a single node of a local-first,
// content-addressed database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "eidetica",
	Short: "Eidetica - a local-first, content-addressed, authenticated database",
	Long: `Eidetica stores data as a Merkle DAG of signed entries, merged with
CRDT semantics, and synced peer-to-peer with no server-authoritative
ordering.`,
	Version: Version,
}

var configPath string

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"eidetica version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config YAML file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(databaseCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(serveCmd)

	databaseCmd.AddCommand(databaseCreateCmd)
	databaseCmd.AddCommand(databaseListCmd)

	syncCmd.AddCommand(syncAddPeerCmd)
	syncCmd.AddCommand(syncStatusCmd)
}
