// Command flux is the thin CLI wrapper around the transform engine: it
// discovers models, drives a run, and reports results. It owns the
// process's exit code and nothing else — all real work lives in
// internal/orchestrator and its collaborators.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tidalworks/flux/internal/config"
	"github.com/tidalworks/flux/internal/debug"
	"github.com/tidalworks/flux/internal/warehouse"
	"github.com/tidalworks/flux/internal/warehouse/factory"
)

var (
	projectDir  string
	backend     string
	dbPath      string
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool

	rootCtx context.Context
)

var rootCmd = &cobra.Command{
	Use:   "flux",
	Short: "flux - a dbt-like SQL transform engine",
	Long:  `flux discovers SQL model files, builds a dependency graph, and materializes them against an embedded warehouse.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCtx = context.Background()
		debug.SetVerbose(verboseFlag)
		debug.SetQuiet(quietFlag)
		if err := config.Initialize(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: initializing config: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectDir, "project", ".", "Project directory (flux_project.toml, sources.yml, seeds.yml)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "sqlite", "Warehouse backend: sqlite or dolt")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Warehouse database path (default: <project>/.flux/warehouse)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(doctorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openWarehouse opens a handle against the configured backend, resolving
// db path defaults the same way for every subcommand.
func openWarehouse(ctx context.Context, readOnly bool) (warehouse.Handle, error) {
	path := dbPath
	if path == "" {
		path = projectDir + "/.flux/warehouse"
	}
	h, err := factory.New(ctx, backend, path, factory.Options{
		ReadOnly: readOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s warehouse at %s: %w", backend, path, err)
	}
	return h, nil
}
