package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tidalworks/flux/internal/config"
	"github.com/tidalworks/flux/internal/orchestrator"
	"github.com/tidalworks/flux/internal/types"
	"github.com/tidalworks/flux/internal/warehouse"
)

var (
	runTargets    []string
	runForce      bool
	runParallel   bool
	runMaxWorkers int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build changed models against the warehouse",
	Long: `Discovers SQL models under the project's transform root, builds the
dependency graph, and materializes every changed (or targeted) model in
dependency order, running assertions and profiling along the way.

Examples:
  flux run                          # build everything that changed
  flux run --target silver.orders   # build only this model; upstreams are not added
  flux run --force                  # rebuild everything regardless of change state
  flux run --parallel --max-workers 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadProjectConfig(projectDir)
		if err != nil {
			return fmt.Errorf("loading project config: %w", err)
		}
		seeds, err := config.LoadSeedRegistry(projectDir)
		if err != nil {
			return fmt.Errorf("loading seed registry: %w", err)
		}
		sources, err := config.LoadSourceRegistry(projectDir)
		if err != nil {
			return fmt.Errorf("loading source registry: %w", err)
		}

		transformRoot := cfg.TransformRoot
		if !filepath.IsAbs(transformRoot) {
			transformRoot = filepath.Join(projectDir, transformRoot)
		}

		wh, err := openWarehouse(rootCtx, false)
		if err != nil {
			return err
		}
		defer func() { _ = wh.Close() }()

		results, err := orchestrator.RunTransform(rootCtx, wh, workerFactory(), seeds, sources, orchestrator.Options{
			TransformRoot: transformRoot,
			Targets:       runTargets,
			Force:         runForce,
			Parallel:      runParallel,
			MaxWorkers:    runMaxWorkers,
		})
		if err != nil {
			return fmt.Errorf("run transform: %w", err)
		}

		if jsonOutput {
			if err := printResultsJSON(results); err != nil {
				return fmt.Errorf("encoding results: %w", err)
			}
		} else {
			printResults(results)
		}

		for _, r := range results {
			if r.Status == types.StatusError || r.Status == types.StatusAssertionFailed {
				os.Exit(1)
			}
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runTargets, "target", nil, "Limit the run to these models (full_name or bare name, repeatable)")
	runCmd.Flags().BoolVar(&runForce, "force", false, "Rebuild every selected model regardless of change state")
	runCmd.Flags().BoolVar(&runParallel, "parallel", false, "Execute independent models within a tier concurrently")
	runCmd.Flags().IntVar(&runMaxWorkers, "max-workers", 4, "Maximum concurrent models per tier (with --parallel)")
}

// workerFactory returns a HandleFactory that opens an independent handle
// against the same backend and path every --parallel worker uses.
func workerFactory() orchestrator.HandleFactory {
	return func() (warehouse.Handle, error) {
		return openWarehouse(rootCtx, false)
	}
}

func printResults(results map[string]*types.ModelResult) {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := results[name]
		fmt.Printf("%-40s %s\n", name, statusLabel(r))
	}
}

// printResultsJSON prints one JSON object per model result, keyed by
// full_name, matching the teacher's map[string]interface{}-then-Marshal
// convention for --json output.
func printResultsJSON(results map[string]*types.ModelResult) error {
	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	return out.Encode(results)
}

func statusLabel(r *types.ModelResult) string {
	switch r.Status {
	case types.StatusBuilt:
		return color.GreenString("built (%d rows)", r.RowCount)
	case types.StatusSkipped:
		return color.CyanString("skipped (%s)", r.Reason)
	case types.StatusAssertionFailed:
		return color.YellowString("assertion_failed")
	case types.StatusError:
		return color.RedString("error: %s", r.Error)
	default:
		return string(r.Status)
	}
}
