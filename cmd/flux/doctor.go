package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tidalworks/flux/internal/warehouse"
)

// doctorRunEntry is one row of the recent-runs report, shared by both the
// human-readable table and the --json encoding.
type doctorRunEntry struct {
	Target    string `json:"target"`
	Status    string `json:"status"`
	StartedAt string `json:"started_at"`
	Error     string `json:"error,omitempty"`
}

// doctorReport is the full --json payload for `flux doctor`.
type doctorReport struct {
	ModelStateCount int64            `json:"model_state_count"`
	RunLogCount     int64            `json:"run_log_count"`
	RecentRuns      []doctorRunEntry `json:"recent_runs"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Inspect the metadata schema without running anything",
	Long: `Reports on the _dp_internal metadata schema: how many models have
stored state, how many run_log entries exist, and the ten most recent
run_log entries. Assertion results are not reported. Read-only — doctor
never materializes a model.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		wh, err := openWarehouse(rootCtx, true)
		if err != nil {
			return err
		}
		defer func() { _ = wh.Close() }()

		if err := wh.EnsureMetaTable(rootCtx); err != nil {
			return fmt.Errorf("doctor: ensuring metadata schema: %w", err)
		}

		d := wh.Dialect()
		meta := d.QuoteIdent("_dp_internal")

		modelStateCount, err := tableCount(rootCtx, wh, meta, "model_state")
		if err != nil {
			return err
		}
		runLogCount, err := tableCount(rootCtx, wh, meta, "run_log")
		if err != nil {
			return err
		}

		rows, err := wh.Execute(rootCtx, fmt.Sprintf(
			"SELECT target, status, started_at, error FROM %s.%s ORDER BY started_at DESC LIMIT 10",
			meta, d.QuoteIdent("run_log")))
		if err != nil {
			return fmt.Errorf("doctor: reading recent run_log entries: %w", err)
		}

		recent := make([]doctorRunEntry, 0, len(rows.Data))
		for _, row := range rows.Data {
			var entry doctorRunEntry
			if err := scanInto(row, &entry.Target, &entry.Status, &entry.StartedAt, &entry.Error); err != nil {
				return fmt.Errorf("doctor: scanning run_log row: %w", err)
			}
			recent = append(recent, entry)
		}

		report := doctorReport{
			ModelStateCount: modelStateCount,
			RunLogCount:     runLogCount,
			RecentRuns:      recent,
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		printDoctorReport(report)
		return nil
	},
}

func printDoctorReport(report doctorReport) {
	fmt.Printf("%d models with stored state\n", report.ModelStateCount)
	fmt.Printf("%d run_log entries\n", report.RunLogCount)

	fmt.Println("\nmost recent runs:")
	for _, entry := range report.RecentRuns {
		label := entry.Status
		switch entry.Status {
		case "built":
			label = color.GreenString(entry.Status)
		case "error":
			label = color.RedString(entry.Status)
		case "assertion_failed":
			label = color.YellowString(entry.Status)
		}
		line := fmt.Sprintf("  %-40s %-18s %s", entry.Target, label, entry.StartedAt)
		if entry.Error != "" {
			line += "  " + entry.Error
		}
		fmt.Println(line)
	}
}

func tableCount(ctx context.Context, wh warehouse.Handle, meta, table string) (int64, error) {
	rows, err := wh.Execute(ctx, fmt.Sprintf("SELECT count(*) FROM %s.%s", meta, wh.Dialect().QuoteIdent(table)))
	if err != nil {
		return 0, fmt.Errorf("doctor: counting %s: %w", table, err)
	}
	var count int64
	if err := rows.Scan(0, &count); err != nil {
		return 0, fmt.Errorf("doctor: scanning %s count: %w", table, err)
	}
	return count, nil
}

func scanInto(row []any, dest ...*string) error {
	if len(row) != len(dest) {
		return fmt.Errorf("expected %d columns, got %d", len(dest), len(row))
	}
	for i, d := range dest {
		if row[i] == nil {
			*d = ""
			continue
		}
		*d = fmt.Sprintf("%v", row[i])
	}
	return nil
}
