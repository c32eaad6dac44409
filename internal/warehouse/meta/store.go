// Package meta persists the transform engine's own bookkeeping —
// ModelState, RunLog, AssertionResult, ModelProfile — into the
// _dp_internal schema via a warehouse.Handle. Queries are built the way
// the teacher's storage packages build theirs: plain parameterized SQL
// over database/sql, no ORM.
package meta

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidalworks/flux/internal/types"
	"github.com/tidalworks/flux/internal/warehouse"
)

const schema = "_dp_internal"

// Store reads and writes the four metadata tables through a
// warehouse.Handle.
type Store struct {
	wh warehouse.Handle
}

// New wraps wh for metadata access.
func New(wh warehouse.Handle) *Store {
	return &Store{wh: wh}
}

func (s *Store) q(table string) string {
	return s.wh.Dialect().QuoteIdent(schema) + "." + s.wh.Dialect().QuoteIdent(table)
}

// GetModelState returns the stored state for fullName, or nil if there is
// none yet (first build).
func (s *Store) GetModelState(ctx context.Context, fullName string) (*types.ModelState, error) {
	rows, err := s.wh.Execute(ctx, fmt.Sprintf(
		"SELECT model_path, content_hash, upstream_hash, materialized_as, last_run_at, run_duration_ms, row_count FROM %s WHERE model_path = ?",
		s.q("model_state")), fullName)
	if err != nil {
		return nil, fmt.Errorf("meta: reading model_state for %s: %w", fullName, err)
	}
	if len(rows.Data) == 0 {
		return nil, nil
	}

	var st types.ModelState
	var materializedAs string
	if err := rows.Scan(0, &st.FullName, &st.ContentHash, &st.UpstreamHash, &materializedAs, &st.LastRunAt, &st.RunDurationMs, &st.RowCount); err != nil {
		return nil, fmt.Errorf("meta: scanning model_state for %s: %w", fullName, err)
	}
	st.MaterializedAs = types.Materialization(materializedAs)
	return &st, nil
}

// UpsertModelState writes st, replacing any prior row for the same
// model_path. Called only after a successful build (spec §3).
func (s *Store) UpsertModelState(ctx context.Context, st *types.ModelState) error {
	if _, err := s.wh.Execute(ctx, fmt.Sprintf("DELETE FROM %s WHERE model_path = ?", s.q("model_state")), st.FullName); err != nil {
		return fmt.Errorf("meta: clearing prior model_state for %s: %w", st.FullName, err)
	}
	_, err := s.wh.Execute(ctx, fmt.Sprintf(
		"INSERT INTO %s (model_path, content_hash, upstream_hash, materialized_as, last_run_at, run_duration_ms, row_count) VALUES (?, ?, ?, ?, ?, ?, ?)",
		s.q("model_state")),
		st.FullName, st.ContentHash, st.UpstreamHash, string(st.MaterializedAs), st.LastRunAt, st.RunDurationMs, st.RowCount)
	if err != nil {
		return fmt.Errorf("meta: writing model_state for %s: %w", st.FullName, err)
	}
	return nil
}

// AppendRunLog writes one append-only run_log row.
func (s *Store) AppendRunLog(ctx context.Context, entry *types.RunLog) error {
	_, err := s.wh.Execute(ctx, fmt.Sprintf(
		"INSERT INTO %s (run_id, run_type, target, status, started_at, duration_ms, rows_affected, error, log_output) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.q("run_log")),
		entry.RunID, string(entry.RunType), entry.Target, string(entry.Status), entry.StartedAt, entry.DurationMs, entry.RowsAffected, entry.Error, entry.LogOutput)
	if err != nil {
		return fmt.Errorf("meta: writing run_log for %s: %w", entry.Target, err)
	}
	return nil
}

// AppendAssertionResult writes one append-only assertion_results row.
func (s *Store) AppendAssertionResult(ctx context.Context, r *types.AssertionResult) error {
	_, err := s.wh.Execute(ctx, fmt.Sprintf(
		"INSERT INTO %s (model_path, expression, passed, detail, checked_at) VALUES (?, ?, ?, ?, ?)",
		s.q("assertion_results")),
		r.ModelPath, r.Expression, r.Passed, r.Detail, r.CheckedAt)
	if err != nil {
		return fmt.Errorf("meta: writing assertion_results for %s: %w", r.ModelPath, err)
	}
	return nil
}

// UpsertModelProfile writes p, replacing any prior row for the same
// model_path.
func (s *Store) UpsertModelProfile(ctx context.Context, p *types.ModelProfile) error {
	nullPct, err := json.Marshal(p.NullPercentages)
	if err != nil {
		return fmt.Errorf("meta: encoding null_percentages for %s: %w", p.ModelPath, err)
	}
	distinct, err := json.Marshal(p.DistinctCounts)
	if err != nil {
		return fmt.Errorf("meta: encoding distinct_counts for %s: %w", p.ModelPath, err)
	}

	if _, err := s.wh.Execute(ctx, fmt.Sprintf("DELETE FROM %s WHERE model_path = ?", s.q("model_profiles")), p.ModelPath); err != nil {
		return fmt.Errorf("meta: clearing prior model_profiles for %s: %w", p.ModelPath, err)
	}
	_, err = s.wh.Execute(ctx, fmt.Sprintf(
		"INSERT INTO %s (model_path, row_count, column_count, null_percentages, distinct_counts, profiled_at) VALUES (?, ?, ?, ?, ?, ?)",
		s.q("model_profiles")),
		p.ModelPath, p.RowCount, p.ColumnCount, string(nullPct), string(distinct), p.ProfiledAt)
	if err != nil {
		return fmt.Errorf("meta: writing model_profiles for %s: %w", p.ModelPath, err)
	}
	return nil
}

// CountAssertionResults returns the total number of assertion_results rows,
// used by the append-only-monotonicity property test (spec §8).
func (s *Store) CountAssertionResults(ctx context.Context) (int64, error) {
	rows, err := s.wh.Execute(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.q("assertion_results")))
	if err != nil {
		return 0, fmt.Errorf("meta: counting assertion_results: %w", err)
	}
	var count int64
	if err := rows.Scan(0, &count); err != nil {
		return 0, fmt.Errorf("meta: scanning assertion_results count: %w", err)
	}
	return count, nil
}
