// Package exec materializes a single model against the warehouse: view,
// full-rebuild table, or incremental (append / delete+insert / merge /
// partition_by), including additive schema evolution. The algorithm is
// identical across both wired backends; only identifier quoting and
// catalog probing (warehouse.Dialect) differ.
package exec

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidalworks/flux/internal/debug"
	"github.com/tidalworks/flux/internal/types"
	"github.com/tidalworks/flux/internal/warehouse"
)

// Result is what a single materialization produced.
type Result struct {
	RowCount int64
}

// Engine materializes models against a warehouse handle.
type Engine struct {
	wh warehouse.Handle
}

// New returns an Engine backed by wh.
func New(wh warehouse.Handle) *Engine {
	return &Engine{wh: wh}
}

// Materialize dispatches on m.Materialized and runs the corresponding
// algorithm. Every identifier interpolated into SQL is validated first;
// any exception from the warehouse aborts the model without touching its
// persisted state (the caller is responsible for that).
func (e *Engine) Materialize(ctx context.Context, m *types.SQLModel) (*Result, error) {
	if err := validateModelIdentifiers(m); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrExecution, err)
	}

	d := e.wh.Dialect()
	if err := d.EnsureSchema(ctx, e.wh, m.Schema); err != nil {
		return nil, fmt.Errorf("%w: ensuring schema %s: %v", types.ErrExecution, m.Schema, err)
	}

	full := qualifiedName(d, m.Schema, m.Name)

	switch m.Materialized {
	case types.MaterializedView:
		return e.materializeView(ctx, full, m)
	case types.MaterializedTable:
		return e.materializeTable(ctx, full, m)
	case types.MaterializedIncremental:
		return e.materializeIncremental(ctx, d, full, m)
	default:
		return nil, fmt.Errorf("%w: unknown materialization %q for %s", types.ErrExecution, m.Materialized, m.FullName())
	}
}

func (e *Engine) materializeView(ctx context.Context, full string, m *types.SQLModel) (*Result, error) {
	_, err := e.wh.Execute(ctx, fmt.Sprintf("CREATE OR REPLACE VIEW %s AS %s", full, m.Query))
	if err != nil {
		return nil, fmt.Errorf("%w: creating view %s: %v", types.ErrExecution, m.FullName(), err)
	}
	return &Result{RowCount: 0}, nil
}

func (e *Engine) materializeTable(ctx context.Context, full string, m *types.SQLModel) (*Result, error) {
	if _, err := e.wh.Execute(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", full)); err != nil {
		return nil, fmt.Errorf("%w: replacing table %s: %v", types.ErrExecution, m.FullName(), err)
	}
	_, err := e.wh.Execute(ctx, fmt.Sprintf("CREATE TABLE %s AS %s", full, m.Query))
	if err != nil {
		return nil, fmt.Errorf("%w: creating table %s: %v", types.ErrExecution, m.FullName(), err)
	}
	return e.countRows(ctx, full, m.FullName())
}

func (e *Engine) materializeIncremental(ctx context.Context, d warehouse.Dialect, full string, m *types.SQLModel) (*Result, error) {
	exists, err := d.TableExists(ctx, e.wh, m.Schema, m.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: checking target %s: %v", types.ErrExecution, m.FullName(), err)
	}
	if !exists {
		if _, err := e.wh.Execute(ctx, fmt.Sprintf("CREATE TABLE %s AS %s", full, m.Query)); err != nil {
			return nil, fmt.Errorf("%w: full load of %s: %v", types.ErrExecution, m.FullName(), err)
		}
		return e.countRows(ctx, full, m.FullName())
	}

	effective := m.Query
	if m.IncrementalFilter != "" {
		effective = effective + " " + strings.ReplaceAll(m.IncrementalFilter, "{this}", full)
	}

	strategy := m.IncrementalStrategy
	if m.PartitionBy == "" && (strategy == "" || m.UniqueKey == "") {
		strategy = types.StrategyAppend
	}

	if strategy == types.StrategyAppend {
		if _, err := e.wh.Execute(ctx, fmt.Sprintf("INSERT INTO %s %s", full, effective)); err != nil {
			return nil, fmt.Errorf("%w: appending to %s: %v", types.ErrExecution, m.FullName(), err)
		}
		return e.countRows(ctx, full, m.FullName())
	}

	if m.PartitionBy != "" && strategy == types.StrategyMerge {
		debug.Warnf("model %s sets both partition_by and incremental_strategy=merge; partition_by wins", m.FullName())
	}

	if err := e.runStagedLoad(ctx, d, full, effective, strategy, m); err != nil {
		return nil, err
	}
	return e.countRows(ctx, full, m.FullName())
}

// runStagedLoad builds the staging table, evolves the target schema, runs
// the merge/partition_by/delete+insert strategy, then drops staging.
func (e *Engine) runStagedLoad(ctx context.Context, d warehouse.Dialect, full, effectiveQuery string, strategy types.IncrementalStrategy, m *types.SQLModel) error {
	stagingName := "_dp_staging_" + m.Name
	staging := qualifiedName(d, m.Schema, stagingName)

	if _, err := e.wh.Execute(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", staging)); err != nil {
		return fmt.Errorf("%w: clearing stale staging for %s: %v", types.ErrExecution, m.FullName(), err)
	}
	if _, err := e.wh.Execute(ctx, fmt.Sprintf("CREATE TABLE %s AS %s", staging, effectiveQuery)); err != nil {
		return fmt.Errorf("%w: building staging table for %s: %v", types.ErrExecution, m.FullName(), err)
	}
	defer func() {
		_, _ = e.wh.Execute(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", staging))
	}()

	cols, err := e.stagingColumns(ctx, d, m.Schema, stagingName)
	if err != nil {
		return fmt.Errorf("%w: reading staging columns for %s: %v", types.ErrExecution, m.FullName(), err)
	}
	if err := e.evolveSchema(ctx, d, full, m, cols); err != nil {
		return err
	}

	switch {
	case strategy == types.StrategyMerge && m.PartitionBy == "":
		return e.mergeStrategy(ctx, full, staging, cols, m)
	case m.PartitionBy != "":
		return e.partitionByStrategy(ctx, d, full, staging, cols, m)
	default:
		return e.deleteInsertStrategy(ctx, full, staging, cols, m)
	}
}

func (e *Engine) stagingColumns(ctx context.Context, d warehouse.Dialect, schema, table string) ([]string, error) {
	rows, err := e.wh.Execute(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", qualifiedName(d, schema, table)))
	if err != nil {
		return nil, err
	}
	return rows.Columns, nil
}

func (e *Engine) evolveSchema(ctx context.Context, d warehouse.Dialect, full string, m *types.SQLModel, stagingCols []string) error {
	for _, col := range stagingCols {
		if !types.ValidIdentifier(col) {
			return fmt.Errorf("%w: staging column %q in %s", types.ErrInvalidIdentifier, col, m.FullName())
		}
		exists, err := d.ColumnExists(ctx, e.wh, m.Schema, m.Name, col)
		if err != nil {
			return fmt.Errorf("%w: checking column %s.%s: %v", types.ErrExecution, m.FullName(), col, err)
		}
		if exists {
			continue
		}
		colType, err := d.ColumnType(ctx, e.wh, m.Schema, "_dp_staging_"+m.Name, col)
		if err != nil {
			return fmt.Errorf("%w: reading staging column type %s.%s: %v", types.ErrExecution, m.FullName(), col, err)
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", full, d.QuoteIdent(col), colType)
		if _, err := e.wh.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("%w: evolving schema %s.%s: %v", types.ErrExecution, m.FullName(), col, err)
		}
		debug.Logf("schema evolution: added column %s to %s", col, m.FullName())
	}
	return nil
}

func (e *Engine) mergeStrategy(ctx context.Context, full, staging string, cols []string, m *types.SQLModel) error {
	keyCols := splitKeyCols(m.UniqueKey)
	if len(keyCols) == 0 {
		return fmt.Errorf("%w: merge strategy on %s requires unique_key", types.ErrExecution, m.FullName())
	}

	var nonKey []string
	for _, c := range cols {
		if !containsString(keyCols, c) {
			nonKey = append(nonKey, c)
		}
	}

	joinClause := joinOn(keyCols, "t", "s")
	if len(nonKey) > 0 {
		var sets []string
		for _, c := range nonKey {
			q := quoteBare(c)
			sets = append(sets, fmt.Sprintf("%s = s.%s", q, q))
		}
		updateStmt := fmt.Sprintf(
			"UPDATE %s AS t SET %s FROM %s AS s WHERE %s",
			full, strings.Join(sets, ", "), staging, joinClause)
		if _, err := e.wh.Execute(ctx, updateStmt); err != nil {
			return fmt.Errorf("%w: merging into %s: %v", types.ErrExecution, m.FullName(), err)
		}
	}

	colList := quoteBareList(cols)
	insertStmt := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s AS s WHERE NOT EXISTS (SELECT 1 FROM %s AS t WHERE %s)",
		full, colList, colList, staging, full, joinOn(keyCols, "t", "s"))
	if _, err := e.wh.Execute(ctx, insertStmt); err != nil {
		return fmt.Errorf("%w: inserting new rows into %s: %v", types.ErrExecution, m.FullName(), err)
	}
	return nil
}

func (e *Engine) partitionByStrategy(ctx context.Context, d warehouse.Dialect, full, staging string, cols []string, m *types.SQLModel) error {
	if !types.ValidIdentifier(m.PartitionBy) {
		return fmt.Errorf("%w: partition_by %q in %s", types.ErrInvalidIdentifier, m.PartitionBy, m.FullName())
	}
	part := d.QuoteIdent(m.PartitionBy)
	delStmt := fmt.Sprintf(
		"DELETE FROM %s WHERE %s IN (SELECT DISTINCT %s FROM %s)",
		full, part, part, staging)
	if _, err := e.wh.Execute(ctx, delStmt); err != nil {
		return fmt.Errorf("%w: pruning partitions in %s: %v", types.ErrExecution, m.FullName(), err)
	}
	colList := quoteBareList(cols)
	insStmt := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", full, colList, colList, staging)
	if _, err := e.wh.Execute(ctx, insStmt); err != nil {
		return fmt.Errorf("%w: loading partitions into %s: %v", types.ErrExecution, m.FullName(), err)
	}
	return nil
}

func (e *Engine) deleteInsertStrategy(ctx context.Context, full, staging string, cols []string, m *types.SQLModel) error {
	keyCols := splitKeyCols(m.UniqueKey)
	if len(keyCols) == 0 {
		keyCols = cols
	}
	keyList := quoteBareList(keyCols)
	delStmt := fmt.Sprintf(
		"DELETE FROM %s WHERE (%s) IN (SELECT %s FROM %s)",
		full, keyList, keyList, staging)
	if _, err := e.wh.Execute(ctx, delStmt); err != nil {
		return fmt.Errorf("%w: clearing replaced rows in %s: %v", types.ErrExecution, m.FullName(), err)
	}
	colList := quoteBareList(cols)
	insStmt := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", full, colList, colList, staging)
	if _, err := e.wh.Execute(ctx, insStmt); err != nil {
		return fmt.Errorf("%w: inserting refreshed rows into %s: %v", types.ErrExecution, m.FullName(), err)
	}
	return nil
}

func (e *Engine) countRows(ctx context.Context, full, fullName string) (*Result, error) {
	rows, err := e.wh.Execute(ctx, fmt.Sprintf("SELECT count(*) FROM %s", full))
	if err != nil {
		return nil, fmt.Errorf("%w: counting rows in %s: %v", types.ErrExecution, fullName, err)
	}
	var count int64
	if err := rows.Scan(0, &count); err != nil {
		return nil, fmt.Errorf("%w: reading row count for %s: %v", types.ErrExecution, fullName, err)
	}
	return &Result{RowCount: count}, nil
}

func qualifiedName(d warehouse.Dialect, schema, name string) string {
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(name)
}

// quoteBare double-quotes a bare identifier the way the spec's SQL
// templates do for column references, independent of backend dialect
// quoting (both backends accept ANSI double-quoted identifiers).
func quoteBare(col string) string {
	return `"` + col + `"`
}

func quoteBareList(cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = quoteBare(c)
	}
	return strings.Join(out, ", ")
}

func joinOn(keyCols []string, leftAlias, rightAlias string) string {
	parts := make([]string, len(keyCols))
	for i, c := range keyCols {
		q := quoteBare(c)
		parts[i] = fmt.Sprintf("%s.%s = %s.%s", leftAlias, q, rightAlias, q)
	}
	return strings.Join(parts, " AND ")
}

func splitKeyCols(uniqueKey string) []string {
	if uniqueKey == "" {
		return nil
	}
	parts := strings.Split(uniqueKey, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// validateModelIdentifiers checks every identifier this model will
// interpolate into SQL before any statement is issued.
func validateModelIdentifiers(m *types.SQLModel) error {
	if err := m.Validate(); err != nil {
		return err
	}
	for _, c := range splitKeyCols(m.UniqueKey) {
		if !types.ValidIdentifier(c) {
			return fmt.Errorf("%w: unique_key column %q in %s", types.ErrInvalidIdentifier, c, m.Path)
		}
	}
	return nil
}
