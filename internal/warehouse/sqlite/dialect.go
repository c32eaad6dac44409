package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidalworks/flux/internal/warehouse"
)

// dialect implements warehouse.Dialect for the embedded SQLite backend.
// SQLite has no native schema namespace, so each "schema" in the model's
// schema.table addressing is realized as an ATTACHed database file
// alongside the main one — the same on-disk layout dbt-style tools use
// when targeting SQLite.
type dialect struct {
	baseDir string

	mu       sync.Mutex
	attached map[string]bool
}

const metaSchemaName = "_dp_internal"

func (d *dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *dialect) MetaSchema() string {
	return metaSchemaName
}

func (d *dialect) EnsureSchema(ctx context.Context, ex warehouse.Executor, schema string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attached == nil {
		d.attached = make(map[string]bool)
	}
	if d.attached[schema] {
		return nil
	}

	dsn := ":memory:"
	if d.baseDir != "" {
		dsn = filepath.Join(d.baseDir, schema+".db")
	}

	_, err := ex.Execute(ctx, fmt.Sprintf(`ATTACH DATABASE '%s' AS %s`, dsn, d.QuoteIdent(schema)))
	if err != nil {
		if strings.Contains(err.Error(), "already in use") || strings.Contains(err.Error(), "database is already attached") {
			d.attached[schema] = true
			return nil
		}
		return fmt.Errorf("attaching schema %s: %w", schema, err)
	}
	d.attached[schema] = true
	return nil
}

func (d *dialect) SchemaExists(ctx context.Context, ex warehouse.Executor, schema string) (bool, error) {
	rows, err := ex.Execute(ctx, "PRAGMA database_list")
	if err != nil {
		return false, fmt.Errorf("listing schemas: %w", err)
	}
	for i := range rows.Data {
		var seq int
		var name, file string
		if err := rows.Scan(i, &seq, &name, &file); err != nil {
			return false, err
		}
		if strings.EqualFold(name, schema) {
			return true, nil
		}
	}
	return false, nil
}

func (d *dialect) TableExists(ctx context.Context, ex warehouse.Executor, schema, table string) (bool, error) {
	q := fmt.Sprintf(`SELECT count(*) FROM %s.sqlite_master WHERE type = 'table' AND name = ?`, d.QuoteIdent(schema))
	rows, err := ex.Execute(ctx, q, table)
	if err != nil {
		return false, fmt.Errorf("checking table %s.%s: %w", schema, table, err)
	}
	var count int
	if err := rows.Scan(0, &count); err != nil {
		return false, fmt.Errorf("checking table %s.%s: %w", schema, table, err)
	}
	return count > 0, nil
}

func (d *dialect) ColumnExists(ctx context.Context, ex warehouse.Executor, schema, table, column string) (bool, error) {
	rows, err := ex.Execute(ctx, fmt.Sprintf(`SELECT name FROM pragma_table_info('%s', '%s')`, table, schema))
	if err != nil {
		return false, fmt.Errorf("checking column %s.%s.%s: %w", schema, table, column, err)
	}
	for i := range rows.Data {
		var name string
		if err := rows.Scan(i, &name); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, nil
}

func (d *dialect) ColumnType(ctx context.Context, ex warehouse.Executor, schema, table, column string) (string, error) {
	rows, err := ex.Execute(ctx, fmt.Sprintf(`SELECT name, type FROM pragma_table_info('%s', '%s')`, table, schema))
	if err != nil {
		return "", fmt.Errorf("reading column type %s.%s.%s: %w", schema, table, column, err)
	}
	for i := range rows.Data {
		var name, typ string
		if err := rows.Scan(i, &name, &typ); err != nil {
			return "", err
		}
		if strings.EqualFold(name, column) {
			if typ == "" {
				return "TEXT", nil
			}
			return typ, nil
		}
	}
	return "TEXT", nil
}

func (d *dialect) MetaTableDDL() []string {
	q := metaSchemaName
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.model_state (
			model_path TEXT PRIMARY KEY,
			content_hash TEXT,
			upstream_hash TEXT,
			materialized_as TEXT,
			last_run_at TIMESTAMP,
			run_duration_ms INTEGER,
			row_count INTEGER
		)`, q),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.run_log (
			run_id TEXT PRIMARY KEY,
			run_type TEXT,
			target TEXT,
			status TEXT,
			started_at TIMESTAMP,
			duration_ms INTEGER,
			rows_affected INTEGER,
			error TEXT,
			log_output TEXT
		)`, q),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.assertion_results (
			model_path TEXT,
			expression TEXT,
			passed BOOLEAN,
			detail TEXT,
			checked_at TIMESTAMP
		)`, q),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.model_profiles (
			model_path TEXT PRIMARY KEY,
			row_count INTEGER,
			column_count INTEGER,
			null_percentages TEXT,
			distinct_counts TEXT,
			profiled_at TIMESTAMP
		)`, q),
	}
}
