package dolt

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidalworks/flux/internal/warehouse"
)

// dialect implements warehouse.Dialect for embedded Dolt. Dolt speaks the
// MySQL dialect, where "schema" and "database" are the same concept, so
// EnsureSchema is just CREATE DATABASE IF NOT EXISTS and existence checks
// go through information_schema — both lifted directly from the teacher's
// migrations.go idioms.
type dialect struct{}

const metaSchemaName = "_dp_internal"

func (d *dialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d *dialect) MetaSchema() string {
	return metaSchemaName
}

func (d *dialect) EnsureSchema(ctx context.Context, ex warehouse.Executor, schema string) error {
	_, err := ex.Execute(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", d.QuoteIdent(schema)))
	if err != nil {
		return fmt.Errorf("creating database %s: %w", schema, err)
	}
	return nil
}

func (d *dialect) SchemaExists(ctx context.Context, ex warehouse.Executor, schema string) (bool, error) {
	rows, err := ex.Execute(ctx, `
		SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = ?
	`, schema)
	if err != nil {
		return false, fmt.Errorf("checking schema %s: %w", schema, err)
	}
	var count int
	if err := rows.Scan(0, &count); err != nil {
		return false, fmt.Errorf("checking schema %s: %w", schema, err)
	}
	return count > 0, nil
}

func (d *dialect) TableExists(ctx context.Context, ex warehouse.Executor, schema, table string) (bool, error) {
	rows, err := ex.Execute(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = ? AND table_name = ?
	`, schema, table)
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
	rows, err := ex.Execute(ctx, `
		SELECT COUNT(*) FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ? AND column_name = ?
	`, schema, table, column)
	if err != nil {
		return false, fmt.Errorf("checking column %s.%s.%s: %w", schema, table, column, err)
	}
	var count int
	if err := rows.Scan(0, &count); err != nil {
		return false, fmt.Errorf("checking column %s.%s.%s: %w", schema, table, column, err)
	}
	return count > 0, nil
}

func (d *dialect) ColumnType(ctx context.Context, ex warehouse.Executor, schema, table, column string) (string, error) {
	rows, err := ex.Execute(ctx, `
		SELECT data_type FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ? AND column_name = ?
	`, schema, table, column)
	if err != nil {
		return "", fmt.Errorf("reading column type %s.%s.%s: %w", schema, table, column, err)
	}
	if len(rows.Data) == 0 {
		return "TEXT", nil
	}
	var colType string
	if err := rows.Scan(0, &colType); err != nil {
		return "", fmt.Errorf("reading column type %s.%s.%s: %w", schema, table, column, err)
	}
	return colType, nil
}

func (d *dialect) MetaTableDDL() []string {
	q := metaSchemaName
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", q),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s`.model_state (\n"+
			"model_path VARCHAR(512) PRIMARY KEY,\n"+
			"content_hash VARCHAR(16),\n"+
			"upstream_hash VARCHAR(16),\n"+
			"materialized_as VARCHAR(32),\n"+
			"last_run_at TIMESTAMP NULL,\n"+
			"run_duration_ms BIGINT,\n"+
			"row_count BIGINT\n"+
			")", q),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s`.run_log (\n"+
			"run_id VARCHAR(64) PRIMARY KEY,\n"+
			"run_type VARCHAR(32),\n"+
			"target VARCHAR(512),\n"+
			"status VARCHAR(32),\n"+
			"started_at TIMESTAMP NULL,\n"+
			"duration_ms BIGINT,\n"+
			"rows_affected BIGINT,\n"+
			"error TEXT,\n"+
			"log_output TEXT\n"+
			")", q),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s`.assertion_results (\n"+
			"model_path VARCHAR(512),\n"+
			"expression TEXT,\n"+
			"passed BOOLEAN,\n"+
			"detail TEXT,\n"+
			"checked_at TIMESTAMP NULL\n"+
			")", q),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s`.model_profiles (\n"+
			"model_path VARCHAR(512) PRIMARY KEY,\n"+
			"row_count BIGINT,\n"+
			"column_count INT,\n"+
			"null_percentages JSON,\n"+
			"distinct_counts JSON,\n"+
			"profiled_at TIMESTAMP NULL\n"+
			")", q),
	}
}
