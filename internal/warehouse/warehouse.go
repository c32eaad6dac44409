// Package warehouse defines the opaque SQL execution handle (C1) that the
// rest of the transform engine depends on, plus the small Dialect seam
// that lets the execution engine (C6) stay backend-agnostic across the
// two wired warehouse backends (embedded Dolt, embedded SQLite).
package warehouse

import (
	"context"
	"fmt"
	"reflect"
)

// Rows is the result of Execute: a column-described, fully materialized
// result set. The engine never streams rows past a component boundary, so
// buffering into memory here (rather than handing back *sql.Rows) keeps
// every caller's error handling simple.
type Rows struct {
	Columns []string
	Data    [][]any
}

// Scan copies the n-th row into dest, following database/sql.Rows.Scan
// conventions.
func (r *Rows) Scan(row int, dest ...any) error {
	return scanRow(r.Data[row], dest...)
}

// Executor is the minimal surface Dialect implementations need to probe
// the warehouse's catalog: run a statement, get rows back. Handle
// satisfies it, so every Dialect method takes the same Handle callers
// already hold, rather than reaching for a raw *sql.DB.
type Executor interface {
	Execute(ctx context.Context, query string, args ...any) (*Rows, error)
}

// Handle is the opaque warehouse connection every component depends on.
type Handle interface {
	Executor

	// Close releases the underlying connection.
	Close() error

	// Interrupt cooperatively cancels any in-flight statement issued on
	// this handle from another goroutine.
	Interrupt()

	// EnsureMetaTable creates the _dp_internal schema and its four
	// tables idempotently. A no-op when the handle is read-only.
	EnsureMetaTable(ctx context.Context) error

	// ReadOnly reports whether this handle was opened read-only.
	ReadOnly() bool

	// Dialect returns the backend-specific SQL quirks strategy.
	Dialect() Dialect
}

// Dialect isolates the handful of places where DDL differs between the
// two backends: identifier quoting, column/schema existence checks, and
// schema creation. The execution engine's algorithm (C6) is otherwise
// identical across backends.
type Dialect interface {
	// QuoteIdent double-quotes (or backtick-quotes) name for safe
	// interpolation. Callers must have already validated name against
	// types.ValidIdentifier.
	QuoteIdent(name string) string

	// ColumnExists reports whether table has a column named column.
	ColumnExists(ctx context.Context, ex Executor, schema, table, column string) (bool, error)

	// SchemaExists reports whether the named schema exists.
	SchemaExists(ctx context.Context, ex Executor, schema string) (bool, error)

	// EnsureSchema creates the schema if it does not already exist.
	EnsureSchema(ctx context.Context, ex Executor, schema string) error

	// TableExists reports whether schema.table exists.
	TableExists(ctx context.Context, ex Executor, schema, table string) (bool, error)

	// ColumnType returns the declared SQL type of an existing column, used
	// when generating ALTER TABLE ADD COLUMN during schema evolution.
	ColumnType(ctx context.Context, ex Executor, schema, table, column string) (string, error)

	// MetaTableDDL returns the CREATE TABLE statements for the four
	// _dp_internal tables (spec §6.3), in dialect-specific syntax.
	MetaTableDDL() []string

	// MetaSchema is the internal schema name, "_dp_internal".
	MetaSchema() string
}

// scanRow assigns each value in row to the corresponding pointer in dest,
// converting between compatible kinds the way database/sql's own Scan
// does for the common cases this engine encounters (counts, hashes,
// timestamps already decoded by the driver).
func scanRow(row []any, dest ...any) error {
	if len(dest) != len(row) {
		return fmt.Errorf("warehouse: scan target count %d does not match column count %d", len(dest), len(row))
	}
	for i, d := range dest {
		src := row[i]
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Ptr || dv.IsNil() {
			return fmt.Errorf("warehouse: scan destination %d is not a non-nil pointer", i)
		}
		elem := dv.Elem()
		if src == nil {
			elem.Set(reflect.Zero(elem.Type()))
			continue
		}
		sv := reflect.ValueOf(src)
		if sv.Type().AssignableTo(elem.Type()) {
			elem.Set(sv)
			continue
		}
		if sv.Type().ConvertibleTo(elem.Type()) {
			elem.Set(sv.Convert(elem.Type()))
			continue
		}
		return fmt.Errorf("warehouse: cannot scan %T into %s", src, elem.Type())
	}
	return nil
}
