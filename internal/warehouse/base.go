package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"
)

// Base implements the Handle plumbing shared by every backend: running a
// statement over database/sql, buffering its result set, and supporting
// cooperative interrupt of whatever statement is currently in flight.
// Backends embed Base and supply only Dialect and EnsureMetaTable's DDL.
type Base struct {
	DB       *sql.DB
	Dlct     Dialect
	IsRO     bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

var returnsRowsRE = regexp.MustCompile(`(?is)^\s*(SELECT|WITH|PRAGMA|SHOW|EXPLAIN)\b`)

// Execute implements Handle.Execute.
func (b *Base) Execute(ctx context.Context, query string, args ...any) (*Rows, error) {
	runCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		if b.cancel != nil {
			b.cancel()
			b.cancel = nil
		}
		b.mu.Unlock()
	}()

	if returnsRowsRE.MatchString(query) {
		rows, err := b.DB.QueryContext(runCtx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("warehouse: query failed: %w", err)
		}
		defer func() { _ = rows.Close() }()
		return bufferRows(rows)
	}

	if _, err := b.DB.ExecContext(runCtx, query, args...); err != nil {
		return nil, fmt.Errorf("warehouse: exec failed: %w", err)
	}
	return &Rows{}, nil
}

func bufferRows(rows *sql.Rows) (*Rows, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("warehouse: reading columns: %w", err)
	}

	result := &Rows{Columns: cols}
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("warehouse: scanning row: %w", err)
		}
		result.Data = append(result.Data, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warehouse: iterating rows: %w", err)
	}
	return result, nil
}

// Close implements Handle.Close.
func (b *Base) Close() error {
	return b.DB.Close()
}

// Interrupt implements Handle.Interrupt.
func (b *Base) Interrupt() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
}

// ReadOnly implements Handle.ReadOnly.
func (b *Base) ReadOnly() bool {
	return b.IsRO
}

// Dialect implements Handle.Dialect.
func (b *Base) Dialect() Dialect {
	return b.Dlct
}

// EnsureMetaTable creates the _dp_internal schema and its four tables,
// skipping silently when the handle is read-only (spec §4.1).
func (b *Base) EnsureMetaTable(ctx context.Context) error {
	if b.IsRO {
		return nil
	}
	if err := b.Dlct.EnsureSchema(ctx, b, b.Dlct.MetaSchema()); err != nil {
		return fmt.Errorf("warehouse: ensuring %s schema: %w", b.Dlct.MetaSchema(), err)
	}
	for _, stmt := range b.Dlct.MetaTableDDL() {
		if _, err := b.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("warehouse: creating metadata table: %w", err)
		}
	}
	return nil
}
