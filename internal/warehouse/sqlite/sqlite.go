// Package sqlite implements the warehouse.Handle contract against an
// embedded, pure-Go SQLite engine. It requires no CGO, so it is the
// backend used by default and by the test suite. Schema references are
// emulated by ATTACHing a separate database file per schema, since
// SQLite files have no schema namespace of their own.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/tidalworks/flux/internal/warehouse"
)

// Handle is the sqlite-backed warehouse.Handle.
type Handle struct {
	warehouse.Base
}

// Open opens (creating if necessary) a SQLite database file at path.
func Open(ctx context.Context, path string, readOnly bool) (*Handle, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("sqlite: creating database directory: %w", err)
		}
	}

	mode := ""
	if readOnly {
		mode = "&mode=ro"
	}
	dsn := fmt.Sprintf("file:%s?_journal=WAL&_busy_timeout=5000%s", path, mode)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	baseDir := ""
	if path != ":memory:" {
		baseDir = filepath.Dir(path)
	}

	h := &Handle{
		Base: warehouse.Base{
			DB:   db,
			Dlct: &dialect{baseDir: baseDir},
			IsRO: readOnly,
		},
	}
	return h, nil
}
