package dolt

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	embedded "github.com/dolthub/driver"

	"github.com/tidalworks/flux/internal/warehouse"
)

// Handle is the embedded-Dolt-backed warehouse.Handle.
type Handle struct {
	warehouse.Base

	connector *embedded.Connector
}

func newOpenBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return bo
}

// Open opens (initializing if necessary) an embedded Dolt database at
// cfg.Path, bootstrapping cfg.Database and readiness-pinging before
// returning, in the teacher's newEmbeddedMode idiom.
func Open(ctx context.Context, cfg *Config) (*Handle, error) {
	cfg = cfg.withDefaults()

	if info, err := os.Stat(cfg.Path); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("dolt: database path %q is a file, not a directory", cfg.Path)
	}
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, fmt.Errorf("dolt: creating database directory: %w", err)
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("dolt: resolving absolute path: %w", err)
	}

	initDSN := fmt.Sprintf("file://%s?commitname=%s&commitemail=%s", absPath, cfg.CommitterName, cfg.CommitterEmail)
	dbDSN := fmt.Sprintf("file://%s?commitname=%s&commitemail=%s&database=%s", absPath, cfg.CommitterName, cfg.CommitterEmail, cfg.Database)

	configureRetries := func(c *embedded.Config) {
		c.BackOff = newOpenBackoff()
	}

	if !cfg.ReadOnly {
		if err := withEmbedded(ctx, initDSN, configureRetries, func(ctx context.Context, db *sql.DB) error {
			_, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database))
			return err
		}); err != nil {
			return nil, fmt.Errorf("dolt: creating database: %w", err)
		}
	}

	db, connector, err := openConnection(dbDSN)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		_ = connector.Close()
		return nil, fmt.Errorf("dolt: pinging database: %w", err)
	}

	h := &Handle{
		Base: warehouse.Base{
			DB:   db,
			Dlct: &dialect{},
			IsRO: cfg.ReadOnly,
		},
		connector: connector,
	}
	return h, nil
}

// Close releases both the *sql.DB pool and the embedded connector's
// filesystem lock.
func (h *Handle) Close() error {
	err := h.Base.Close()
	if cerr := h.connector.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func openConnection(dsn string) (*sql.DB, *embedded.Connector, error) {
	openCfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("dolt: parsing DSN: %w", err)
	}
	openCfg.BackOff = newOpenBackoff()

	connector, err := embedded.NewConnector(openCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("dolt: creating connector: %w", err)
	}
	db := sql.OpenDB(connector)

	// Dolt's embedded engine is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, connector, nil
}

// withEmbedded opens a short-lived connection against dsn, runs fn, and
// always tears the connection back down — used for the one-shot
// "ensure database exists" step before the long-lived handle is opened.
func withEmbedded(ctx context.Context, dsn string, configure func(*embedded.Config), fn func(context.Context, *sql.DB) error) error {
	cfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return err
	}
	if configure != nil {
		configure(&cfg)
	}

	connector, err := embedded.NewConnector(cfg)
	if err != nil {
		return err
	}
	db := sql.OpenDB(connector)
	defer func() {
		_ = db.Close()
		_ = connector.Close()
	}()

	return fn(ctx, db)
}
