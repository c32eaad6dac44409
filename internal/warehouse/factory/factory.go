// Package factory creates warehouse.Handle instances from a backend name,
// mirroring the teacher's internal/storage/factory backend registry so
// new warehouse backends can be added without touching call sites.
package factory

import (
	"context"
	"fmt"

	"github.com/tidalworks/flux/internal/warehouse"
	"github.com/tidalworks/flux/internal/warehouse/dolt"
	"github.com/tidalworks/flux/internal/warehouse/sqlite"
)

// Options configures how a backend is opened.
type Options struct {
	ReadOnly bool

	// Dolt-only.
	Database       string
	CommitterName  string
	CommitterEmail string
}

// BackendFactory creates a warehouse.Handle from a path and options.
type BackendFactory func(ctx context.Context, path string, opts Options) (warehouse.Handle, error)

var registry = map[string]BackendFactory{
	"dolt": func(ctx context.Context, path string, opts Options) (warehouse.Handle, error) {
		return dolt.Open(ctx, &dolt.Config{
			Path:           path,
			Database:       opts.Database,
			CommitterName:  opts.CommitterName,
			CommitterEmail: opts.CommitterEmail,
			ReadOnly:       opts.ReadOnly,
		})
	},
	"sqlite": func(ctx context.Context, path string, opts Options) (warehouse.Handle, error) {
		return sqlite.Open(ctx, path, opts.ReadOnly)
	},
}

// RegisterBackend registers (or overrides) a named backend factory.
func RegisterBackend(name string, factory BackendFactory) {
	registry[name] = factory
}

// New opens a warehouse.Handle for the named backend ("dolt" or "sqlite").
func New(ctx context.Context, backend, path string, opts Options) (warehouse.Handle, error) {
	factory, ok := registry[backend]
	if !ok {
		return nil, fmt.Errorf("factory: unknown warehouse backend %q (supported: dolt, sqlite)", backend)
	}
	return factory(ctx, path, opts)
}
