package factory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tidalworks/flux/internal/warehouse"
)

func TestNewSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	h, err := New(ctx, "sqlite", dbPath, Options{})
	require.NoError(t, err)
	defer func() { _ = h.Close() }()
	require.NotNil(t, h)
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), "unknown-backend", "/tmp/fake", Options{})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "unknown warehouse backend"))
}

func TestRegisterBackend(t *testing.T) {
	called := false
	RegisterBackend("test-backend", func(ctx context.Context, path string, opts Options) (warehouse.Handle, error) {
		called = true
		return nil, nil
	})
	defer delete(registry, "test-backend")

	_, _ = New(context.Background(), "test-backend", "/fake", Options{})
	require.True(t, called, "registered backend factory was not called")
}
