package profiler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tidalworks/flux/internal/profiler"
	"github.com/tidalworks/flux/internal/types"
	"github.com/tidalworks/flux/internal/warehouse/sqlite"
)

func openTestHandle(t *testing.T) *sqlite.Handle {
	t.Helper()
	h, err := sqlite.Open(context.Background(), t.TempDir()+"/flux.db", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestProfileComputesRowAndColumnStats(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	require.NoError(t, h.Dialect().EnsureSchema(ctx, h, "gold"))
	_, err := h.Execute(ctx, `CREATE TABLE "gold"."customers" (id INTEGER, email TEXT)`)
	require.NoError(t, err)
	_, err = h.Execute(ctx, `INSERT INTO "gold"."customers" VALUES
		(1, 'a@example.com'), (2, 'a@example.com'), (3, NULL), (4, NULL)`)
	require.NoError(t, err)

	p := profiler.New(h)
	m := &types.SQLModel{Schema: "gold", Name: "customers"}
	profile, err := p.Profile(ctx, m)
	require.NoError(t, err)

	require.Equal(t, int64(4), profile.RowCount)
	require.Equal(t, 2, profile.ColumnCount)
	require.Equal(t, int64(4), profile.DistinctCounts["id"])
	require.Equal(t, int64(1), profile.DistinctCounts["email"])
	require.InDelta(t, 0.0, profile.NullPercentages["id"], 0.01)
	require.InDelta(t, 50.0, profile.NullPercentages["email"], 0.01)
}

func TestProfileEmptyTable(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	require.NoError(t, h.Dialect().EnsureSchema(ctx, h, "gold"))
	_, err := h.Execute(ctx, `CREATE TABLE "gold"."empty" (id INTEGER)`)
	require.NoError(t, err)

	p := profiler.New(h)
	m := &types.SQLModel{Schema: "gold", Name: "empty"}
	profile, err := p.Profile(ctx, m)
	require.NoError(t, err)
	require.Equal(t, int64(0), profile.RowCount)
	require.Equal(t, 0.0, profile.NullPercentages["id"])
}
