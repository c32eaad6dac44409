package meta_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidalworks/flux/internal/types"
	"github.com/tidalworks/flux/internal/warehouse/meta"
	"github.com/tidalworks/flux/internal/warehouse/sqlite"
)

func openTestHandle(t *testing.T) *sqlite.Handle {
	t.Helper()
	h, err := sqlite.Open(context.Background(), t.TempDir()+"/flux.db", false)
	require.NoError(t, err)
	require.NoError(t, h.EnsureMetaTable(context.Background()))
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestModelStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	store := meta.New(h)

	got, err := store.GetModelState(ctx, "silver.orders")
	require.NoError(t, err)
	assert.Nil(t, got)

	want := &types.ModelState{
		FullName:       "silver.orders",
		ContentHash:    "abc123",
		UpstreamHash:   "def456",
		MaterializedAs: types.MaterializedTable,
		LastRunAt:      time.Now().Truncate(time.Second),
		RunDurationMs:  42,
		RowCount:       100,
	}
	require.NoError(t, store.UpsertModelState(ctx, want))

	got, err = store.GetModelState(ctx, "silver.orders")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.FullName, got.FullName)
	assert.Equal(t, want.ContentHash, got.ContentHash)
	assert.Equal(t, want.UpstreamHash, got.UpstreamHash)
	assert.Equal(t, want.MaterializedAs, got.MaterializedAs)
	assert.Equal(t, want.RunDurationMs, got.RunDurationMs)
	assert.Equal(t, want.RowCount, got.RowCount)

	// a second upsert replaces, never duplicates, the row.
	want.RowCount = 150
	require.NoError(t, store.UpsertModelState(ctx, want))
	got, err = store.GetModelState(ctx, "silver.orders")
	require.NoError(t, err)
	assert.Equal(t, int64(150), got.RowCount)
}

func TestRunLogIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	store := meta.New(h)

	for i := 0; i < 3; i++ {
		err := store.AppendRunLog(ctx, &types.RunLog{
			RunID:     uuidLike(i),
			RunType:   types.RunTypeTransform,
			Target:    "silver.orders",
			Status:    types.StatusBuilt,
			StartedAt: time.Now(),
		})
		require.NoError(t, err)
	}

	rows, err := h.Execute(ctx, "SELECT count(*) FROM \"_dp_internal\".\"run_log\"")
	require.NoError(t, err)
	var count int64
	require.NoError(t, rows.Scan(0, &count))
	assert.Equal(t, int64(3), count)
}

func TestAssertionResultsAppendOnly(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	store := meta.New(h)

	before, err := store.CountAssertionResults(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), before)

	require.NoError(t, store.AppendAssertionResult(ctx, &types.AssertionResult{
		ModelPath:  "silver/orders.sql",
		Expression: "row_count > 0",
		Passed:     true,
		CheckedAt:  time.Now(),
	}))
	require.NoError(t, store.AppendAssertionResult(ctx, &types.AssertionResult{
		ModelPath:  "silver/orders.sql",
		Expression: "unique(order_id)",
		Passed:     false,
		Detail:     "3 duplicate values",
		CheckedAt:  time.Now(),
	}))

	after, err := store.CountAssertionResults(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), after)
}

func TestModelProfileUpsert(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	store := meta.New(h)

	p := &types.ModelProfile{
		ModelPath:       "silver/orders.sql",
		RowCount:        10,
		ColumnCount:     4,
		NullPercentages: map[string]float64{"email": 0.1},
		DistinctCounts:  map[string]int64{"order_id": 10},
		ProfiledAt:      time.Now(),
	}
	require.NoError(t, store.UpsertModelProfile(ctx, p))

	p.RowCount = 20
	require.NoError(t, store.UpsertModelProfile(ctx, p))

	rows, err := h.Execute(ctx, "SELECT row_count FROM \"_dp_internal\".\"model_profiles\" WHERE model_path = ?", "silver/orders.sql")
	require.NoError(t, err)
	require.Len(t, rows.Data, 1)
	var rowCount int64
	require.NoError(t, rows.Scan(0, &rowCount))
	assert.Equal(t, int64(20), rowCount)
}

func uuidLike(i int) string {
	return "run-" + string(rune('a'+i))
}
