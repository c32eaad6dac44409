package orchestrator_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tidalworks/flux/internal/orchestrator"
	"github.com/tidalworks/flux/internal/types"
	"github.com/tidalworks/flux/internal/warehouse"
	"github.com/tidalworks/flux/internal/warehouse/sqlite"
)

func writeModel(t *testing.T, root, schema, name, body string) {
	t.Helper()
	dir := filepath.Join(root, schema)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".sql"), []byte(body), 0o600))
}

func openHandle(t *testing.T) (*sqlite.Handle, string) {
	t.Helper()
	path := t.TempDir() + "/flux.db"
	h, err := sqlite.Open(context.Background(), path, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h, path
}

func TestRunTransformBuildsDependentModels(t *testing.T) {
	root := t.TempDir()
	writeModel(t, root, "bronze", "orders", `
-- config: materialized=table
SELECT 1 AS id, 100 AS amount
UNION ALL
SELECT 2, 200
`)
	writeModel(t, root, "silver", "orders_summary", `
-- config: materialized=table
-- depends_on: bronze.orders
SELECT count(*) AS n FROM "bronze"."orders"
`)

	h, _ := openHandle(t)
	ctx := context.Background()
	results, err := orchestrator.RunTransform(ctx, h, nil, nil, nil, orchestrator.Options{TransformRoot: root})
	require.NoError(t, err)

	require.Equal(t, types.StatusBuilt, results["bronze.orders"].Status)
	require.Equal(t, types.StatusBuilt, results["silver.orders_summary"].Status)
	require.Equal(t, int64(2), results["bronze.orders"].RowCount)
	require.Equal(t, int64(1), results["silver.orders_summary"].RowCount)
}

func TestRunTransformSkipsUnchangedOnSecondRun(t *testing.T) {
	root := t.TempDir()
	writeModel(t, root, "bronze", "orders", `
-- config: materialized=table
SELECT 1 AS id
`)

	h, _ := openHandle(t)
	ctx := context.Background()
	_, err := orchestrator.RunTransform(ctx, h, nil, nil, nil, orchestrator.Options{TransformRoot: root})
	require.NoError(t, err)

	results, err := orchestrator.RunTransform(ctx, h, nil, nil, nil, orchestrator.Options{TransformRoot: root})
	require.NoError(t, err)
	require.Equal(t, types.StatusSkipped, results["bronze.orders"].Status)
	require.Equal(t, types.SkipReasonUnchanged, results["bronze.orders"].Reason)
}

func TestRunTransformForceReruns(t *testing.T) {
	root := t.TempDir()
	writeModel(t, root, "bronze", "orders", `
-- config: materialized=table
SELECT 1 AS id
`)

	h, _ := openHandle(t)
	ctx := context.Background()
	_, err := orchestrator.RunTransform(ctx, h, nil, nil, nil, orchestrator.Options{TransformRoot: root})
	require.NoError(t, err)

	results, err := orchestrator.RunTransform(ctx, h, nil, nil, nil, orchestrator.Options{TransformRoot: root, Force: true})
	require.NoError(t, err)
	require.Equal(t, types.StatusBuilt, results["bronze.orders"].Status)
}

// TestRunTransformSkipsDownstreamOfFailedModel mirrors the spec's failure
// propagation scenario: an upstream model errors, its downstream
// dependent must be skipped rather than attempted.
func TestRunTransformSkipsDownstreamOfFailedModel(t *testing.T) {
	root := t.TempDir()
	writeModel(t, root, "bronze", "broken", `
-- config: materialized=table
SELECT * FROM this_table_does_not_exist
`)
	writeModel(t, root, "silver", "downstream", `
-- config: materialized=table
-- depends_on: bronze.broken
SELECT 1 AS id FROM "bronze"."broken"
`)

	h, _ := openHandle(t)
	ctx := context.Background()
	results, err := orchestrator.RunTransform(ctx, h, nil, nil, nil, orchestrator.Options{TransformRoot: root})
	require.NoError(t, err)

	require.Equal(t, types.StatusError, results["bronze.broken"].Status)
	require.Equal(t, types.StatusSkipped, results["silver.downstream"].Status)
	require.Equal(t, types.SkipReasonUpstreamFailure, results["silver.downstream"].Reason)
}

// TestRunTransformAssertionFailureStillRunsDownstream mirrors the spec's
// S6 scenario: model A's assertion fails but it is still materialized,
// and model B (which depends on A) still runs and succeeds.
func TestRunTransformAssertionFailureStillRunsDownstream(t *testing.T) {
	root := t.TempDir()
	writeModel(t, root, "silver", "a", `
-- config: materialized=table
-- assert: row_count > 100
SELECT 1 AS id
UNION ALL
SELECT 2
UNION ALL
SELECT 3
`)
	writeModel(t, root, "silver", "b", `
-- config: materialized=table
-- depends_on: silver.a
SELECT count(*) AS n FROM "silver"."a"
`)

	h, _ := openHandle(t)
	ctx := context.Background()
	results, err := orchestrator.RunTransform(ctx, h, nil, nil, nil, orchestrator.Options{TransformRoot: root})
	require.NoError(t, err)

	require.Equal(t, types.StatusAssertionFailed, results["silver.a"].Status)
	require.Equal(t, types.StatusBuilt, results["silver.b"].Status)
}

func TestRunTransformParallelTieredExecution(t *testing.T) {
	root := t.TempDir()
	writeModel(t, root, "bronze", "a", `
-- config: materialized=table
SELECT 1 AS id
`)
	writeModel(t, root, "bronze", "b", `
-- config: materialized=table
SELECT 2 AS id
`)
	writeModel(t, root, "silver", "combined", `
-- config: materialized=table
-- depends_on: bronze.a,bronze.b
SELECT * FROM "bronze"."a"
UNION ALL
SELECT * FROM "bronze"."b"
`)

	path := t.TempDir() + "/flux.db"
	h, err := sqlite.Open(context.Background(), path, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	openWorker := func() (warehouse.Handle, error) {
		return sqlite.Open(context.Background(), path, false)
	}

	ctx := context.Background()
	results, err := orchestrator.RunTransform(ctx, h, openWorker, nil, nil, orchestrator.Options{
		TransformRoot: root, Parallel: true, MaxWorkers: 2,
	})
	require.NoError(t, err)
	require.Equal(t, types.StatusBuilt, results["bronze.a"].Status)
	require.Equal(t, types.StatusBuilt, results["bronze.b"].Status)
	require.Equal(t, types.StatusBuilt, results["silver.combined"].Status)
	require.Equal(t, int64(2), results["silver.combined"].RowCount)
}
