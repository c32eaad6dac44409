package exec_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tidalworks/flux/internal/exec"
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

func seedSource(t *testing.T, h *sqlite.Handle, ctx context.Context, ddl string) {
	t.Helper()
	_, err := h.Execute(ctx, ddl)
	require.NoError(t, err)
}

func ensureSchemas(t *testing.T, h *sqlite.Handle, ctx context.Context, schemas ...string) {
	t.Helper()
	for _, s := range schemas {
		require.NoError(t, h.Dialect().EnsureSchema(ctx, h, s))
	}
}

func TestMaterializeView(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	e := exec.New(h)

	ensureSchemas(t, h, ctx, "bronze", "silver")

	seedSource(t, h, ctx, `CREATE TABLE "bronze"."orders" (id INTEGER, amount INTEGER)`)
	seedSource(t, h, ctx, `INSERT INTO "bronze"."orders" VALUES (1, 100), (2, 200)`)

	m := &types.SQLModel{
		Schema: "silver", Name: "orders_view", Materialized: types.MaterializedView,
		Query: `SELECT id, amount FROM "bronze"."orders"`,
	}
	result, err := e.Materialize(ctx, m)
	require.NoError(t, err)
	require.Equal(t, int64(0), result.RowCount)

	rows, err := h.Execute(ctx, `SELECT count(*) FROM "silver"."orders_view"`)
	require.NoError(t, err)
	var count int64
	require.NoError(t, rows.Scan(0, &count))
	require.Equal(t, int64(2), count)
}

func TestMaterializeTable(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	e := exec.New(h)

	ensureSchemas(t, h, ctx, "bronze", "silver")

	seedSource(t, h, ctx, `CREATE TABLE "bronze"."orders" (id INTEGER, amount INTEGER)`)
	seedSource(t, h, ctx, `INSERT INTO "bronze"."orders" VALUES (1, 100), (2, 200), (3, 300)`)

	m := &types.SQLModel{
		Schema: "silver", Name: "orders", Materialized: types.MaterializedTable,
		Query: `SELECT id, amount FROM "bronze"."orders"`,
	}
	result, err := e.Materialize(ctx, m)
	require.NoError(t, err)
	require.Equal(t, int64(3), result.RowCount)
}

func TestMaterializeIncrementalFirstRunIsFullLoad(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	e := exec.New(h)

	ensureSchemas(t, h, ctx, "bronze", "silver")

	seedSource(t, h, ctx, `CREATE TABLE "bronze"."orders" (id INTEGER, amount INTEGER)`)
	seedSource(t, h, ctx, `INSERT INTO "bronze"."orders" VALUES (1, 100)`)

	m := &types.SQLModel{
		Schema: "silver", Name: "orders", Materialized: types.MaterializedIncremental,
		Query: `SELECT id, amount FROM "bronze"."orders"`,
	}
	result, err := e.Materialize(ctx, m)
	require.NoError(t, err)
	require.Equal(t, int64(1), result.RowCount)
}

// TestMaterializeIncrementalMerge mirrors the spec's incremental-merge
// scenario: target has (1,'Alice'); staging yields (1,'Alice Updated') and
// (2,'Bob'). After the run, the target has exactly two rows, with id=1
// updated in place.
func TestMaterializeIncrementalMerge(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	e := exec.New(h)

	ensureSchemas(t, h, ctx, "silver", "bronze")

	seedSource(t, h, ctx, `CREATE TABLE "silver"."customers" (id INTEGER, name TEXT)`)
	seedSource(t, h, ctx, `INSERT INTO "silver"."customers" VALUES (1, 'Alice')`)
	seedSource(t, h, ctx, `CREATE TABLE "bronze"."customer_updates" (id INTEGER, name TEXT)`)
	seedSource(t, h, ctx, `INSERT INTO "bronze"."customer_updates" VALUES (1, 'Alice Updated'), (2, 'Bob')`)

	m := &types.SQLModel{
		Schema: "silver", Name: "customers", Materialized: types.MaterializedIncremental,
		Query:               `SELECT id, name FROM "bronze"."customer_updates"`,
		UniqueKey:           "id",
		IncrementalStrategy: types.StrategyMerge,
	}
	result, err := e.Materialize(ctx, m)
	require.NoError(t, err)
	require.Equal(t, int64(2), result.RowCount)

	rows, err := h.Execute(ctx, `SELECT name FROM "silver"."customers" WHERE id = 1`)
	require.NoError(t, err)
	var name string
	require.NoError(t, rows.Scan(0, &name))
	require.Equal(t, "Alice Updated", name)
}

// TestMaterializeIncrementalPartitionBy mirrors the spec's partition-pruning
// scenario: target has three rows across two event_date partitions;
// staging replaces only the 2024-01-01 partition.
func TestMaterializeIncrementalPartitionBy(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	e := exec.New(h)

	ensureSchemas(t, h, ctx, "silver", "bronze")

	seedSource(t, h, ctx, `CREATE TABLE "silver"."events" (event_date TEXT, payload TEXT)`)
	seedSource(t, h, ctx, `INSERT INTO "silver"."events" VALUES
		('2024-01-01', 'old-a'), ('2024-01-01', 'old-b'), ('2024-01-02', 'kept')`)
	seedSource(t, h, ctx, `CREATE TABLE "bronze"."events_staging" (event_date TEXT, payload TEXT)`)
	seedSource(t, h, ctx, `INSERT INTO "bronze"."events_staging" VALUES
		('2024-01-01', 'new-a'), ('2024-01-01', 'new-b')`)

	m := &types.SQLModel{
		Schema: "silver", Name: "events", Materialized: types.MaterializedIncremental,
		Query:       `SELECT event_date, payload FROM "bronze"."events_staging"`,
		PartitionBy: "event_date",
	}
	result, err := e.Materialize(ctx, m)
	require.NoError(t, err)
	require.Equal(t, int64(3), result.RowCount)

	rows, err := h.Execute(ctx, `SELECT count(*) FROM "silver"."events" WHERE event_date = '2024-01-02'`)
	require.NoError(t, err)
	var kept int64
	require.NoError(t, rows.Scan(0, &kept))
	require.Equal(t, int64(1), kept)
}

func TestMaterializeIncrementalDeleteInsert(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	e := exec.New(h)

	ensureSchemas(t, h, ctx, "silver", "bronze")

	seedSource(t, h, ctx, `CREATE TABLE "silver"."orders" (id INTEGER, amount INTEGER)`)
	seedSource(t, h, ctx, `INSERT INTO "silver"."orders" VALUES (1, 100), (2, 200)`)
	seedSource(t, h, ctx, `CREATE TABLE "bronze"."orders_staging" (id INTEGER, amount INTEGER)`)
	seedSource(t, h, ctx, `INSERT INTO "bronze"."orders_staging" VALUES (1, 999)`)

	m := &types.SQLModel{
		Schema: "silver", Name: "orders", Materialized: types.MaterializedIncremental,
		Query:               `SELECT id, amount FROM "bronze"."orders_staging"`,
		UniqueKey:           "id",
		IncrementalStrategy: types.StrategyDeleteInsert,
	}
	result, err := e.Materialize(ctx, m)
	require.NoError(t, err)
	require.Equal(t, int64(2), result.RowCount)

	rows, err := h.Execute(ctx, `SELECT amount FROM "silver"."orders" WHERE id = 1`)
	require.NoError(t, err)
	var amount int64
	require.NoError(t, rows.Scan(0, &amount))
	require.Equal(t, int64(999), amount)
}

func TestMaterializeRejectsInvalidPartitionColumn(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	e := exec.New(h)

	ensureSchemas(t, h, ctx, "silver", "bronze")

	seedSource(t, h, ctx, `CREATE TABLE "silver"."events" (event_date TEXT)`)
	seedSource(t, h, ctx, `INSERT INTO "silver"."events" VALUES ('2024-01-01')`)
	seedSource(t, h, ctx, `CREATE TABLE "bronze"."events_staging" (event_date TEXT)`)
	seedSource(t, h, ctx, `INSERT INTO "bronze"."events_staging" VALUES ('2024-01-02')`)

	m := &types.SQLModel{
		Schema: "silver", Name: "events", Materialized: types.MaterializedIncremental,
		Query:       `SELECT event_date FROM "bronze"."events_staging"`,
		PartitionBy: "event_date; DROP TABLE events",
	}
	_, err := e.Materialize(ctx, m)
	require.Error(t, err)
}
