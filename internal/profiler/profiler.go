// Package profiler gathers row count, per-column null percentage, and
// distinct count for a model's materialized output, persisting the
// result as a ModelProfile. Only runs for table and incremental
// materializations that succeeded and passed their assertions.
package profiler

import (
	"context"
	"fmt"
	"time"

	"github.com/tidalworks/flux/internal/debug"
	"github.com/tidalworks/flux/internal/types"
	"github.com/tidalworks/flux/internal/warehouse"
)

const nullWarnThreshold = 0.5

// Profiler computes ModelProfile summaries against a warehouse handle.
type Profiler struct {
	wh warehouse.Handle
}

// New returns a Profiler backed by wh.
func New(wh warehouse.Handle) *Profiler {
	return &Profiler{wh: wh}
}

// Profile computes row_count and, for each column, null_percentage and
// distinct_count. A column exceeding 50% nulls is logged as a warning but
// does not change the result or fail the model.
func (p *Profiler) Profile(ctx context.Context, m *types.SQLModel) (*types.ModelProfile, error) {
	d := p.wh.Dialect()
	full := d.QuoteIdent(m.Schema) + "." + d.QuoteIdent(m.Name)

	cols, err := p.columns(ctx, full)
	if err != nil {
		return nil, fmt.Errorf("%w: reading columns for %s: %v", types.ErrExecution, m.FullName(), err)
	}

	rowCount, err := p.rowCount(ctx, full)
	if err != nil {
		return nil, fmt.Errorf("%w: counting rows for %s: %v", types.ErrExecution, m.FullName(), err)
	}

	nullPct := make(map[string]float64, len(cols))
	distinct := make(map[string]int64, len(cols))
	for _, col := range cols {
		nc, dc, err := p.columnStats(ctx, full, col)
		if err != nil {
			return nil, fmt.Errorf("%w: profiling column %s.%s: %v", types.ErrExecution, m.FullName(), col, err)
		}
		pct := 0.0
		if rowCount > 0 {
			pct = round1(float64(nc) / float64(rowCount) * 100)
		}
		nullPct[col] = pct
		distinct[col] = dc
		if rowCount > 0 && float64(nc)/float64(rowCount) > nullWarnThreshold {
			debug.Warnf("column %s.%s is %.1f%% null", m.FullName(), col, pct)
		}
	}

	return &types.ModelProfile{
		ModelPath:       m.FullName(),
		RowCount:        rowCount,
		ColumnCount:     len(cols),
		NullPercentages: nullPct,
		DistinctCounts:  distinct,
		ProfiledAt:      time.Now(),
	}, nil
}

func (p *Profiler) columns(ctx context.Context, full string) ([]string, error) {
	rows, err := p.wh.Execute(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", full))
	if err != nil {
		return nil, err
	}
	return rows.Columns, nil
}

func (p *Profiler) rowCount(ctx context.Context, full string) (int64, error) {
	rows, err := p.wh.Execute(ctx, fmt.Sprintf("SELECT count(*) FROM %s", full))
	if err != nil {
		return 0, err
	}
	var count int64
	if err := rows.Scan(0, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (p *Profiler) columnStats(ctx context.Context, full, col string) (nullCount, distinctCount int64, err error) {
	q := `"` + col + `"`
	rows, err := p.wh.Execute(ctx, fmt.Sprintf(
		"SELECT count(*) - count(%s), count(DISTINCT %s) FROM %s", q, q, full))
	if err != nil {
		return 0, 0, err
	}
	if err := rows.Scan(0, &nullCount, &distinctCount); err != nil {
		return 0, 0, err
	}
	return nullCount, distinctCount, nil
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
