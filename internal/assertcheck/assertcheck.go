// Package assertcheck parses and evaluates a model's inline assertion
// expressions against its materialized output. Parsing is form-based: each
// expression is tried against a fixed set of shapes in order, falling back
// to a free-form boolean SQL expression when none match — the same
// lex-by-shape, evaluate-directly style as the teacher's own hand-rolled
// internal/query expression language.
package assertcheck

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidalworks/flux/internal/types"
	"github.com/tidalworks/flux/internal/warehouse"
)

var (
	rowCountRE       = regexp.MustCompile(`^row_count\s*(>=|<=|!=|==|=|>|<)\s*(-?\d+)$`)
	noNullsRE        = regexp.MustCompile(`^no_nulls\(\s*([A-Za-z_][A-Za-z0-9_]*)\s*\)$`)
	uniqueRE         = regexp.MustCompile(`^unique\(\s*([A-Za-z_][A-Za-z0-9_]*)\s*\)$`)
	acceptedValuesRE = regexp.MustCompile(`^accepted_values\(\s*([A-Za-z_][A-Za-z0-9_]*)\s*,\s*\[(.*)\]\s*\)$`)
)

// Checker evaluates assertion expressions against a warehouse handle.
type Checker struct {
	wh warehouse.Handle
}

// New returns a Checker backed by wh.
func New(wh warehouse.Handle) *Checker {
	return &Checker{wh: wh}
}

// Check evaluates every assertion on m in order, returning one
// AssertionResult per expression and whether all of them passed. A
// non-nil error indicates a warehouse-level failure evaluating an
// assertion, distinct from the assertion itself failing its check.
func (c *Checker) Check(ctx context.Context, m *types.SQLModel) ([]*types.AssertionResult, bool, error) {
	full := qualifiedName(c.wh.Dialect(), m.Schema, m.Name)
	allPassed := true
	now := time.Now()
	results := make([]*types.AssertionResult, 0, len(m.Assertions))
	for _, expr := range m.Assertions {
		passed, detail, err := c.evaluate(ctx, full, expr)
		if err != nil {
			return results, false, fmt.Errorf("%w: evaluating assertion %q on %s: %v", types.ErrExecution, expr, m.FullName(), err)
		}
		if !passed {
			allPassed = false
		}
		results = append(results, &types.AssertionResult{
			ModelPath:  m.FullName(),
			Expression: expr,
			Passed:     passed,
			Detail:     detail,
			CheckedAt:  now,
		})
	}
	return results, allPassed, nil
}

func (c *Checker) evaluate(ctx context.Context, full, expr string) (bool, string, error) {
	trimmed := strings.TrimSpace(expr)

	if m := rowCountRE.FindStringSubmatch(trimmed); m != nil {
		return c.checkRowCount(ctx, full, m[1], m[2])
	}
	if m := noNullsRE.FindStringSubmatch(trimmed); m != nil {
		return c.checkNoNulls(ctx, full, m[1])
	}
	if m := uniqueRE.FindStringSubmatch(trimmed); m != nil {
		return c.checkUnique(ctx, full, m[1])
	}
	if m := acceptedValuesRE.FindStringSubmatch(trimmed); m != nil {
		return c.checkAcceptedValues(ctx, full, m[1], m[2])
	}
	return c.checkFreeForm(ctx, full, trimmed)
}

func (c *Checker) checkRowCount(ctx context.Context, full, op, nStr string) (bool, string, error) {
	n, err := strconv.ParseInt(nStr, 10, 64)
	if err != nil {
		return false, "", fmt.Errorf("assertcheck: parsing row_count operand %q: %w", nStr, err)
	}
	rows, err := c.wh.Execute(ctx, fmt.Sprintf("SELECT count(*) FROM %s", full))
	if err != nil {
		return false, "", err
	}
	var count int64
	if err := rows.Scan(0, &count); err != nil {
		return false, "", err
	}
	passed := compare(count, normalizeOp(op), n)
	return passed, fmt.Sprintf("row_count=%d", count), nil
}

func (c *Checker) checkNoNulls(ctx context.Context, full, col string) (bool, string, error) {
	q := quoteBare(col)
	rows, err := c.wh.Execute(ctx, fmt.Sprintf("SELECT count(*) FROM %s WHERE %s IS NULL", full, q))
	if err != nil {
		return false, "", err
	}
	var nullCount int64
	if err := rows.Scan(0, &nullCount); err != nil {
		return false, "", err
	}
	return nullCount == 0, fmt.Sprintf("null_count=%d", nullCount), nil
}

func (c *Checker) checkUnique(ctx context.Context, full, col string) (bool, string, error) {
	q := quoteBare(col)
	rows, err := c.wh.Execute(ctx, fmt.Sprintf(
		"SELECT count(*) - count(DISTINCT %s) FROM %s", q, full))
	if err != nil {
		return false, "", err
	}
	var dupes int64
	if err := rows.Scan(0, &dupes); err != nil {
		return false, "", err
	}
	return dupes <= 0, fmt.Sprintf("duplicate_count=%d", dupes), nil
}

func (c *Checker) checkAcceptedValues(ctx context.Context, full, col, valuesList string) (bool, string, error) {
	q := quoteBare(col)
	query := fmt.Sprintf(
		"SELECT count(*) FROM %s WHERE %s IS NOT NULL AND %s NOT IN (%s)", full, q, q, valuesList)
	rows, err := c.wh.Execute(ctx, query)
	if err != nil {
		return false, "", err
	}
	var violations int64
	if err := rows.Scan(0, &violations); err != nil {
		return false, "", err
	}
	return violations == 0, fmt.Sprintf("violations=%d", violations), nil
}

func (c *Checker) checkFreeForm(ctx context.Context, full, expr string) (bool, string, error) {
	query := fmt.Sprintf("SELECT CASE WHEN (%s) THEN true ELSE false END FROM %s LIMIT 1", expr, full)
	rows, err := c.wh.Execute(ctx, query)
	if err != nil {
		return false, "", err
	}
	if len(rows.Data) == 0 {
		return false, "empty result", nil
	}
	result := truthy(rows.Data[0][0])
	return result, fmt.Sprintf("expr=%v", result), nil
}

// truthy interprets a scanned CASE WHEN ... THEN true ELSE false result.
// Neither backend has a native boolean storage class (sqlite represents
// true/false as the integers 1/0; dolt's MySQL dialect does the same), so
// the driver hands back an integer rather than a Go bool.
func truthy(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case int64:
		return val != 0
	case int:
		return val != 0
	case float64:
		return val != 0
	case string:
		return val == "1" || strings.EqualFold(val, "true")
	default:
		return false
	}
}

func normalizeOp(op string) string {
	if op == "==" {
		return "="
	}
	return op
}

func compare(got int64, op string, want int64) bool {
	switch op {
	case ">":
		return got > want
	case ">=":
		return got >= want
	case "<":
		return got < want
	case "<=":
		return got <= want
	case "=":
		return got == want
	case "!=":
		return got != want
	default:
		return false
	}
}

func qualifiedName(d warehouse.Dialect, schema, name string) string {
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(name)
}

func quoteBare(col string) string {
	return `"` + col + `"`
}
