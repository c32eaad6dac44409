package sqlanalyzer

import (
	"strings"
	"testing"
)

func TestParseComments(t *testing.T) {
	raw := `-- config: materialized=incremental, unique_key=order_id, incremental_strategy=merge
-- depends_on: bronze.orders, bronze.customers
-- description: Cleaned orders joined to customers.
-- col: order_id: primary key
-- col: total: order total in cents
-- assert: row_count > 0
-- assert: unique(order_id)
-- this is an ordinary comment, left alone
SELECT o.order_id, o.total
FROM bronze.orders o
JOIN bronze.customers c ON c.id = o.customer_id`

	pc := ParseComments(raw)

	if pc.Materialized != "incremental" {
		t.Errorf("Materialized = %q, want incremental", pc.Materialized)
	}
	if pc.UniqueKey != "order_id" {
		t.Errorf("UniqueKey = %q, want order_id", pc.UniqueKey)
	}
	if pc.IncrementalStrategy != "merge" {
		t.Errorf("IncrementalStrategy = %q, want merge", pc.IncrementalStrategy)
	}
	if len(pc.DependsOn) != 2 || pc.DependsOn[0] != "bronze.orders" || pc.DependsOn[1] != "bronze.customers" {
		t.Errorf("DependsOn = %v, want [bronze.orders bronze.customers]", pc.DependsOn)
	}
	if pc.Description != "Cleaned orders joined to customers." {
		t.Errorf("Description = %q", pc.Description)
	}
	if pc.ColumnDocs["order_id"] != "primary key" {
		t.Errorf("ColumnDocs[order_id] = %q", pc.ColumnDocs["order_id"])
	}
	if pc.ColumnDocs["total"] != "order total in cents" {
		t.Errorf("ColumnDocs[total] = %q", pc.ColumnDocs["total"])
	}
	if len(pc.Assertions) != 2 {
		t.Fatalf("Assertions = %v, want 2 entries", pc.Assertions)
	}
	if pc.Assertions[0] != "row_count > 0" || pc.Assertions[1] != "unique(order_id)" {
		t.Errorf("Assertions = %v", pc.Assertions)
	}

	if strings.Contains(pc.Query, "config:") || strings.Contains(pc.Query, "depends_on:") || strings.Contains(pc.Query, "assert:") {
		t.Errorf("stripped comment leaked into query: %q", pc.Query)
	}
	if !strings.Contains(pc.Query, "ordinary comment") {
		t.Errorf("non-metadata comment should survive: %q", pc.Query)
	}
	if !strings.Contains(pc.Query, "SELECT o.order_id") {
		t.Errorf("query body missing: %q", pc.Query)
	}
}

func TestParseCommentsDefaultsToEmpty(t *testing.T) {
	pc := ParseComments("SELECT 1")
	if pc.Materialized != "" {
		t.Errorf("Materialized = %q, want empty", pc.Materialized)
	}
	if len(pc.DependsOn) != 0 {
		t.Errorf("DependsOn = %v, want empty", pc.DependsOn)
	}
	if pc.Query != "SELECT 1" {
		t.Errorf("Query = %q", pc.Query)
	}
}
