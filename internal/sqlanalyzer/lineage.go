package sqlanalyzer

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v5"
)

// ColumnSource is one upstream (table, column) pair an output column was
// derived from.
type ColumnSource struct {
	SourceTable  string
	SourceColumn string
}

// ColumnCatalog resolves a fully-qualified table name to its column
// names, for expanding "SELECT *" projections. The caller of
// ExtractLineage supplies it; this package does not build one from a
// warehouse handle.
type ColumnCatalog func(fullName string) []string

// ExtractLineage maps each output column of query's main SELECT to the
// upstream (table, column) pairs it was built from. dependsOn is used to
// attribute unqualified columns when there is exactly one upstream table.
// catalog may be nil, in which case "SELECT *" contributes no lineage.
func ExtractLineage(query string, dependsOn []string, catalog ColumnCatalog) map[string][]ColumnSource {
	result, err := pg_query.Parse(query)
	if err != nil || len(result.Stmts) == 0 {
		return map[string][]ColumnSource{}
	}

	var mainSelect *pg_query.SelectStmt
	for _, raw := range result.Stmts {
		if s := raw.GetStmt().GetSelectStmt(); s != nil {
			mainSelect = s
		}
	}
	if mainSelect == nil {
		return map[string][]ColumnSource{}
	}

	cteLineage := map[string]map[string][]ColumnSource{}
	if wc := mainSelect.GetWithClause(); wc != nil {
		for _, cteNode := range wc.GetCtes() {
			cte := cteNode.GetCommonTableExpr()
			if cte == nil {
				continue
			}
			if sel := cte.GetCtequery().GetSelectStmt(); sel != nil {
				cteLineage[strings.ToLower(cte.GetCtename())] = lineageForSelect(sel, nil, catalog, cteLineage)
			}
		}
	}

	return lineageForSelect(mainSelect, dependsOn, catalog, cteLineage)
}

func lineageForSelect(sel *pg_query.SelectStmt, dependsOn []string, catalog ColumnCatalog, cteLineage map[string]map[string][]ColumnSource) map[string][]ColumnSource {
	aliasMap := buildAliasMap(sel.GetFromClause())
	out := map[string][]ColumnSource{}

	for _, target := range sel.GetTargetList() {
		rt := target.GetResTarget()
		if rt == nil {
			continue
		}
		colRef := rt.GetVal().GetColumnRef()
		if colRef == nil {
			continue
		}

		if isStar(colRef) {
			expandStar(out, aliasMap, catalog)
			continue
		}

		outName := rt.GetName()
		table, col, ok := resolveColumnRef(colRef)
		if !ok {
			continue
		}

		sources := resolveSources(table, col, aliasMap, dependsOn, cteLineage)
		if outName == "" {
			outName = col
		}
		out[outName] = appendUnique(out[outName], sources...)
	}

	return out
}

// buildAliasMap walks a FROM clause (RangeVar and JoinExpr nodes) and
// returns alias/table-name -> fully-qualified "schema.table".
func buildAliasMap(fromClause []*pg_query.Node) map[string]string {
	aliases := map[string]string{}
	var visit func(n *pg_query.Node)
	visit = func(n *pg_query.Node) {
		if n == nil {
			return
		}
		if rv := n.GetRangeVar(); rv != nil {
			full := strings.ToLower(rv.GetRelname())
			if rv.GetSchemaname() != "" {
				full = strings.ToLower(rv.GetSchemaname()) + "." + full
			}
			aliases[strings.ToLower(rv.GetRelname())] = full
			if a := rv.GetAlias(); a != nil && a.GetAliasname() != "" {
				aliases[strings.ToLower(a.GetAliasname())] = full
			}
			return
		}
		if je := n.GetJoinExpr(); je != nil {
			visit(je.GetLarg())
			visit(je.GetRarg())
		}
	}
	for _, n := range fromClause {
		visit(n)
	}
	return aliases
}

func isStar(colRef *pg_query.ColumnRef) bool {
	fields := colRef.GetFields()
	return len(fields) == 1 && fields[0].GetAStar() != nil
}

// resolveColumnRef returns (table-qualifier, column, ok). table is empty
// when the reference is unqualified.
func resolveColumnRef(colRef *pg_query.ColumnRef) (table, column string, ok bool) {
	var parts []string
	for _, f := range colRef.GetFields() {
		if s := f.GetString_(); s != nil {
			parts = append(parts, s.GetSval())
		}
	}
	switch len(parts) {
	case 0:
		return "", "", false
	case 1:
		return "", strings.ToLower(parts[0]), true
	default:
		return strings.ToLower(parts[len(parts)-2]), strings.ToLower(parts[len(parts)-1]), true
	}
}

func resolveSources(table, col string, aliasMap map[string]string, dependsOn []string, cteLineage map[string]map[string][]ColumnSource) []ColumnSource {
	if table != "" {
		if inner, ok := cteLineage[table]; ok {
			if srcs, ok := inner[col]; ok {
				return srcs
			}
			return nil
		}
		if full, ok := aliasMap[table]; ok {
			return []ColumnSource{{SourceTable: full, SourceColumn: col}}
		}
		return []ColumnSource{{SourceTable: table, SourceColumn: col}}
	}

	if len(dependsOn) == 1 {
		return []ColumnSource{{SourceTable: dependsOn[0], SourceColumn: col}}
	}
	return nil
}

func expandStar(out map[string][]ColumnSource, aliasMap map[string]string, catalog ColumnCatalog) {
	if catalog == nil {
		return
	}
	seenTables := map[string]bool{}
	for _, full := range aliasMap {
		if seenTables[full] {
			continue
		}
		seenTables[full] = true
		for _, col := range catalog(full) {
			out[col] = appendUnique(out[col], ColumnSource{SourceTable: full, SourceColumn: col})
		}
	}
}

func appendUnique(existing []ColumnSource, add ...ColumnSource) []ColumnSource {
	for _, a := range add {
		dup := false
		for _, e := range existing {
			if e == a {
				dup = true
				break
			}
		}
		if !dup {
			existing = append(existing, a)
		}
	}
	return existing
}
