package sqlanalyzer

import (
	"regexp"
	"sort"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v5"
)

// SkipSchemas are never reported as a table reference: the AST and regex
// paths both drop any match whose schema falls in this set.
var SkipSchemas = map[string]bool{
	"information_schema": true,
	"_dp_internal":        true,
	"pg_catalog":          true,
	"sys":                 true,
}

var fallbackTableRefRE = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([A-Za-z_]\w*)\.([A-Za-z_]\w*)\b`)

type tableRef struct {
	schema string
	table  string
}

// ExtractTableRefs returns the sorted, deduplicated "schema.table"
// references query makes, with CTE names, catalog-schema entries, and
// selfFullName filtered out. Parses with the AST library first; falls
// back to a regex scanner when the dialect extension defeats the parser.
func ExtractTableRefs(query, selfFullName string) []string {
	refs, ctes, err := parseTableRefs(query)
	if err != nil {
		refs = scanTableRefs(query)
		ctes = nil
	}
	return filterRefs(refs, ctes, selfFullName)
}

func parseTableRefs(query string) ([]tableRef, map[string]bool, error) {
	result, err := pg_query.Parse(query)
	if err != nil {
		return nil, nil, err
	}

	ctes := map[string]bool{}
	var refs []tableRef

	for _, raw := range result.Stmts {
		walk(raw, func(n *pg_query.Node) {
			if cte := n.GetCommonTableExpr(); cte != nil {
				ctes[strings.ToLower(cte.Ctename)] = true
				return
			}
			rv := n.GetRangeVar()
			if rv == nil || rv.Schemaname == "" {
				return
			}
			refs = append(refs, tableRef{
				schema: strings.ToLower(rv.Schemaname),
				table:  strings.ToLower(rv.Relname),
			})
		})
	}

	return refs, ctes, nil
}

func scanTableRefs(query string) []tableRef {
	stripped := stripLineComments(query)
	var refs []tableRef
	for _, m := range fallbackTableRefRE.FindAllStringSubmatch(stripped, -1) {
		refs = append(refs, tableRef{schema: strings.ToLower(m[1]), table: strings.ToLower(m[2])})
	}
	return refs
}

func stripLineComments(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "--"); idx >= 0 {
			lines[i] = line[:idx]
		}
	}
	return strings.Join(lines, "\n")
}

func filterRefs(refs []tableRef, ctes map[string]bool, selfFullName string) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range refs {
		if SkipSchemas[r.schema] {
			continue
		}
		if ctes[r.table] {
			continue
		}
		full := r.schema + "." + r.table
		if full == selfFullName || seen[full] {
			continue
		}
		seen[full] = true
		out = append(out, full)
	}
	sort.Strings(out)
	return out
}
