// Package sqlanalyzer parses the metadata embedded in a model file's line
// comments and extracts the tables a query reads from.
package sqlanalyzer

import (
	"regexp"
	"strings"
)

var (
	configLineRE      = regexp.MustCompile(`(?i)^--\s*config:\s*(.+)$`)
	dependsOnLineRE   = regexp.MustCompile(`(?i)^--\s*depends_on:\s*(.+)$`)
	descriptionLineRE = regexp.MustCompile(`(?i)^--\s*description:\s*(.+)$`)
	colLineRE         = regexp.MustCompile(`(?i)^--\s*col:\s*([A-Za-z_]\w*)\s*:\s*(.*)$`)
	assertLineRE      = regexp.MustCompile(`(?i)^--\s*assert:\s*(.+)$`)
)

// ParsedComments holds everything extracted from a model file's metadata
// comments, before discovery layers on defaults and AST-derived fields.
type ParsedComments struct {
	Query       string // sql with metadata comment lines stripped
	DependsOn   []string
	Description string
	ColumnDocs  map[string]string
	Assertions  []string

	Materialized        string
	Schema              string
	UniqueKey           string
	IncrementalStrategy string
	IncrementalFilter   string
	PartitionBy         string
}

// ParseComments applies the five-line-comment grammar to raw model SQL in
// a single pass. Every matching line is stripped from the returned query;
// all other lines, including ordinary "--" comments, are preserved as-is.
func ParseComments(raw string) *ParsedComments {
	pc := &ParsedComments{ColumnDocs: map[string]string{}}

	lines := strings.Split(raw, "\n")
	var kept []string
	var descriptionParts []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if m := configLineRE.FindStringSubmatch(trimmed); m != nil {
			applyConfig(pc, m[1])
			continue
		}
		if m := dependsOnLineRE.FindStringSubmatch(trimmed); m != nil {
			pc.DependsOn = splitTrimLower(m[1])
			continue
		}
		if m := descriptionLineRE.FindStringSubmatch(trimmed); m != nil {
			descriptionParts = append(descriptionParts, strings.TrimSpace(m[1]))
			continue
		}
		if m := colLineRE.FindStringSubmatch(trimmed); m != nil {
			pc.ColumnDocs[strings.ToLower(m[1])] = strings.TrimSpace(m[2])
			continue
		}
		if m := assertLineRE.FindStringSubmatch(trimmed); m != nil {
			pc.Assertions = append(pc.Assertions, strings.TrimSpace(m[1]))
			continue
		}

		kept = append(kept, line)
	}

	pc.Query = strings.TrimSpace(strings.Join(kept, "\n"))
	pc.Description = strings.Join(descriptionParts, " ")

	return pc
}

func applyConfig(pc *ParsedComments, body string) {
	for _, pair := range strings.Split(body, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.TrimSpace(kv[1])

		switch key {
		case "materialized":
			pc.Materialized = strings.ToLower(val)
		case "schema":
			pc.Schema = strings.ToLower(val)
		case "unique_key":
			pc.UniqueKey = val
		case "incremental_strategy":
			pc.IncrementalStrategy = strings.ToLower(val)
		case "incremental_filter":
			pc.IncrementalFilter = val
		case "partition_by":
			pc.PartitionBy = strings.ToLower(val)
		}
	}
}

func splitTrimLower(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
