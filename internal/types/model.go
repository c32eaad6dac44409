// Package types holds the data model shared by every transform-engine
// component: models, persisted run state, and the small sum types that
// stand in for the dynamically-typed statuses of the source system.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Materialization is how a model's output is stored.
type Materialization string

const (
	MaterializedView        Materialization = "view"
	MaterializedTable       Materialization = "table"
	MaterializedIncremental Materialization = "incremental"
)

// IncrementalStrategy selects how an incremental model merges new data.
type IncrementalStrategy string

const (
	StrategyAppend       IncrementalStrategy = "append"
	StrategyDeleteInsert IncrementalStrategy = "delete+insert"
	StrategyMerge        IncrementalStrategy = "merge"
)

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is a safe, bare SQL identifier.
func ValidIdentifier(name string) bool {
	return identifierRE.MatchString(name)
}

// SQLModel is a single parsed model file.
type SQLModel struct {
	Path    string
	Schema  string
	Name    string
	SQL     string // raw file contents
	Query   string // SQL with metadata comment lines stripped

	Materialized Materialization
	DependsOn    []string // "schema.table"; sorted and deduplicated when AST-extracted, file order when declared via -- depends_on:

	Description string
	ColumnDocs  map[string]string
	Assertions  []string

	UniqueKey           string // comma-joined columns, empty if unset
	IncrementalStrategy IncrementalStrategy
	IncrementalFilter   string // SQL fragment, "{this}" placeholder
	PartitionBy         string

	ContentHash  string
	UpstreamHash string
}

// FullName returns "schema.name", lowercased.
func (m *SQLModel) FullName() string {
	return strings.ToLower(m.Schema) + "." + strings.ToLower(m.Name)
}

// normalizeWhitespace collapses runs of whitespace to a single space and
// trims the result, so formatting-only edits don't change the content hash.
func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// ComputeContentHash returns the 16-hex-digit SHA-256 over the
// whitespace-normalized query.
func ComputeContentHash(query string) string {
	sum := sha256.Sum256([]byte(normalizeWhitespace(query)))
	return hex.EncodeToString(sum[:])[:16]
}

// ComputeUpstreamHash returns the 16-hex-digit SHA-256 over the sorted
// concatenation of the given upstream content hashes. Empty when upstream
// is empty.
func ComputeUpstreamHash(upstreamContentHashes []string) string {
	if len(upstreamContentHashes) == 0 {
		return ""
	}
	sorted := append([]string(nil), upstreamContentHashes...)
	sortStrings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "")))
	return hex.EncodeToString(sum[:])[:16]
}

func sortStrings(s []string) {
	// insertion sort is fine here: upstream lists are small.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Validate checks schema/name identifiers and that the fields required by
// the model's materialization are internally consistent.
func (m *SQLModel) Validate() error {
	if !ValidIdentifier(m.Schema) {
		return fmt.Errorf("%w: schema %q in %s", ErrInvalidIdentifier, m.Schema, m.Path)
	}
	if !ValidIdentifier(m.Name) {
		return fmt.Errorf("%w: name %q in %s", ErrInvalidIdentifier, m.Name, m.Path)
	}
	if m.PartitionBy != "" && !ValidIdentifier(m.PartitionBy) {
		return fmt.Errorf("%w: partition_by %q in %s", ErrInvalidIdentifier, m.PartitionBy, m.Path)
	}
	return nil
}
