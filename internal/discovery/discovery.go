// Package discovery walks a transform directory and builds the in-memory
// model set the rest of the engine operates on.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidalworks/flux/internal/sqlanalyzer"
	"github.com/tidalworks/flux/internal/types"
)

// Discover walks root recursively and parses every ".sql" file it finds
// into a *types.SQLModel. Schema defaults to the file's immediate parent
// directory name ("public" if the file sits directly under root); name is
// the filename stem.
func Discover(root string) ([]*types.SQLModel, error) {
	var models []*types.SQLModel

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.ToLower(filepath.Ext(path)) != ".sql" {
			return nil
		}

		m, err := parseModelFile(root, path)
		if err != nil {
			return fmt.Errorf("discovery: %s: %w", path, err)
		}
		models = append(models, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: walking %s: %w", root, err)
	}

	return models, nil
}

func parseModelFile(root, path string) (*types.SQLModel, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from WalkDir over a caller-controlled root
	if err != nil {
		return nil, err
	}
	raw := string(data)

	pc := sqlanalyzer.ParseComments(raw)

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	schema := pc.Schema
	if schema == "" {
		schema = defaultSchema(root, path)
	}

	m := &types.SQLModel{
		Path:                path,
		Schema:              schema,
		Name:                name,
		SQL:                 raw,
		Query:               pc.Query,
		Materialized:        materializationOrDefault(pc.Materialized),
		Description:         pc.Description,
		ColumnDocs:          pc.ColumnDocs,
		Assertions:          pc.Assertions,
		UniqueKey:           pc.UniqueKey,
		IncrementalStrategy: types.IncrementalStrategy(pc.IncrementalStrategy),
		IncrementalFilter:   pc.IncrementalFilter,
		PartitionBy:         pc.PartitionBy,
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	if len(pc.DependsOn) > 0 {
		m.DependsOn = pc.DependsOn
	} else {
		m.DependsOn = sqlanalyzer.ExtractTableRefs(m.Query, m.FullName())
	}

	m.ContentHash = types.ComputeContentHash(m.Query)

	return m, nil
}

func materializationOrDefault(m string) types.Materialization {
	if m == "" {
		return types.MaterializedView
	}
	return types.Materialization(m)
}

// defaultSchema is the file's immediate parent directory name, relative
// to root, or "public" when the file sits directly under root.
func defaultSchema(root, path string) string {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil || rel == "." {
		return "public"
	}
	return filepath.Base(rel)
}
