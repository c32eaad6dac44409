package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SeedRegistry is the set of known seed table names (schema.table,
// lowercased), supplied by the external seed loader (spec §6.4). The
// transform engine never populates this itself; it only consults it.
type SeedRegistry struct {
	known map[string]bool
}

// NewSeedRegistry builds a registry from a list of "schema.table" strings.
func NewSeedRegistry(tables []string) *SeedRegistry {
	r := &SeedRegistry{known: make(map[string]bool, len(tables))}
	for _, t := range tables {
		r.known[strings.ToLower(t)] = true
	}
	return r
}

// Contains reports whether fullName names a known seed table.
func (r *SeedRegistry) Contains(fullName string) bool {
	if r == nil {
		return false
	}
	return r.known[strings.ToLower(fullName)]
}

// seedFile is the on-disk shape of seeds.yml: a flat list of schema.table
// names the external seed loader has populated.
type seedFile struct {
	Seeds []string `yaml:"seeds"`
}

// LoadSeedRegistry parses seeds.yml from projectDir. A missing file is not
// an error: it yields an empty registry, matching LoadSourceRegistry's
// "missing config is never fatal" convention.
func LoadSeedRegistry(projectDir string) (*SeedRegistry, error) {
	path := filepath.Join(projectDir, "seeds.yml")
	data, err := os.ReadFile(path) // #nosec G304 - path built from caller-supplied project dir
	if err != nil {
		if os.IsNotExist(err) {
			return NewSeedRegistry(nil), nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return NewSeedRegistry(sf.Seeds), nil
}

// sourceFile is the on-disk shape of sources.yml.
type sourceFile struct {
	Sources []struct {
		Schema string   `yaml:"schema"`
		Tables []struct {
			Name    string   `yaml:"name"`
			Columns []string `yaml:"columns"`
		} `yaml:"tables"`
	} `yaml:"sources"`
}

// SourceRegistry supplies (schema.table, columns) pairs from sources.yml
// for the validator's column-existence checks (spec §6.4).
type SourceRegistry struct {
	columns map[string][]string // full_name -> column names
}

// LoadSourceRegistry parses sources.yml from projectDir. A missing file is
// not an error: it yields an empty registry, matching the teacher's
// "missing config is never fatal" convention for local config files.
func LoadSourceRegistry(projectDir string) (*SourceRegistry, error) {
	path := filepath.Join(projectDir, "sources.yml")
	data, err := os.ReadFile(path) // #nosec G304 - path built from caller-supplied project dir
	if err != nil {
		if os.IsNotExist(err) {
			return &SourceRegistry{columns: map[string][]string{}}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var sf sourceFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	reg := &SourceRegistry{columns: map[string][]string{}}
	for _, s := range sf.Sources {
		for _, t := range s.Tables {
			full := strings.ToLower(s.Schema) + "." + strings.ToLower(t.Name)
			reg.columns[full] = t.Columns
		}
	}
	return reg, nil
}

// Contains reports whether fullName is a known source table.
func (r *SourceRegistry) Contains(fullName string) bool {
	if r == nil {
		return false
	}
	_, ok := r.columns[strings.ToLower(fullName)]
	return ok
}

// Columns returns the declared columns for fullName, or nil if unknown.
func (r *SourceRegistry) Columns(fullName string) []string {
	if r == nil {
		return nil
	}
	return r.columns[strings.ToLower(fullName)]
}
