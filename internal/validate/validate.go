// Package validate runs the checks the orchestrator must pass before it
// is safe to execute a model set: duplicate detection, cycle detection,
// and missing-upstream classification.
package validate

import (
	"fmt"
	"sort"

	"github.com/tidalworks/flux/internal/config"
	"github.com/tidalworks/flux/internal/dag"
	"github.com/tidalworks/flux/internal/types"
)

// Warning is a non-fatal finding surfaced to the caller; the run proceeds.
type Warning struct {
	FullName string
	Kind     string // "MissingUpstream"
	Detail   string
}

// Result is the outcome of validating a model set.
type Result struct {
	Warnings []Warning
}

// Run checks models for duplicate full_names and dependency cycles
// (both fatal), then classifies every depends_on reference that resolves
// to neither a known model, a seed, nor a source as a MissingUpstream
// warning. seeds and sources may be nil.
func Run(models []*types.SQLModel, seeds *config.SeedRegistry, sources *config.SourceRegistry) (*Result, error) {
	if err := checkDuplicates(models); err != nil {
		return nil, err
	}

	g := dag.Build(models)
	if _, err := g.TopoOrder(); err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(models))
	for _, m := range models {
		known[m.FullName()] = true
	}

	var warnings []Warning
	for _, m := range models {
		for _, dep := range m.DependsOn {
			if known[dep] || seeds.Contains(dep) || sources.Contains(dep) {
				continue
			}
			warnings = append(warnings, Warning{
				FullName: m.FullName(),
				Kind:     "MissingUpstream",
				Detail:   fmt.Sprintf("%s references unknown upstream %q", m.FullName(), dep),
			})
		}
	}
	sort.Slice(warnings, func(i, j int) bool {
		if warnings[i].FullName != warnings[j].FullName {
			return warnings[i].FullName < warnings[j].FullName
		}
		return warnings[i].Detail < warnings[j].Detail
	})

	return &Result{Warnings: warnings}, nil
}

func checkDuplicates(models []*types.SQLModel) error {
	seen := make(map[string]string, len(models))
	var dupes []string
	for _, m := range models {
		full := m.FullName()
		if prior, ok := seen[full]; ok {
			dupes = append(dupes, fmt.Sprintf("%s (%s, %s)", full, prior, m.Path))
			continue
		}
		seen[full] = m.Path
	}
	if len(dupes) > 0 {
		sort.Strings(dupes)
		return fmt.Errorf("%w: %v", types.ErrDuplicateModel, dupes)
	}
	return nil
}
