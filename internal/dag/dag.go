// Package dag builds the dependency graph of a model set and orders it
// for execution, flat or tiered.
package dag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidalworks/flux/internal/types"
)

// Graph is the adjacency structure over a model set: edges run from an
// upstream model's full_name to every downstream model that depends on
// it. Only edges between two known models are recorded; external
// references (seeds, sources, landing tables) never appear here.
type Graph struct {
	models map[string]*types.SQLModel
	edges  map[string][]string // upstream -> downstream
	indeg  map[string]int
}

// Build indexes models by full_name and records edges for every
// depends_on entry that resolves to another model in the set.
func Build(models []*types.SQLModel) *Graph {
	g := &Graph{
		models: make(map[string]*types.SQLModel, len(models)),
		edges:  make(map[string][]string),
		indeg:  make(map[string]int, len(models)),
	}
	for _, m := range models {
		g.models[m.FullName()] = m
		g.indeg[m.FullName()] = 0
	}
	for _, m := range models {
		for _, dep := range m.DependsOn {
			if _, known := g.models[dep]; !known {
				continue
			}
			g.edges[dep] = append(g.edges[dep], m.FullName())
			g.indeg[m.FullName()]++
		}
	}
	return g
}

// TopoOrder returns a flat topological order of full_names via Kahn's
// algorithm. Ties are broken alphabetically for determinism.
func (g *Graph) TopoOrder() ([]string, error) {
	indeg := make(map[string]int, len(g.indeg))
	for k, v := range g.indeg {
		indeg[k] = v
	}

	var ready []string
	for name, d := range indeg {
		if d == 0 {
			ready = append(ready, name)
		}
	}

	var order []string
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		var newlyReady []string
		for _, down := range g.edges[next] {
			indeg[down]--
			if indeg[down] == 0 {
				newlyReady = append(newlyReady, down)
			}
		}
		sort.Strings(newlyReady)
		ready = append(ready, newlyReady...)
	}

	if len(order) != len(g.models) {
		cycle := g.findCycle()
		return nil, fmt.Errorf("%w: %s", types.ErrCycleDetected, strings.Join(cycle, " -> "))
	}

	return order, nil
}

// Tiers groups models into execution tiers: tier N contains every model
// whose upstream dependencies all appear in tiers < N. Models within a
// tier are mutually independent and safe to run concurrently; within a
// tier they are sorted alphabetically for determinism.
func (g *Graph) Tiers() ([][]string, error) {
	indeg := make(map[string]int, len(g.indeg))
	for k, v := range g.indeg {
		indeg[k] = v
	}

	remaining := len(g.models)
	var tiers [][]string

	for remaining > 0 {
		var tier []string
		for name, d := range indeg {
			if d == 0 {
				tier = append(tier, name)
			}
		}
		if len(tier) == 0 {
			cycle := g.findCycle()
			return nil, fmt.Errorf("%w: %s", types.ErrCycleDetected, strings.Join(cycle, " -> "))
		}
		sort.Strings(tier)
		tiers = append(tiers, tier)

		for _, name := range tier {
			delete(indeg, name)
			remaining--
			for _, down := range g.edges[name] {
				if _, ok := indeg[down]; ok {
					indeg[down]--
				}
			}
		}
	}

	return tiers, nil
}

// findCycle returns a human-readable path through one cycle in the
// graph, via BFS reachability from each node back to itself.
func (g *Graph) findCycle() []string {
	var names []string
	for name := range g.models {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, start := range names {
		if path := bfsPathBack(g, start); path != nil {
			return path
		}
	}
	return []string{"<unknown cycle>"}
}

// bfsPathBack searches for a path start -> ... -> start using only
// recorded edges. Returns nil if none exists.
func bfsPathBack(g *Graph, start string) []string {
	type frame struct {
		node string
		path []string
	}

	visited := map[string]bool{}
	queue := []frame{{node: start, path: []string{start}}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, next := range g.edges[cur.node] {
			if next == start {
				return append(append([]string{}, cur.path...), start)
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, frame{node: next, path: append(append([]string{}, cur.path...), next)})
		}
	}
	return nil
}
