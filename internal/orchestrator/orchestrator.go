// Package orchestrator drives a full transform run: discover models,
// build the DAG, execute changed models in dependency order (sequentially
// or tiered-parallel), evaluate assertions, profile successful outputs,
// and persist every attempt to the metadata schema.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tidalworks/flux/internal/assertcheck"
	"github.com/tidalworks/flux/internal/changedetect"
	"github.com/tidalworks/flux/internal/config"
	"github.com/tidalworks/flux/internal/dag"
	"github.com/tidalworks/flux/internal/debug"
	"github.com/tidalworks/flux/internal/discovery"
	"github.com/tidalworks/flux/internal/exec"
	"github.com/tidalworks/flux/internal/profiler"
	"github.com/tidalworks/flux/internal/types"
	"github.com/tidalworks/flux/internal/validate"
	"github.com/tidalworks/flux/internal/warehouse"
	"github.com/tidalworks/flux/internal/warehouse/meta"
)

// Options configures a transform run (spec's run_transform parameters).
type Options struct {
	TransformRoot string
	Targets       []string // matched against full_name or unqualified name
	Force         bool
	Parallel      bool
	MaxWorkers    int
}

// HandleFactory opens an independent warehouse handle pointing at the
// same database the orchestrator's primary handle uses. Required only
// for Options.Parallel — each worker gets its own handle so the
// warehouse, not in-process locking, arbitrates concurrent writes.
type HandleFactory func() (warehouse.Handle, error)

// RunTransform discovers, validates, and executes every changed model
// under opts.TransformRoot, returning one ModelResult per model attempted
// or skipped.
func RunTransform(ctx context.Context, wh warehouse.Handle, openWorker HandleFactory, seeds *config.SeedRegistry, sources *config.SourceRegistry, opts Options) (map[string]*types.ModelResult, error) {
	if err := wh.EnsureMetaTable(ctx); err != nil {
		return nil, fmt.Errorf("orchestrator: ensuring metadata schema: %w", err)
	}

	models, err := discovery.Discover(opts.TransformRoot)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: discovering models: %w", err)
	}
	models = filterTargets(models, opts.Targets)
	if len(models) == 0 {
		return map[string]*types.ModelResult{}, nil
	}

	validation, err := validate.Run(models, seeds, sources)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: validating models: %w", err)
	}
	for _, w := range validation.Warnings {
		debug.Warnf("%s: %s", w.Kind, w.Detail)
	}

	byFullName := make(map[string]*types.SQLModel, len(models))
	for _, m := range models {
		byFullName[m.FullName()] = m
	}
	for _, m := range models {
		m.UpstreamHash = changedetect.UpstreamHash(m, byFullName)
	}

	g := dag.Build(models)

	results := make(map[string]*types.ModelResult, len(models))

	if !opts.Parallel {
		order, err := g.TopoOrder()
		if err != nil {
			return nil, fmt.Errorf("orchestrator: building dependency graph: %w", err)
		}
		store := meta.New(wh)
		for _, fullName := range order {
			m, ok := byFullName[fullName]
			if !ok {
				continue // external reference, not one of our models
			}
			results[fullName] = runOne(ctx, wh, store, m, results, opts.Force)
		}
		return results, nil
	}

	tiers, err := g.Tiers()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: building dependency tiers: %w", err)
	}
	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	for _, tier := range tiers {
		tierModels := make([]*types.SQLModel, 0, len(tier))
		for _, fullName := range tier {
			if m, ok := byFullName[fullName]; ok {
				tierModels = append(tierModels, m)
			}
		}
		sort.Slice(tierModels, func(i, j int) bool { return tierModels[i].FullName() < tierModels[j].FullName() })

		tierResults := make([]*types.ModelResult, len(tierModels))
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(maxWorkers)
		for i, m := range tierModels {
			i, m := i, m
			eg.Go(func() error {
				h, err := openWorker()
				if err != nil {
					return fmt.Errorf("orchestrator: opening worker handle for %s: %w", m.FullName(), err)
				}
				defer func() { _ = h.Close() }()
				if err := h.EnsureMetaTable(egCtx); err != nil {
					return fmt.Errorf("orchestrator: preparing worker handle for %s: %w", m.FullName(), err)
				}
				for _, dep := range m.DependsOn {
					if up, ok := byFullName[dep]; ok {
						if err := h.Dialect().EnsureSchema(egCtx, h, up.Schema); err != nil {
							return fmt.Errorf("orchestrator: ensuring schema %s for %s: %w", up.Schema, m.FullName(), err)
						}
					}
				}
				store := meta.New(h)
				tierResults[i] = runOne(egCtx, h, store, m, results, opts.Force)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, fmt.Errorf("orchestrator: tier execution: %w", err)
		}
		for _, r := range tierResults {
			results[r.FullName] = r
		}
	}
	return results, nil
}

// runOne executes (or skips) a single model, writing its run log and, on
// success, its model state. priorResults holds every result decided so
// far in this run, used to classify "upstream failure" skips.
func runOne(ctx context.Context, wh warehouse.Handle, store *meta.Store, m *types.SQLModel, priorResults map[string]*types.ModelResult, force bool) *types.ModelResult {
	if reason, skip := upstreamFailed(m, priorResults); skip {
		return &types.ModelResult{FullName: m.FullName(), Status: types.StatusSkipped, Reason: reason}
	}

	changed, err := changedetect.HasChanged(ctx, store, m)
	if err != nil {
		return &types.ModelResult{FullName: m.FullName(), Status: types.StatusError, Error: err.Error()}
	}
	if !force && !changed {
		return &types.ModelResult{FullName: m.FullName(), Status: types.StatusSkipped, Reason: types.SkipReasonUnchanged}
	}

	runID := uuid.New().String()
	started := time.Now()
	result := attempt(ctx, wh, m)
	duration := time.Since(started)

	logEntry := &types.RunLog{
		RunID: runID, RunType: types.RunTypeTransform, Target: m.FullName(),
		Status: result.Status, StartedAt: started, DurationMs: duration.Milliseconds(),
		RowsAffected: result.RowCount, Error: result.Error,
	}
	if err := store.AppendRunLog(ctx, logEntry); err != nil {
		debug.Warnf("failed to write run log for %s: %v", m.FullName(), err)
	}

	if result.Status == types.StatusBuilt || result.Status == types.StatusAssertionFailed {
		state := &types.ModelState{
			FullName: m.FullName(), ContentHash: m.ContentHash, UpstreamHash: m.UpstreamHash,
			MaterializedAs: m.Materialized, LastRunAt: started, RunDurationMs: duration.Milliseconds(),
			RowCount: result.RowCount,
		}
		if err := store.UpsertModelState(ctx, state); err != nil {
			debug.Warnf("failed to write model state for %s: %v", m.FullName(), err)
		}
	}
	return result
}

// attempt runs materialization, assertions, and profiling for one model
// against wh, without touching metadata state — that's the caller's job
// once the attempt's outcome is known.
func attempt(ctx context.Context, wh warehouse.Handle, m *types.SQLModel) *types.ModelResult {
	engine := exec.New(wh)
	execResult, err := engine.Materialize(ctx, m)
	if err != nil {
		return &types.ModelResult{FullName: m.FullName(), Status: types.StatusError, Error: err.Error()}
	}

	status := types.StatusBuilt
	if len(m.Assertions) > 0 {
		checker := assertcheck.New(wh)
		assertionResults, allPassed, err := checker.Check(ctx, m)
		if err != nil {
			return &types.ModelResult{FullName: m.FullName(), Status: types.StatusError, Error: err.Error(), RowCount: execResult.RowCount}
		}
		store := meta.New(wh)
		for _, r := range assertionResults {
			if err := store.AppendAssertionResult(ctx, r); err != nil {
				debug.Warnf("failed to persist assertion result for %s: %v", m.FullName(), err)
			}
		}
		if !allPassed {
			status = types.StatusAssertionFailed
		}
	}

	if status == types.StatusBuilt && m.Materialized != types.MaterializedView {
		p := profiler.New(wh)
		profile, err := p.Profile(ctx, m)
		if err != nil {
			debug.Warnf("failed to profile %s: %v", m.FullName(), err)
		} else {
			store := meta.New(wh)
			if err := store.UpsertModelProfile(ctx, profile); err != nil {
				debug.Warnf("failed to persist profile for %s: %v", m.FullName(), err)
			}
		}
	}

	return &types.ModelResult{FullName: m.FullName(), Status: status, RowCount: execResult.RowCount}
}

// upstreamFailed reports whether any of m's direct dependencies failed
// with a hard execution error (or was itself skipped for that reason),
// per spec: an assertion_failed upstream does not block downstream
// models, only an error does.
func upstreamFailed(m *types.SQLModel, priorResults map[string]*types.ModelResult) (types.SkipReason, bool) {
	for _, dep := range m.DependsOn {
		r, ok := priorResults[dep]
		if !ok {
			continue
		}
		if r.Status == types.StatusError {
			return types.SkipReasonUpstreamFailure, true
		}
		if r.Status == types.StatusSkipped && r.Reason == types.SkipReasonUpstreamFailure {
			return types.SkipReasonUpstreamFailure, true
		}
	}
	return "", false
}

func filterTargets(models []*types.SQLModel, targets []string) []*types.SQLModel {
	if len(targets) == 0 {
		return models
	}
	want := make(map[string]bool, len(targets))
	for _, t := range targets {
		want[t] = true
	}
	var out []*types.SQLModel
	for _, m := range models {
		if want[m.FullName()] || want[m.Name] {
			out = append(out, m)
		}
	}
	return out
}
