package validate

import (
	"errors"
	"testing"

	"github.com/tidalworks/flux/internal/config"
	"github.com/tidalworks/flux/internal/types"
)

func model(schema, name string, deps ...string) *types.SQLModel {
	return &types.SQLModel{Schema: schema, Name: name, DependsOn: deps}
}

func TestRunDetectsDuplicates(t *testing.T) {
	models := []*types.SQLModel{
		model("silver", "orders"),
		model("silver", "orders"),
	}
	_, err := Run(models, nil, nil)
	if !errors.Is(err, types.ErrDuplicateModel) {
		t.Errorf("Run() error = %v, want wrapping ErrDuplicateModel", err)
	}
}

func TestRunDetectsCycle(t *testing.T) {
	models := []*types.SQLModel{
		model("silver", "a", "silver.b"),
		model("silver", "b", "silver.a"),
	}
	_, err := Run(models, nil, nil)
	if !errors.Is(err, types.ErrCycleDetected) {
		t.Errorf("Run() error = %v, want wrapping ErrCycleDetected", err)
	}
}

func TestRunFlagsMissingUpstream(t *testing.T) {
	models := []*types.SQLModel{
		model("silver", "orders", "bronze.nonexistent"),
	}
	result, err := Run(models, nil, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want 1 entry", result.Warnings)
	}
	if result.Warnings[0].Kind != "MissingUpstream" {
		t.Errorf("Warnings[0].Kind = %q", result.Warnings[0].Kind)
	}
}

func TestRunSeedSuppressesWarningUnknownSourceDoesNot(t *testing.T) {
	models := []*types.SQLModel{
		model("silver", "orders", "seeds.raw_orders", "public.source_customers"),
	}
	seeds := config.NewSeedRegistry([]string{"seeds.raw_orders"})
	sources, err := config.LoadSourceRegistry(t.TempDir())
	if err != nil {
		t.Fatalf("LoadSourceRegistry() error = %v", err)
	}

	result, err := Run(models, seeds, sources)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Detail == "" {
		t.Fatalf("Warnings = %v, want exactly the unresolved source reference", result.Warnings)
	}
}
