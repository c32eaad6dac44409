package changedetect

import (
	"context"
	"testing"

	"github.com/tidalworks/flux/internal/types"
)

type fakeStore struct {
	states map[string]*types.ModelState
}

func (f *fakeStore) GetModelState(_ context.Context, fullName string) (*types.ModelState, error) {
	return f.states[fullName], nil
}

func TestUpstreamHashIgnoresExternalRefs(t *testing.T) {
	orders := &types.SQLModel{Schema: "bronze", Name: "orders", ContentHash: "aaaa"}
	byFullName := map[string]*types.SQLModel{"bronze.orders": orders}

	m := &types.SQLModel{DependsOn: []string{"bronze.orders", "seeds.raw"}}
	got := UpstreamHash(m, byFullName)
	want := types.ComputeUpstreamHash([]string{"aaaa"})
	if got != want {
		t.Errorf("UpstreamHash() = %q, want %q", got, want)
	}
}

func TestHasChangedNoStoredState(t *testing.T) {
	store := &fakeStore{states: map[string]*types.ModelState{}}
	m := &types.SQLModel{Schema: "silver", Name: "orders", ContentHash: "abc"}

	changed, err := HasChanged(context.Background(), store, m)
	if err != nil {
		t.Fatalf("HasChanged() error = %v", err)
	}
	if !changed {
		t.Error("HasChanged() = false, want true for first build")
	}
}

func TestHasChangedSameHashes(t *testing.T) {
	m := &types.SQLModel{Schema: "silver", Name: "orders", ContentHash: "abc", UpstreamHash: "def"}
	store := &fakeStore{states: map[string]*types.ModelState{
		"silver.orders": {FullName: "silver.orders", ContentHash: "abc", UpstreamHash: "def"},
	}}

	changed, err := HasChanged(context.Background(), store, m)
	if err != nil {
		t.Fatalf("HasChanged() error = %v", err)
	}
	if changed {
		t.Error("HasChanged() = true, want false when hashes match")
	}
}

func TestHasChangedDifferentContentHash(t *testing.T) {
	m := &types.SQLModel{Schema: "silver", Name: "orders", ContentHash: "new", UpstreamHash: "def"}
	store := &fakeStore{states: map[string]*types.ModelState{
		"silver.orders": {FullName: "silver.orders", ContentHash: "old", UpstreamHash: "def"},
	}}

	changed, err := HasChanged(context.Background(), store, m)
	if err != nil {
		t.Fatalf("HasChanged() error = %v", err)
	}
	if !changed {
		t.Error("HasChanged() = false, want true when content_hash differs")
	}
}
