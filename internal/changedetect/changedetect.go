// Package changedetect decides whether a model needs to be rebuilt by
// comparing its current content/upstream hashes against stored state.
package changedetect

import (
	"context"

	"github.com/tidalworks/flux/internal/types"
)

// StateStore is the read side of the metadata store change detection
// needs; warehouse/meta.Store satisfies it.
type StateStore interface {
	GetModelState(ctx context.Context, fullName string) (*types.ModelState, error)
}

// UpstreamHash computes a model's upstream hash from the content hashes
// of its depends_on entries that resolve to other known models. External
// references (seeds, sources) do not contribute — a seed changing does
// not by itself trigger a downstream rebuild.
func UpstreamHash(m *types.SQLModel, byFullName map[string]*types.SQLModel) string {
	var hashes []string
	for _, dep := range m.DependsOn {
		if up, ok := byFullName[dep]; ok {
			hashes = append(hashes, up.ContentHash)
		}
	}
	return types.ComputeUpstreamHash(hashes)
}

// HasChanged reports whether m needs to be rebuilt: true when there is no
// stored state yet, or when either hash differs from what is stored.
func HasChanged(ctx context.Context, store StateStore, m *types.SQLModel) (bool, error) {
	stored, err := store.GetModelState(ctx, m.FullName())
	if err != nil {
		return false, err
	}
	if stored == nil {
		return true, nil
	}
	return stored.ContentHash != m.ContentHash || stored.UpstreamHash != m.UpstreamHash, nil
}
