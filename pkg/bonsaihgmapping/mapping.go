// Package bonsaihgmapping implements the bidirectional, per-repo
// bijection between bonsai changeset ids and Mercurial changeset ids:
// SQLMapping for the source of truth, and CachedMapping wrapping it with
// the tiered cache (package cache) for the hot path.
package bonsaihgmapping

import (
	"context"

	"github.com/facebook/sapling-sub046/pkg/types"
)

// Entry is one row of the mapping: a single repo's bcs_id<->hg_cs_id pair.
type Entry struct {
	RepoID  types.RepoID
	BcsID   types.BonsaiChangesetID
	HgCsID  types.HgChangesetID
}

// Mapping is the bonsai<->hg contract. Add is insert-only: a duplicate
// of an identical entry is idempotent, a conflicting entry under either
// direction fails with errkind.Conflict. Get calls are partial: ids with
// no known mapping are simply absent from the result, never an error.
type Mapping interface {
	Add(ctx context.Context, entry Entry) error

	// GetByBonsai resolves hg changeset ids for the given bonsai ids.
	GetByBonsai(ctx context.Context, repoID types.RepoID, bcsIDs []types.BonsaiChangesetID) (map[types.BonsaiChangesetID]types.HgChangesetID, error)

	// GetByHg resolves bonsai changeset ids for the given hg ids.
	GetByHg(ctx context.Context, repoID types.RepoID, hgIDs []types.HgChangesetID) (map[types.HgChangesetID]types.BonsaiChangesetID, error)
}
