package segmented

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"path/filepath"
	"time"

	"github.com/facebook/sapling-sub046/pkg/types"
)

// replicationApplyTimeout bounds how long Flush waits for a version
// pointer advance to commit through the raft replicator, when one is
// configured.
const replicationApplyTimeout = 5 * time.Second

// Changelog ties together the IdMap, IdDag and version pointer for a
// single repo: the concrete, enabled implementation of the segmented
// changelog capability, as opposed to Disabled.
type Changelog struct {
	RepoID types.RepoID

	IdMap   *IdMap
	IdDag   *IdDag
	Version *VersionStore

	// Replicator is optional. When set, version pointer advances in
	// Flush go through raft consensus (and are replayed into Version by
	// VersionFSM.Apply on every replica) instead of writing Version
	// directly.
	Replicator *Replicator

	fetcher ParentFetcher
}

// UseReplicator enables raft-backed replication of this changelog's
// version pointer advances.
func (c *Changelog) UseReplicator(r *Replicator) {
	c.Replicator = r
}

// Open opens a repo's IdMap, IdDag and version store rooted at dir
// (conventionally dir/segments/{idmap,iddag} and dir/segments/version.db
// per spec.md §4.5.5).
func Open(ctx context.Context, dir string, repoID types.RepoID, fetcher ParentFetcher) (*Changelog, error) {
	idmap, err := OpenIdMap(ctx, filepath.Join(dir, "idmap"))
	if err != nil {
		return nil, err
	}
	iddag, err := OpenIdDag(ctx, filepath.Join(dir, "iddag"))
	if err != nil {
		idmap.Close()
		return nil, err
	}
	versionStore, err := OpenVersionStore("file:" + filepath.Join(dir, "version.db"))
	if err != nil {
		idmap.Close()
		iddag.Close()
		return nil, err
	}
	return &Changelog{RepoID: repoID, IdMap: idmap, IdDag: iddag, Version: versionStore, fetcher: fetcher}, nil
}

// Close releases every underlying store.
func (c *Changelog) Close() error {
	c.Version.Close()
	c.IdDag.Close()
	return c.IdMap.Close()
}

// Flush assigns ids to head and all not-yet-assigned ancestors, rebuilds
// segments covering the whole group, and durably advances the version
// pointer: a successful Flush means those heads are id-assigned and
// visible to any process honoring the new version row (spec.md §5
// "Ordering guarantees").
func (c *Changelog) Flush(ctx context.Context, group types.Group, head types.Vertex) (types.Id, error) {
	headID, err := c.IdMap.BuildUp(ctx, c.fetcher, group, head)
	if err != nil {
		return 0, err
	}

	ids := allAssignedIDs(c.IdMap, group, headID)
	levels, err := buildAllLevels(ctx, c.IdMap, c.fetcher, group, ids)
	if err != nil {
		return 0, err
	}
	if err := c.IdDag.StoreSegments(ctx, levels); err != nil {
		return 0, err
	}

	newVersion := types.SegmentedChangelogVersion{
		RepoID:       c.RepoID,
		IdMapVersion: uint64(headID),
		IdDagVersion: segmentDigestVersion(levels),
	}

	// A flush to a new head (new IdMapVersion) writes with Set; re-flushing
	// the same head goes through the conditional Update.
	if current, found, err := c.Version.Get(ctx, c.RepoID); err != nil {
		return 0, err
	} else if !found || current.IdMapVersion != newVersion.IdMapVersion {
		if err := c.applyVersion(ctx, newVersion, VersionOpSet); err != nil {
			return 0, err
		}
	} else if err := c.applyVersion(ctx, newVersion, VersionOpUpdate); err != nil {
		return 0, err
	}

	return headID, nil
}

// applyVersion durably advances the version pointer: through the raft
// replicator when one is configured, so every replica's VersionStore
// advances together, or directly against the local VersionStore
// otherwise.
func (c *Changelog) applyVersion(ctx context.Context, version types.SegmentedChangelogVersion, op string) error {
	if c.Replicator != nil {
		return c.Replicator.Apply(version, op, replicationApplyTimeout)
	}
	if op == VersionOpUpdate {
		return c.Version.Update(ctx, version)
	}
	return c.Version.Set(ctx, version)
}

// allAssignedIDs returns every id in group from its lowest assigned id
// up to head, in ascending order, for segment (re)building.
func allAssignedIDs(idmap *IdMap, group types.Group, head types.Id) []types.Id {
	base := BaseOf(group)
	ids := make([]types.Id, 0, int(head-base)+1)
	for id := base; id <= head; id++ {
		if _, ok, err := idmap.FindVertexByID(id); err == nil && ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// segmentDigestVersion derives a content-hash-shaped IdDagVersion from
// the built segments, so a rebuild that produces byte-identical
// segments reuses the same version number.
func segmentDigestVersion(levels [][]types.Segment) uint64 {
	h := sha256.New()
	for _, segs := range levels {
		for _, s := range segs {
			binary.Write(h, binary.BigEndian, int64(s.Low))
			binary.Write(h, binary.BigEndian, int64(s.High))
		}
	}
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}
