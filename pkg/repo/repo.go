package repo

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/facebook/sapling-sub046/pkg/blobstore"
	"github.com/facebook/sapling-sub046/pkg/bonsaihgmapping"
	"github.com/facebook/sapling-sub046/pkg/cache"
	"github.com/facebook/sapling-sub046/pkg/derived"
	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/events"
	"github.com/facebook/sapling-sub046/pkg/metrics"
	"github.com/facebook/sapling-sub046/pkg/segmented"
	"github.com/facebook/sapling-sub046/pkg/types"
)

// Config describes how to open a single repo's components. Callers
// build the Blobstore themselves (mem, bolt, S3, or a multiplexed
// composition of those) since its shape is a deployment decision this
// package does not make on their behalf.
type Config struct {
	RepoID    types.RepoID
	DataDir   string
	Blobstore blobstore.Blobstore

	// MemcacheClient is optional; when nil, the bonsai<->hg mapping is
	// the SQL store used directly, with neither an L1 nor an L2 tier.
	MemcacheClient cache.MemcacheClient
	MappingL1Size  int

	ParentFetcher segmented.ParentFetcher
	Deriver       derived.Deriver
	DerivedKeyFor derived.BlobKeyFor

	// Replication is optional. When set, the segmented changelog's
	// version pointer advances through a raft group rather than being
	// written to the local VersionStore directly.
	Replication *ReplicationConfig
}

// ReplicationConfig names this node in the raft group replicating the
// segmented changelog version pointer. A single repo with no peers
// still bootstraps its own single-node group, so joining a fleet later
// is a configuration change rather than a storage format migration.
type ReplicationConfig struct {
	NodeID   string
	BindAddr string
}

// Repo is a single repository's fully wired set of components.
type Repo struct {
	ID types.RepoID

	Blobstore  blobstore.Blobstore
	Mapping    bonsaihgmapping.Mapping
	Changelog  *segmented.Changelog
	Leases     *derived.LeaseStore
	Derived    *derived.Orchestrator
	Events     *events.Broker
	Replicator *segmented.Replicator

	fetcher *changelogFetcher
}

// Open opens every on-disk component rooted at cfg.DataDir:
// cfg.DataDir/mapping.db, cfg.DataDir/segments/{idmap,iddag,version.db},
// cfg.DataDir/derivation-lease.db.
func Open(ctx context.Context, cfg Config) (*Repo, error) {
	if cfg.MappingL1Size <= 0 {
		cfg.MappingL1Size = 4096
	}

	sqlMapping, err := bonsaihgmapping.OpenSQLMapping("file:" + filepath.Join(cfg.DataDir, "mapping.db"))
	if err != nil {
		return nil, err
	}
	var mapping bonsaihgmapping.Mapping = sqlMapping
	if cfg.MemcacheClient != nil {
		cached, err := bonsaihgmapping.NewCachedMapping(cfg.RepoID, sqlMapping, cfg.MappingL1Size, cfg.MemcacheClient)
		if err != nil {
			sqlMapping.Close()
			return nil, err
		}
		mapping = cached
	}

	changelog, err := segmented.Open(ctx, filepath.Join(cfg.DataDir, "segments"), cfg.RepoID, cfg.ParentFetcher)
	if err != nil {
		metrics.RegisterComponent("segmented_changelog", false, err.Error())
		metrics.RegisterComponent("indexedlog", false, err.Error())
		sqlMapping.Close()
		return nil, err
	}
	metrics.RegisterComponent("segmented_changelog", true, "")
	metrics.RegisterComponent("indexedlog", true, "")

	if cfg.Blobstore != nil {
		metrics.RegisterComponent("blobstore", true, "")
	} else {
		metrics.RegisterComponent("blobstore", false, "no blobstore configured")
	}

	var replicator *segmented.Replicator
	if cfg.Replication != nil {
		replicator, err = segmented.NewStandaloneReplicator(
			cfg.Replication.NodeID, cfg.Replication.BindAddr,
			filepath.Join(cfg.DataDir, "segments"), changelog.Version,
		)
		if err != nil {
			changelog.Close()
			sqlMapping.Close()
			return nil, err
		}
		changelog.UseReplicator(replicator)
	}

	leases, err := derived.OpenLeaseStore("file:" + filepath.Join(cfg.DataDir, "derivation-lease.db"))
	if err != nil {
		if replicator != nil {
			replicator.Shutdown()
		}
		changelog.Close()
		sqlMapping.Close()
		return nil, err
	}

	fetcher := &changelogFetcher{changelog: changelog, parents: cfg.ParentFetcher}
	orchestrator := derived.NewOrchestrator(fetcher, leases, cfg.Blobstore, cfg.Deriver, cfg.DerivedKeyFor)

	broker := events.NewBroker()
	broker.Start()

	return &Repo{
		ID:         cfg.RepoID,
		Blobstore:  cfg.Blobstore,
		Mapping:    mapping,
		Changelog:  changelog,
		Leases:     leases,
		Derived:    orchestrator,
		Events:     broker,
		Replicator: replicator,
		fetcher:    fetcher,
	}, nil
}

// Close releases every underlying store and stops the event broker.
func (r *Repo) Close() error {
	r.Events.Stop()
	r.Leases.Close()
	if r.Replicator != nil {
		r.Replicator.Shutdown()
	}
	err := r.Changelog.Close()
	if closer, ok := r.Mapping.(interface{ Close() error }); ok {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// HealthHandler serves this repo's aggregated component health
// (blobstore, indexedlog, segmented_changelog) as JSON.
func (r *Repo) HealthHandler() http.HandlerFunc { return metrics.HealthHandler() }

// ReadyHandler reports whether blobstore, indexedlog and the segmented
// changelog are all registered and healthy.
func (r *Repo) ReadyHandler() http.HandlerFunc { return metrics.ReadyHandler() }

// LivenessHandler is a liveness probe confirming only that the process
// is running.
func (r *Repo) LivenessHandler() http.HandlerFunc { return metrics.LivenessHandler() }

// Advance assigns ids and rebuilds segments up to head, then derives
// derivationType for every newly assigned id (mode Simple unless told
// otherwise), publishing an event on completion or failure.
func (r *Repo) Advance(ctx context.Context, group types.Group, head types.Vertex, derivationType types.DerivedDataType, mode derived.Mode) (types.Id, error) {
	headID, err := r.Changelog.Flush(ctx, group, head)
	if err != nil {
		return 0, err
	}

	ids := r.fetcher.assignedBonsaiIDs(group, headID)
	graph, err := derived.BuildDeriveGraph(ctx, r.fetcher, derivationType, ids, derived.DefaultBatchSize)
	if err != nil {
		return headID, err
	}

	r.Events.Publish(&events.Event{Type: events.EventDerivationStarted, RepoID: r.ID, Message: string(derivationType)})
	if err := r.Derived.Run(ctx, graph, mode); err != nil {
		r.Events.Publish(&events.Event{Type: events.EventDerivationFailed, RepoID: r.ID, Message: err.Error()})
		return headID, err
	}
	r.Events.Publish(&events.Event{Type: events.EventDerivationCompleted, RepoID: r.ID, Message: string(derivationType)})
	r.Events.Publish(&events.Event{Type: events.EventSegmentedChangelogRebuilt, RepoID: r.ID})

	return headID, nil
}

// changelogFetcher adapts a Changelog + the caller's ParentFetcher into
// a derived.ChangesetFetcher: generation number is approximated by the
// IdMap's densely packed post-order DFS id, which is monotonic in every
// ancestry relation exactly as generation number would be — sufficient
// for toposorting, per spec.md's "generation number (fetched from C5 or
// the changeset fetcher)".
type changelogFetcher struct {
	changelog *segmented.Changelog
	parents   segmented.ParentFetcher
}

func (f *changelogFetcher) GetGenerationNumber(ctx context.Context, id types.BonsaiChangesetID) (uint64, error) {
	vertexID, ok, err := f.changelog.IdMap.FindIDByVertex(types.VertexFromBonsai(id))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errkind.New(errkind.NotFound, "get_generation_number", id.String())
	}
	return uint64(vertexID), nil
}

func (f *changelogFetcher) GetParents(ctx context.Context, id types.BonsaiChangesetID) ([]types.BonsaiChangesetID, error) {
	vertices, err := f.parents.Parents(ctx, types.VertexFromBonsai(id))
	if err != nil {
		return nil, err
	}
	out := make([]types.BonsaiChangesetID, len(vertices))
	for i, v := range vertices {
		out[i] = types.BonsaiChangesetID(v)
	}
	return out, nil
}

// assignedBonsaiIDs returns every id assigned in group up to head,
// rendered as the bonsai changeset ids the derivation layer expects.
func (f *changelogFetcher) assignedBonsaiIDs(group types.Group, head types.Id) []types.BonsaiChangesetID {
	base := segmented.BaseOf(group)
	var out []types.BonsaiChangesetID
	for id := base; id <= head; id++ {
		if v, ok, err := f.changelog.IdMap.FindVertexByID(id); err == nil && ok {
			out = append(out, types.BonsaiChangesetID(v))
		}
	}
	return out
}
