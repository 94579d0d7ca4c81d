package derived

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/facebook/sapling-sub046/pkg/blobstore"
	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/metrics"
	"github.com/facebook/sapling-sub046/pkg/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkerWeight is the default bounded worker pool size for
// derivation traversal, per spec.md §9 "default ~100".
const DefaultWorkerWeight = 100

// DefaultLeaseTTL is the lease duration a single derivation holds before
// it must be renewed or is considered abandoned.
const DefaultLeaseTTL = 30 * time.Second

// Mode selects how a batch's writes reach the blobstore: Simple writes
// through immediately per id; Backfill buffers a whole batch in an
// overlay and flushes once, reducing write amplification for bulk
// backfills (spec.md §4.6 step 5).
type Mode int

const (
	Simple Mode = iota
	Backfill
)

// Orchestrator drives batched derivation of one derivation type over a
// DeriveGraph: leasing, bounded-concurrency traversal respecting
// intra-batch parent/child ordering, and the Simple/Backfill write
// modes.
type Orchestrator struct {
	Fetcher    ChangesetFetcher
	Leases     *LeaseStore
	Blobstore  blobstore.Blobstore
	Deriver    Deriver
	KeyFor     BlobKeyFor
	Owner      string
	MaxWorkers int64
	LeaseTTL   time.Duration
}

// NewOrchestrator builds an Orchestrator with spec.md defaults
// (MaxWorkers=DefaultWorkerWeight, LeaseTTL=DefaultLeaseTTL, Owner
// derived from the process hostname+pid).
func NewOrchestrator(fetcher ChangesetFetcher, leases *LeaseStore, store blobstore.Blobstore, deriver Deriver, keyFor BlobKeyFor) *Orchestrator {
	host, _ := os.Hostname()
	return &Orchestrator{
		Fetcher:    fetcher,
		Leases:     leases,
		Blobstore:  store,
		Deriver:    deriver,
		KeyFor:     keyFor,
		Owner:      fmt.Sprintf("%s-%d", host, os.Getpid()),
		MaxWorkers: DefaultWorkerWeight,
		LeaseTTL:   DefaultLeaseTTL,
	}
}

// Run derives graph's batches in order, each batch under the given
// mode. Batches run strictly sequentially (a later batch's ids may
// depend on an earlier batch's outputs); ids within a batch run
// concurrently, bounded by MaxWorkers, except where one id's parent is
// in the same batch, in which case the child waits for the parent.
func (o *Orchestrator) Run(ctx context.Context, graph *DeriveGraph, mode Mode) error {
	for _, batch := range graph.Batches {
		metrics.DerivationBatchSize.WithLabelValues(string(graph.DerivationType)).Observe(float64(len(batch)))
		if err := o.runBatch(ctx, graph.DerivationType, batch, mode); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runBatch(ctx context.Context, derivationType types.DerivedDataType, batch []types.BonsaiChangesetID, mode Mode) error {
	var target blobstore.Blobstore = o.Blobstore
	var overlay *blobstore.MemWritesBlobstore
	if mode == Backfill {
		overlay = blobstore.NewMemWritesBlobstore(o.Blobstore)
		target = overlay
	}

	inBatch := make(map[types.BonsaiChangesetID]bool, len(batch))
	for _, id := range batch {
		inBatch[id] = true
	}

	done := make(map[types.BonsaiChangesetID]chan struct{}, len(batch))
	for _, id := range batch {
		done[id] = make(chan struct{})
	}

	sem := semaphore.NewWeighted(o.MaxWorkers)
	g, gctx := errgroup.WithContext(ctx)

	for _, id := range batch {
		id := id
		if err := sem.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)
			defer close(done[id])

			parents, err := o.Fetcher.GetParents(gctx, id)
			if err != nil {
				return errkind.Wrap(errkind.Internal, "derive_get_parents", id.String(), err)
			}
			for _, p := range parents {
				if ch, ok := done[p]; ok && inBatch[p] {
					select {
					case <-ch:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
			}

			return o.deriveOne(gctx, derivationType, id, parents, target)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if overlay != nil {
		if err := overlay.Persist(ctx); err != nil {
			return errkind.Wrap(errkind.Internal, "derive_backfill_persist", string(derivationType), err)
		}
	}
	return nil
}

func (o *Orchestrator) deriveOne(ctx context.Context, derivationType types.DerivedDataType, id types.BonsaiChangesetID, parentIDs []types.BonsaiChangesetID, target blobstore.Blobstore) error {
	key := o.KeyFor(derivationType, id)
	if present, err := target.IsPresent(ctx, key); err != nil {
		return errkind.Wrap(errkind.Internal, "derive_is_present", id.String(), err)
	} else if present {
		return nil
	}

	for {
		acquired, err := o.Leases.Acquire(ctx, derivationType, id, o.Owner, o.LeaseTTL)
		if err != nil {
			return err
		}
		if acquired {
			break
		}
		metrics.DerivationLeaseContentionTotal.WithLabelValues(string(derivationType)).Inc()
		err = o.waitForArtifact(ctx, derivationType, id, target)
		var waitErr *errkind.Error
		if err == nil || !errors.As(err, &waitErr) || waitErr.Op != "derive_wait_lease_expired" {
			return err
		}
	}
	defer o.Leases.Release(ctx, derivationType, id, o.Owner)

	if present, err := target.IsPresent(ctx, key); err != nil {
		return errkind.Wrap(errkind.Internal, "derive_recheck_present", id.String(), err)
	} else if present {
		return nil
	}

	parents := make(map[types.BonsaiChangesetID]types.BlobBytes, len(parentIDs))
	for _, p := range parentIDs {
		pKey := o.KeyFor(derivationType, p)
		val, ok, err := target.Get(ctx, pKey)
		if err != nil {
			return errkind.Wrap(errkind.Internal, "derive_get_parent_artifact", p.String(), err)
		}
		if ok {
			parents[p] = val
		}
	}

	timer := metrics.NewTimer()
	value, err := o.Deriver(ctx, derivationType, id, parents)
	timer.ObserveDurationVec(metrics.DerivationDuration, string(derivationType))
	if err != nil {
		return errkind.Wrap(errkind.Internal, "derive", id.String(), err)
	}

	return target.Put(ctx, key, value)
}

// waitForArtifact implements spec.md §4.6 step 4b: when the lease is
// held elsewhere, periodically poll for the artifact; if the lease
// expires without the artifact appearing, it returns an Unavailable
// error with op "derive_wait_lease_expired" and deriveOne retries from
// Acquire.
func (o *Orchestrator) waitForArtifact(ctx context.Context, derivationType types.DerivedDataType, id types.BonsaiChangesetID, target blobstore.Blobstore) error {
	key := o.KeyFor(derivationType, id)
	deadline := time.Now().Add(o.LeaseTTL)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		if present, err := target.IsPresent(ctx, key); err != nil {
			return errkind.Wrap(errkind.Internal, "derive_wait_is_present", id.String(), err)
		} else if present {
			return nil
		}
		if time.Now().After(deadline) {
			return errkind.New(errkind.Unavailable, "derive_wait_lease_expired", id.String())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
