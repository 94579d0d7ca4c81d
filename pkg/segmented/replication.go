package segmented

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/facebook/sapling-sub046/pkg/metrics"
	"github.com/facebook/sapling-sub046/pkg/types"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// VersionOp names which VersionStore method a committed versionCommand
// should be replayed through: the Set-vs-Update conflict-resolution
// decision is made once, before the command reaches raft, and then
// carried along so every replica (not just the proposer) applies the
// same operation against its own local VersionStore.
const (
	VersionOpSet    = "set"
	VersionOpUpdate = "update"
)

// VersionFSM is the raft finite state machine that replicates only the
// SegmentedChangelogVersion pointer only (no segment delta; a
// follower's on-disk IdDag/IdMap data is not carried) rather than the
// teacher's full cluster state —
// a deliberately narrow FSM, since the bulk commit-graph data is
// expected to already be present or fetched out of band. Every commit
// is replayed into store, so each replica's own on-disk version
// pointer advances in lockstep with the raft log rather than only this
// FSM's in-memory copy.
type VersionFSM struct {
	mu      sync.RWMutex
	current types.SegmentedChangelogVersion
	store   *VersionStore
}

// NewVersionFSM creates an FSM that persists every committed version
// into store.
func NewVersionFSM(store *VersionStore) *VersionFSM {
	return &VersionFSM{store: store}
}

// Current returns the last version applied to this FSM.
func (f *VersionFSM) Current() types.SegmentedChangelogVersion {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// versionCommand is the single command kind this FSM's raft log ever
// carries.
type versionCommand struct {
	Version types.SegmentedChangelogVersion `json:"version"`
	Op      string                          `json:"op"`
}

// Apply applies a committed raft log entry: it replays Op against this
// replica's own VersionStore, then updates the in-memory current
// pointer only once that local write succeeds.
func (f *VersionFSM) Apply(log *raft.Log) interface{} {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftApplyDuration)

	var cmd versionCommand
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		metrics.SegmentedChangelogVersionApplied.WithLabelValues("error").Inc()
		return fmt.Errorf("version fsm: failed to unmarshal command: %w", err)
	}

	ctx := context.Background()
	var err error
	if cmd.Op == VersionOpUpdate {
		err = f.store.Update(ctx, cmd.Version)
	} else {
		err = f.store.Set(ctx, cmd.Version)
	}
	if err != nil {
		metrics.SegmentedChangelogVersionApplied.WithLabelValues("error").Inc()
		return err
	}

	f.mu.Lock()
	f.current = cmd.Version
	f.mu.Unlock()

	metrics.SegmentedChangelogVersionApplied.WithLabelValues("ok").Inc()
	return nil
}

// Snapshot captures the current version pointer.
func (f *VersionFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return &versionSnapshot{version: f.current}, nil
}

// Restore replaces current from a previously persisted snapshot.
func (f *VersionFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var version types.SegmentedChangelogVersion
	if err := json.NewDecoder(rc).Decode(&version); err != nil {
		return fmt.Errorf("version fsm: failed to decode snapshot: %w", err)
	}
	f.mu.Lock()
	f.current = version
	f.mu.Unlock()
	return nil
}

type versionSnapshot struct {
	version types.SegmentedChangelogVersion
}

func (s *versionSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.version); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *versionSnapshot) Release() {}

// Replicator wraps a raft.Raft instance whose only job is keeping every
// manager replica's VersionFSM in agreement.
type Replicator struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft *raft.Raft
	fsm  *VersionFSM
}

// NewReplicator creates (without starting) a Replicator over fsm.
func NewReplicator(nodeID, bindAddr, dataDir string, fsm *VersionFSM) *Replicator {
	return &Replicator{nodeID: nodeID, bindAddr: bindAddr, dataDir: dataDir, fsm: fsm}
}

// NewStandaloneReplicator builds, bootstraps and returns a Replicator
// backed by store as the sole member of its own raft group: the shape
// a single repo opens when replication is enabled but no peers have
// joined yet. Every VersionStore write still goes through a real raft
// log and snapshot trail, so adding peers later is a configuration
// change rather than a format migration.
func NewStandaloneReplicator(nodeID, bindAddr, dataDir string, store *VersionStore) (*Replicator, error) {
	r := NewReplicator(nodeID, bindAddr, dataDir, NewVersionFSM(store))
	if err := r.Bootstrap(); err != nil {
		return nil, err
	}
	return r, nil
}

// Current returns the version pointer last applied to this
// replicator's FSM.
func (r *Replicator) Current() types.SegmentedChangelogVersion {
	return r.fsm.Current()
}

// Bootstrap starts a single-node raft group for this replicator,
// suitable as the first member of a fleet.
func (r *Replicator) Bootstrap() error {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(r.nodeID)

	addr, err := net.ResolveTCPAddr("tcp", r.bindAddr)
	if err != nil {
		return fmt.Errorf("segmented: resolving raft bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(r.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("segmented: creating raft transport: %w", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(r.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("segmented: creating raft snapshot store: %w", err)
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(r.dataDir, "version-raft-log.db"))
	if err != nil {
		return fmt.Errorf("segmented: creating raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(r.dataDir, "version-raft-stable.db"))
	if err != nil {
		return fmt.Errorf("segmented: creating raft stable store: %w", err)
	}

	instance, err := raft.NewRaft(config, r.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("segmented: creating raft instance: %w", err)
	}
	r.raft = instance

	future := r.raft.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: config.LocalID, Address: transport.LocalAddr()}},
	})
	return future.Error()
}

// Apply proposes a new version pointer to the raft group under the
// given op (VersionOpSet or VersionOpUpdate), blocking until it is
// committed (or timeout elapses) and replayed into every replica's
// VersionStore via VersionFSM.Apply.
func (r *Replicator) Apply(version types.SegmentedChangelogVersion, op string, timeout time.Duration) error {
	data, err := json.Marshal(versionCommand{Version: version, Op: op})
	if err != nil {
		return err
	}
	future := r.raft.Apply(data, timeout)
	if err := future.Error(); err != nil {
		return err
	}
	if errResp, ok := future.Response().(error); ok && errResp != nil {
		return errResp
	}
	return nil
}

// IsLeader reports and records via metrics whether this replica is
// currently the raft leader.
func (r *Replicator) IsLeader() bool {
	leader := r.raft.State() == raft.Leader
	if leader {
		metrics.RaftIsLeader.Set(1)
	} else {
		metrics.RaftIsLeader.Set(0)
	}
	return leader
}

// Shutdown stops the raft instance.
func (r *Replicator) Shutdown() error {
	return r.raft.Shutdown().Error()
}
