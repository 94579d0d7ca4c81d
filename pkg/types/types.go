// Package types defines the core value types shared across every layer of
// the storage substrate: content-addressed blob keys, the bonsai/hg
// changeset identity pair, and the commit-graph vertex/id/segment types
// used by the segmented changelog.
package types

import (
	"encoding/hex"
	"fmt"
	"time"
)

// RepoID identifies a repository. All storage, caching and indexing is
// partitioned by RepoID.
type RepoID int32

// BlobKey is the content-addressed key used by the blobstore. Keys are
// opaque strings; callers construct them with a stable prefix convention,
// e.g. "repo0123.changeset.blake3.<hex>".
type BlobKey string

// BlobBytes is an immutable wrapper around blob content, mirroring the
// thin Bytes wrapper the blobstore trades in rather than passing raw
// []byte around uncontrolled.
type BlobBytes struct {
	data []byte
}

// NewBlobBytes wraps data. The caller must not mutate data after the call.
func NewBlobBytes(data []byte) BlobBytes {
	return BlobBytes{data: data}
}

// Len returns the number of bytes.
func (b BlobBytes) Len() int { return len(b.data) }

// Bytes returns the underlying bytes. Callers must treat the result as
// read-only.
func (b BlobBytes) Bytes() []byte { return b.data }

// BonsaiChangesetID is a blake3 hash identifying a bonsai changeset, the
// canonical hash-addressed commit representation.
type BonsaiChangesetID [32]byte

// String renders the hex encoding of the id.
func (id BonsaiChangesetID) String() string {
	return hex.EncodeToString(id[:])
}

// IsNull reports whether id is the all-zero sentinel.
func (id BonsaiChangesetID) IsNull() bool {
	return id == BonsaiChangesetID{}
}

// ParseBonsaiChangesetID decodes a hex string into a BonsaiChangesetID.
func ParseBonsaiChangesetID(s string) (BonsaiChangesetID, error) {
	var id BonsaiChangesetID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("decoding bonsai changeset id: %w", err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("bonsai changeset id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// HgChangesetID is a sha1 hash identifying a Mercurial changeset, computed
// over the sorted parent pair and the manifest/extra envelope.
type HgChangesetID [20]byte

// NullID is the Mercurial null revision sentinel (20 zero bytes),
// conventionally used as the missing-parent marker.
var NullID HgChangesetID

// String renders the hex encoding of the id.
func (id HgChangesetID) String() string {
	return hex.EncodeToString(id[:])
}

// IsNull reports whether id equals NullID.
func (id HgChangesetID) IsNull() bool {
	return id == NullID
}

// ParseHgChangesetID decodes a hex string into an HgChangesetID.
func ParseHgChangesetID(s string) (HgChangesetID, error) {
	var id HgChangesetID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("decoding hg changeset id: %w", err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("hg changeset id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Vertex is the commit-graph's notion of a hashed commit identity, used by
// the segmented changelog as the stable name assigned a dense Id. In this
// module a Vertex is always a BonsaiChangesetID rendered as bytes.
type Vertex [32]byte

// VertexFromBonsai converts a BonsaiChangesetID to a Vertex.
func VertexFromBonsai(id BonsaiChangesetID) Vertex {
	return Vertex(id)
}

// String renders the hex encoding of the vertex.
func (v Vertex) String() string {
	return hex.EncodeToString(v[:])
}

// Group partitions the id space assigned by the IdMap. Master history gets
// small, densely packed ids in Group "master"; everything else (draft
// commits, scratch branches) is assigned in the non-master group so it
// never perturbs master's segment layout.
type Group uint8

const (
	GroupMaster Group = iota
	GroupNonMaster
)

// String renders the group name.
func (g Group) String() string {
	switch g {
	case GroupMaster:
		return "master"
	case GroupNonMaster:
		return "non_master"
	default:
		return "unknown"
	}
}

// Id is a dense integer assigned to a Vertex by the IdMap. Ids are unique
// within a Group, assigned in post-order DFS order so that a vertex's id
// is always greater than all of its ancestors' ids within the same group.
type Id int64

// IdRange is an inclusive id range [Low, High], used both to describe a
// Segment's span and to describe a contiguous run handed out by the id
// allocator.
type IdRange struct {
	Low  Id
	High Id
}

// Level is the segment level in the exponentially-sized segment hierarchy:
// level 0 segments cover single linear runs of commits, higher levels
// cover runs of lower-level segments.
type Level uint8

// Segment describes a contiguous, linearly-parented run of ids
// [Low, High] at a given Level, plus the ids of parent segments that
// attach to Low from outside the run.
type Segment struct {
	Level   Level
	Group   Group
	Low     Id
	High    Id
	Parents []Id
	// HasRoot indicates Low has no assigned parents at all (it is a root
	// of the commit graph); a segment attached to a parent in another
	// group has that parent in Parents instead.
	HasRoot bool
}

// Contains reports whether id falls within the segment's span.
func (s Segment) Contains(id Id) bool {
	return id >= s.Low && id <= s.High
}

// SegmentedChangelogVersion identifies the current generation of the
// IdMap and IdDag for a repo. Readers must observe a self-consistent
// (IdMapVersion, IdDagVersion) pair; replication propagates this pointer
// across replicas via raft.
type SegmentedChangelogVersion struct {
	RepoID       RepoID
	IdMapVersion uint64
	IdDagVersion uint64
}

// Location identifies a vertex relative to a known descendant: walk Dist
// steps from Descendant towards the root, following the first parent at
// each merge. Used by the clone/pull
// "location to hash" protocol so clients can resolve commits without
// shipping the full hash graph.
type Location struct {
	Descendant Vertex
	Dist       uint64
}

// DerivedDataType names a kind of data that can be derived from a bonsai
// changeset, e.g. "unodes", "fsnodes", "blame".
type DerivedDataType string

// RepairEvent records a single auto-repair action taken against an
// on-disk component, surfaced through pkg/events for operational
// visibility.
type RepairEvent struct {
	Component string
	RepoID    RepoID
	Detail    string
	At        time.Time
}
