// Package hashing computes the two changeset identity hashes used
// throughout the storage substrate: the BLAKE3-based bonsai changeset id
// and the SHA-1-based, Mercurial-compatible hg changeset id.
package hashing

import (
	"crypto/sha1"
	"encoding/binary"
	"sort"

	"github.com/facebook/sapling-sub046/pkg/types"
	"github.com/zeebo/blake3"
)

// FileChange describes one path's change within a bonsai commit, in the
// canonical field set hashed by BonsaiChangesetID.
type FileChange struct {
	Path    string
	Deleted bool
	Content []byte
}

// BonsaiCommit is the canonical bonsai commit structure hashed into a
// BonsaiChangesetID. Parents may be given in any order: HashBonsai sorts
// them internally, so the hash does not depend on the p1/p2 designation.
type BonsaiCommit struct {
	Parents     []types.BonsaiChangesetID
	Author      string
	Message     string
	DateUnix    int64
	DateTzOffset int32
	FileChanges []FileChange
}

// HashBonsai computes the BonsaiChangesetID of a commit by hashing a
// sorted, length-prefixed field concatenation with BLAKE3. Parents and
// file changes are sorted so that semantically identical commits built
// in a different field order still hash identically.
func HashBonsai(c BonsaiCommit) types.BonsaiChangesetID {
	parents := append([]types.BonsaiChangesetID(nil), c.Parents...)
	sort.Slice(parents, func(i, j int) bool {
		return string(parents[i][:]) < string(parents[j][:])
	})

	changes := append([]FileChange(nil), c.FileChanges...)
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Path < changes[j].Path
	})

	h := blake3.New()
	writeLP(h, []byte("bonsai-v1"))
	for _, p := range parents {
		writeLP(h, p[:])
	}
	writeLP(h, []byte(c.Author))
	writeLP(h, []byte(c.Message))
	writeUint64(h, uint64(c.DateUnix))
	writeUint64(h, uint64(uint32(c.DateTzOffset)))
	writeUint64(h, uint64(len(changes)))
	for _, fc := range changes {
		writeLP(h, []byte(fc.Path))
		if fc.Deleted {
			writeUint64(h, 1)
		} else {
			writeUint64(h, 0)
			writeLP(h, fc.Content)
		}
	}

	var out types.BonsaiChangesetID
	sum := h.Sum(nil)
	copy(out[:], sum)
	return out
}

// HashHg computes the HgChangesetID per Mercurial semantics:
// SHA1(sorted(p1,p2) || canonicalText). p1/p2 may be types.NullID when a
// parent is absent; the null id always sorts first.
func HashHg(p1, p2 types.HgChangesetID, canonicalText []byte) types.HgChangesetID {
	a, b := p1, p2
	if string(b[:]) < string(a[:]) {
		a, b = b, a
	}

	h := sha1.New()
	h.Write(a[:])
	h.Write(b[:])
	h.Write(canonicalText)

	var out types.HgChangesetID
	copy(out[:], h.Sum(nil))
	return out
}

func writeLP(h *blake3.Hasher, b []byte) {
	writeUint64(h, uint64(len(b)))
	h.Write(b)
}

func writeUint64(h *blake3.Hasher, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}
