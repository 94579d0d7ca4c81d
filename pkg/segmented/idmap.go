package segmented

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/indexedlog"
	"github.com/facebook/sapling-sub046/pkg/metrics"
	"github.com/facebook/sapling-sub046/pkg/types"
)

// nonMasterBase is the first id handed out in GroupNonMaster: bit 62,
// the top bit of a 63-bit id, marks the non-master group. Keeping
// master and non-master ids in disjoint numeric ranges gives "MASTER
// ids < NON_MASTER ids" for free, without tagging every id with its
// group.
const nonMasterBase = types.Id(1 << 62)

// ParentFetcher resolves a vertex's parents in the underlying DAG, in
// original order (Parents()[0] is p1). It is the only way the segmented
// changelog learns about graph topology; both IdMap assignment and
// IdDag segment construction go through it.
type ParentFetcher interface {
	Parents(ctx context.Context, v types.Vertex) ([]types.Vertex, error)
}

// idMapRecordSize is the fixed width of an IdMap log record: a 32-byte
// vertex followed by an 8-byte big-endian id.
const idMapRecordSize = 32 + 8

func encodeIDMapRecord(v types.Vertex, id types.Id) []byte {
	buf := make([]byte, idMapRecordSize)
	copy(buf[:32], v[:])
	binary.BigEndian.PutUint64(buf[32:], uint64(id))
	return buf
}

func decodeIDMapRecord(payload []byte) (types.Vertex, types.Id) {
	var v types.Vertex
	copy(v[:], payload[:32])
	id := types.Id(binary.BigEndian.Uint64(payload[32:]))
	return v, id
}

// IdMap is the persistent, write-once-per-(vertex,id) bijection between
// commit-graph vertices and the dense ids the segmented changelog
// assigns them.
type IdMap struct {
	log *indexedlog.Log

	nextMaster    types.Id
	nextNonMaster types.Id
}

// OpenIdMap opens (or creates) the IdMap log rooted at dir, replaying
// it to recover the next id to hand out in each group.
func OpenIdMap(ctx context.Context, dir string) (*IdMap, error) {
	log, err := indexedlog.OpenWithRepair(ctx, dir, "idmap", idMapIndexSpecs())
	if err != nil {
		return nil, err
	}

	m := &IdMap{log: log, nextMaster: 1, nextNonMaster: nonMasterBase}
	err = log.ForEach(func(_ int64, payload []byte) error {
		_, id := decodeIDMapRecord(payload)
		if id >= nonMasterBase {
			if id+1 > m.nextNonMaster {
				m.nextNonMaster = id + 1
			}
		} else if id+1 > m.nextMaster {
			m.nextMaster = id + 1
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func idMapIndexSpecs() []indexedlog.IndexSpec {
	return []indexedlog.IndexSpec{
		{
			Name: "vertex",
			KeyFunc: func(payload []byte) ([]byte, bool) {
				return append([]byte(nil), payload[:32]...), true
			},
		},
		{
			Name: "id",
			KeyFunc: func(payload []byte) ([]byte, bool) {
				return append([]byte(nil), payload[32:]...), true
			},
		},
	}
}

// GroupOf reports which group an id belongs to, derived from its
// numeric range rather than a stored tag.
func GroupOf(id types.Id) types.Group {
	if id >= nonMasterBase {
		return types.GroupNonMaster
	}
	return types.GroupMaster
}

// BaseOf returns the first id allocated within group.
func BaseOf(group types.Group) types.Id {
	if group == types.GroupNonMaster {
		return nonMasterBase
	}
	return types.Id(1)
}

// Close releases the underlying log.
func (m *IdMap) Close() error { return m.log.Close() }

// FindIDByVertex looks up the id assigned to v, if any.
func (m *IdMap) FindIDByVertex(v types.Vertex) (types.Id, bool, error) {
	payload, found, err := m.log.Lookup("vertex", v[:])
	if err != nil {
		return 0, false, err
	}
	if !found {
		return 0, false, nil
	}
	_, id := decodeIDMapRecord(payload)
	return id, true, nil
}

// FindVertexByID looks up the vertex assigned id, if any.
func (m *IdMap) FindVertexByID(id types.Id) (types.Vertex, bool, error) {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	payload, found, err := m.log.Lookup("id", key)
	if err != nil {
		return types.Vertex{}, false, err
	}
	if !found {
		return types.Vertex{}, false, nil
	}
	v, _ := decodeIDMapRecord(payload)
	return v, true, nil
}

type idmapFrameKind int

const (
	frameVisit idmapFrameKind = iota
	frameAssign
)

type idmapFrame struct {
	kind idmapFrameKind
	v    types.Vertex
}

// BuildUp assigns ids to head and all of its not-yet-assigned ancestors
// by post-order DFS, exactly mirroring original_source's idmap.rs
// build_up: parents are pushed so the first (p1) parent is visited
// last, keeping the p1 spine densely packed with contiguous ids.
func (m *IdMap) BuildUp(ctx context.Context, fetcher ParentFetcher, group types.Group, head types.Vertex) (types.Id, error) {
	stack := []idmapFrame{{kind: frameVisit, v: head}}
	visited := map[types.Vertex]bool{}

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch frame.kind {
		case frameVisit:
			if visited[frame.v] {
				continue
			}
			visited[frame.v] = true
			if _, ok, err := m.FindIDByVertex(frame.v); err != nil {
				return 0, err
			} else if ok {
				continue // already assigned in a prior build
			}
			stack = append(stack, idmapFrame{kind: frameAssign, v: frame.v})
			parents, err := fetcher.Parents(ctx, frame.v)
			if err != nil {
				return 0, errkind.Wrap(errkind.Internal, "idmap_build_up_parents", frame.v.String(), err)
			}
			// Pushed in order, so p1 is popped, visited and assigned last.
			for _, p := range parents {
				if !visited[p] {
					stack = append(stack, idmapFrame{kind: frameVisit, v: p})
				}
			}

		case frameAssign:
			if _, ok, err := m.FindIDByVertex(frame.v); err != nil {
				return 0, err
			} else if ok {
				continue
			}
			id := m.allocate(group)
			if _, err := m.log.Append(ctx, encodeIDMapRecord(frame.v, id)); err != nil {
				return 0, err
			}
			metrics.IdMapEntriesTotal.WithLabelValues(group.String()).Inc()
		}
	}

	id, ok, err := m.FindIDByVertex(head)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("segmented: failed to assign head %s", head)
	}
	return id, nil
}

func (m *IdMap) allocate(group types.Group) types.Id {
	if group == types.GroupNonMaster {
		id := m.nextNonMaster
		m.nextNonMaster++
		return id
	}
	id := m.nextMaster
	m.nextMaster++
	return id
}
