package segmented

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"sort"

	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/indexedlog"
	"github.com/facebook/sapling-sub046/pkg/metrics"
	"github.com/facebook/sapling-sub046/pkg/types"
)

func encodeSegmentKey(level types.Level, low types.Id) []byte {
	buf := make([]byte, 9)
	buf[0] = byte(level)
	binary.BigEndian.PutUint64(buf[1:], uint64(low))
	return buf
}

func encodeSegment(s types.Segment) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		panic(err) // Segment contains only plain fields; encoding cannot fail.
	}
	return buf.Bytes()
}

func decodeSegment(payload []byte) (types.Segment, error) {
	var s types.Segment
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&s); err != nil {
		return types.Segment{}, err
	}
	return s, nil
}

// IdDag is the persistent segment index over the ids an IdMap has
// assigned, supporting ancestry and location<->hash queries without
// scanning individual ids.
type IdDag struct {
	log *indexedlog.Log

	// byLevel holds, per group, segments at each level sorted by Low,
	// the reader's in-memory projection rebuilt from the log.
	byLevel map[types.Group][][]types.Segment
}

func segmentIndexSpecs() []indexedlog.IndexSpec {
	return []indexedlog.IndexSpec{
		{
			Name: "levellow",
			KeyFunc: func(payload []byte) ([]byte, bool) {
				s, err := decodeSegment(payload)
				if err != nil {
					return nil, false
				}
				return encodeSegmentKey(s.Level, s.Low), true
			},
		},
	}
}

// OpenIdDag opens (or creates) the IdDag log rooted at dir and replays
// it into the in-memory per-group, per-level segment lists queries use.
func OpenIdDag(ctx context.Context, dir string) (*IdDag, error) {
	log, err := indexedlog.OpenWithRepair(ctx, dir, "iddag", segmentIndexSpecs())
	if err != nil {
		return nil, err
	}

	d := &IdDag{log: log, byLevel: map[types.Group][][]types.Segment{}}
	err = log.ForEach(func(_ int64, payload []byte) error {
		s, err := decodeSegment(payload)
		if err != nil {
			return err
		}
		d.insertInMemory(s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *IdDag) insertInMemory(s types.Segment) {
	levels := d.byLevel[s.Group]
	for len(levels) <= int(s.Level) {
		levels = append(levels, nil)
	}
	levels[s.Level] = append(levels[s.Level], s)
	sort.Slice(levels[s.Level], func(i, j int) bool { return levels[s.Level][i].Low < levels[s.Level][j].Low })
	d.byLevel[s.Group] = levels
}

// Close releases the underlying log.
func (d *IdDag) Close() error { return d.log.Close() }

// StoreSegments persists a freshly built set of per-level segment
// slices (as produced by buildAllLevels) and updates the in-memory
// projection.
func (d *IdDag) StoreSegments(ctx context.Context, levels [][]types.Segment) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SegmentBuildDuration)

	for _, segs := range levels {
		for _, s := range segs {
			if _, err := d.log.Append(ctx, encodeSegment(s)); err != nil {
				return err
			}
			d.insertInMemory(s)
		}
	}
	for group, levels := range d.byLevel {
		if len(levels) > 0 {
			metrics.SegmentsTotal.WithLabelValues(group.String()).Set(float64(len(levels[0])))
		}
	}
	return nil
}

// segmentContaining returns the level-0 segment covering id, if any.
func (d *IdDag) segmentContaining(group types.Group, id types.Id) (types.Segment, bool) {
	levels := d.byLevel[group]
	if len(levels) == 0 {
		return types.Segment{}, false
	}
	level0 := levels[0]
	i := sort.Search(len(level0), func(i int) bool { return level0[i].High >= id })
	if i >= len(level0) || !level0[i].Contains(id) {
		return types.Segment{}, false
	}
	return level0[i], true
}

// ancestorIDs returns the set of ids that are ancestors-of-or-equal-to
// any id in starts, found by walking segment parent pointers: within a
// segment the whole [Low, id] span is reachable in one jump, so the
// walk touches O(#segments) rather than O(#commits).
func (d *IdDag) ancestorIDs(group types.Group, starts []types.Id) (map[types.Id]bool, error) {
	visited := make(map[types.Id]bool)
	queue := append([]types.Id(nil), starts...)

	for len(queue) > 0 {
		id := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if visited[id] {
			continue
		}
		seg, ok := d.segmentContaining(group, id)
		if !ok {
			return nil, errkind.New(errkind.NotFound, "ancestor_ids", "")
		}
		for i := seg.Low; i <= id; i++ {
			visited[i] = true
		}
		for _, p := range seg.Parents {
			if !visited[p] {
				queue = append(queue, p)
			}
		}
	}
	return visited, nil
}

// childAdjacency builds the reverse (child) adjacency over level-0
// segments, used by Descendants. It is rebuilt on demand rather than
// maintained incrementally.
func (d *IdDag) childAdjacency(group types.Group) map[types.Id][]types.Id {
	children := make(map[types.Id][]types.Id)
	levels := d.byLevel[group]
	if len(levels) == 0 {
		return children
	}
	for _, seg := range levels[0] {
		for id := seg.Low; id < seg.High; id++ {
			children[id] = append(children[id], id+1)
		}
		for _, p := range seg.Parents {
			children[p] = append(children[p], seg.Low)
		}
	}
	return children
}

// Ancestors returns every id that is an ancestor of or equal to any id
// in starts.
func (d *IdDag) Ancestors(group types.Group, starts []types.Id) (map[types.Id]bool, error) {
	return d.ancestorIDs(group, starts)
}

// Descendants returns every id reachable by following child edges from
// any id in starts.
func (d *IdDag) Descendants(group types.Group, starts []types.Id) map[types.Id]bool {
	children := d.childAdjacency(group)
	visited := make(map[types.Id]bool)
	queue := append([]types.Id(nil), starts...)
	for len(queue) > 0 {
		id := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		queue = append(queue, children[id]...)
	}
	return visited
}

// GCA returns the greatest common ancestors of a and b: the maximum-id
// elements of ancestors({a}) ∩ ancestors({b}).
func (d *IdDag) GCA(group types.Group, a, b types.Id) ([]types.Id, error) {
	ancA, err := d.ancestorIDs(group, []types.Id{a})
	if err != nil {
		return nil, err
	}
	ancB, err := d.ancestorIDs(group, []types.Id{b})
	if err != nil {
		return nil, err
	}
	var common []types.Id
	maxID := types.Id(-1)
	for id := range ancA {
		if ancB[id] && id > maxID {
			maxID = id
		}
	}
	if maxID < 0 {
		return nil, nil
	}
	for id := range ancA {
		if ancB[id] && id == maxID {
			common = append(common, id)
		}
	}
	return common, nil
}

// Range returns descendants(roots) ∩ ancestors(heads).
func (d *IdDag) Range(group types.Group, roots, heads []types.Id) (map[types.Id]bool, error) {
	desc := d.Descendants(group, roots)
	anc, err := d.ancestorIDs(group, heads)
	if err != nil {
		return nil, err
	}
	out := make(map[types.Id]bool)
	for id := range desc {
		if anc[id] {
			out[id] = true
		}
	}
	return out, nil
}

// LocationToHash resolves the vertex n steps back from base along the
// first-parent spine.
func (d *IdDag) LocationToHash(idmap *IdMap, base types.Id, n uint64) (types.Id, error) {
	group := GroupOf(base)
	cur := base
	remaining := n

	for remaining > 0 {
		seg, ok := d.segmentContaining(group, cur)
		if !ok {
			return 0, errkind.New(errkind.NotFound, "location_to_hash", "")
		}
		stepsWithinSeg := uint64(cur - seg.Low)
		if remaining <= stepsWithinSeg {
			return cur - types.Id(remaining), nil
		}
		remaining -= stepsWithinSeg
		if len(seg.Parents) == 0 {
			return 0, errkind.New(errkind.NotFound, "location_to_hash", "")
		}
		cur = seg.Parents[0]
		remaining--
	}
	return cur, nil
}

// HashToLocation finds a head h such that v is on h's first-parent
// spine, returning (h, distance).
func (d *IdDag) HashToLocation(heads []types.Id, v types.Id) (types.Id, uint64, error) {
	group := GroupOf(v)
	for _, h := range heads {
		cur := h
		var dist uint64
		for {
			if cur == v {
				return h, dist, nil
			}
			if cur < v {
				break
			}
			seg, ok := d.segmentContaining(group, cur)
			if !ok {
				break
			}
			if cur > seg.Low {
				cur--
				dist++
				continue
			}
			if len(seg.Parents) == 0 {
				break
			}
			cur = seg.Parents[0]
			dist++
		}
	}
	return 0, 0, errkind.New(errkind.NotFound, "hash_to_location", "")
}

// IsAncestor reports whether a is an ancestor of (or equal to) b.
func (d *IdDag) IsAncestor(group types.Group, a, b types.Id) (bool, error) {
	anc, err := d.ancestorIDs(group, []types.Id{b})
	if err != nil {
		return false, err
	}
	return anc[a], nil
}
