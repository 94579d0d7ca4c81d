package segmented

import (
	"context"

	"github.com/facebook/sapling-sub046/pkg/types"
)

// buildLevel0 builds the level-0 segments for ids, which must be given
// in ascending order within a single group. A new segment starts
// whenever an id's real parent set is not exactly {id-1}: that is what
// spec.md §4.5.3 calls a maximal interval of consecutive ids sharing an
// implicit in-interval parent chain.
func buildLevel0(ctx context.Context, idmap *IdMap, fetcher ParentFetcher, group types.Group, ids []types.Id) ([]types.Segment, error) {
	var segs []types.Segment

	var open bool
	var low, high types.Id
	var parents []types.Id
	var hasRoot bool

	flush := func() {
		if open {
			segs = append(segs, types.Segment{Level: 0, Group: group, Low: low, High: high, Parents: parents, HasRoot: hasRoot})
		}
	}

	for _, id := range ids {
		v, ok, err := idmap.FindVertexByID(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		parentVertices, err := fetcher.Parents(ctx, v)
		if err != nil {
			return nil, err
		}

		var parentIDs []types.Id
		for _, pv := range parentVertices {
			if pid, ok, err := idmap.FindIDByVertex(pv); err != nil {
				return nil, err
			} else if ok {
				parentIDs = append(parentIDs, pid)
			}
		}

		continuesChain := open && len(parentIDs) == 1 && parentIDs[0] == id-1
		if continuesChain {
			high = id
			continue
		}

		flush()
		low, high = id, id
		parents = parentIDs
		hasRoot = len(parentIDs) == 0
		open = true
	}
	flush()

	return segs, nil
}

// buildHigherLevel groups consecutive lower-level segments whose
// combined interval still has a single entry point: segs[i+1] continues
// segs[i] exactly when segs[i+1]'s sole parent is segs[i].High.
func buildHigherLevel(segs []types.Segment, level types.Level) []types.Segment {
	var out []types.Segment

	i := 0
	for i < len(segs) {
		cur := segs[i]
		low, high := cur.Low, cur.High
		parents, hasRoot := cur.Parents, cur.HasRoot

		j := i + 1
		for j < len(segs) {
			next := segs[j]
			if len(next.Parents) == 1 && next.Parents[0] == high {
				high = next.High
				j++
				continue
			}
			break
		}

		out = append(out, types.Segment{Level: level, Group: cur.Group, Low: low, High: high, Parents: parents, HasRoot: hasRoot})
		i = j
	}

	return out
}

// buildAllLevels builds level 0 from ids and then repeatedly builds
// higher levels until a pass produces no further merging.
func buildAllLevels(ctx context.Context, idmap *IdMap, fetcher ParentFetcher, group types.Group, ids []types.Id) ([][]types.Segment, error) {
	level0, err := buildLevel0(ctx, idmap, fetcher, group, ids)
	if err != nil {
		return nil, err
	}

	levels := [][]types.Segment{level0}
	cur := level0
	for level := types.Level(1); len(cur) > 1; level++ {
		next := buildHigherLevel(cur, level)
		if len(next) == len(cur) {
			break
		}
		levels = append(levels, next)
		cur = next
	}
	return levels, nil
}
