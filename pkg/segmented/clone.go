package segmented

import (
	"bytes"
	"context"
	"encoding/gob"

	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/types"
	"github.com/klauspost/compress/zstd"
)

// CloneBundle is a compact serialization of the IdMap + IdDag segments
// restricted to a caller-supplied head set, sufficient for a client to
// reconstruct the same identity assignment locally (spec.md §4.5.1).
type CloneBundle struct {
	Version  types.SegmentedChangelogVersion
	Vertices map[types.Id]types.Vertex
	Segments []types.Segment
}

// BuildCloneBundle restricts the dag to the ancestors of heads and
// packages the corresponding IdMap entries and level-0 segments.
func BuildCloneBundle(idmap *IdMap, dag *IdDag, version types.SegmentedChangelogVersion, group types.Group, heads []types.Id) (CloneBundle, error) {
	ancestors, err := dag.Ancestors(group, heads)
	if err != nil {
		return CloneBundle{}, err
	}

	bundle := CloneBundle{Version: version, Vertices: make(map[types.Id]types.Vertex, len(ancestors))}
	for id := range ancestors {
		v, ok, err := idmap.FindVertexByID(id)
		if err != nil {
			return CloneBundle{}, err
		}
		if ok {
			bundle.Vertices[id] = v
		}
	}

	for _, seg := range dag.byLevel[group] {
		for _, s := range seg {
			if s.Level != 0 {
				continue
			}
			if _, ok := ancestors[s.Low]; ok {
				bundle.Segments = append(bundle.Segments, s)
			}
		}
		break // only level 0 is needed to reconstruct identity assignment
	}

	return bundle, nil
}

// PullData computes the incremental payload a client holding common
// heads needs to reach missing heads: range(common, missing) restricted
// vertices and segments.
func PullData(idmap *IdMap, dag *IdDag, group types.Group, common, missing []types.Id) (CloneBundle, error) {
	rng, err := dag.Range(group, common, missing)
	if err != nil {
		return CloneBundle{}, err
	}
	bundle := CloneBundle{Vertices: make(map[types.Id]types.Vertex, len(rng))}
	for id := range rng {
		v, ok, err := idmap.FindVertexByID(id)
		if err != nil {
			return CloneBundle{}, err
		}
		if ok {
			bundle.Vertices[id] = v
		}
	}
	if levels := dag.byLevel[group]; len(levels) > 0 {
		for _, s := range levels[0] {
			if _, ok := rng[s.Low]; ok {
				bundle.Segments = append(bundle.Segments, s)
			}
		}
	}
	return bundle, nil
}

// Encode serializes a bundle with gob and compresses it with zstd, the
// "compact serialization" format spec.md §4.5.1 calls for.
func Encode(bundle CloneBundle) ([]byte, error) {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(bundle); err != nil {
		return nil, errkind.Wrap(errkind.Internal, "clone_bundle_encode", "", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, "clone_bundle_zstd_writer", "", err)
	}
	defer enc.Close()
	return enc.EncodeAll(raw.Bytes(), nil), nil
}

// Decode reverses Encode.
func Decode(ctx context.Context, data []byte) (CloneBundle, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return CloneBundle{}, errkind.Wrap(errkind.Internal, "clone_bundle_zstd_reader", "", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return CloneBundle{}, errkind.Wrap(errkind.Corruption, "clone_bundle_decompress", "", err)
	}

	var bundle CloneBundle
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&bundle); err != nil {
		return CloneBundle{}, errkind.Wrap(errkind.Corruption, "clone_bundle_decode", "", err)
	}
	return bundle, nil
}
