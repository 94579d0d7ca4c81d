package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// GobCodec is a stable encoding/gob-based Codec, tagged with a
// code-version and site-version pair so incompatible encodings never
// collide in a shared memcache tier (spec §4.3 "Keying").
type GobCodec[V any] struct {
	CodeVersion int
	SiteVersion int
}

func (c GobCodec[V]) Encode(v V) ([]byte, error) {
	var buf bytes.Buffer
	if err := buf.WriteByte(byte(c.CodeVersion)); err != nil {
		return nil, err
	}
	if err := buf.WriteByte(byte(c.SiteVersion)); err != nil {
		return nil, err
	}
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c GobCodec[V]) Decode(b []byte) (V, error) {
	var zero V
	if len(b) < 2 {
		return zero, fmt.Errorf("cache: entry too short to carry a version header")
	}
	if int(b[0]) != c.CodeVersion || int(b[1]) != c.SiteVersion {
		return zero, fmt.Errorf("cache: version mismatch (got code=%d site=%d, want code=%d site=%d)", b[0], b[1], c.CodeVersion, c.SiteVersion)
	}
	var v V
	if err := gob.NewDecoder(bytes.NewReader(b[2:])).Decode(&v); err != nil {
		return zero, err
	}
	return v, nil
}
