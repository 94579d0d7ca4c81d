package indexedlog

import (
	"encoding/binary"
	"fmt"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// encodeIndexRecord renders one (key, offset) pair in the on-disk
// index-<name> record stream format: a 2-byte key length, the key
// bytes, then an 8-byte big-endian log offset.
func encodeIndexRecord(key []byte, offset int64) []byte {
	buf := make([]byte, 2+len(key)+8)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(key)))
	copy(buf[2:], key)
	binary.BigEndian.PutUint64(buf[2+len(key):], uint64(offset))
	return buf
}

// rebuildRadix replays an index-<name> file's record stream up to
// committedLen bytes and returns the resulting immutable radix tree
// mapping key -> log offset. This is the reader's lock-free in-memory
// projection of the on-disk index; the on-disk format itself is a
// simple flat record stream, never a novel on-disk B-tree.
func rebuildRadix(data []byte, committedLen int64) (*iradix.Tree, error) {
	if committedLen > int64(len(data)) {
		return nil, fmt.Errorf("indexedlog: index committed length %d exceeds file size %d", committedLen, len(data))
	}
	tree := iradix.New()

	var off int64
	for off < committedLen {
		if off+2 > committedLen {
			return nil, fmt.Errorf("indexedlog: index record truncated at offset %d", off)
		}
		keyLen := int64(binary.BigEndian.Uint16(data[off : off+2]))
		off += 2
		if off+keyLen+8 > committedLen {
			return nil, fmt.Errorf("indexedlog: index record truncated at offset %d", off)
		}
		key := make([]byte, keyLen)
		copy(key, data[off:off+keyLen])
		off += keyLen
		logOffset := int64(binary.BigEndian.Uint64(data[off : off+8]))
		off += 8

		tree, _, _ = tree.Insert(key, logOffset)
	}

	return tree, nil
}
