package indexedlog

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// metaMagic tags the meta file format so an unrelated file accidentally
// placed at this path is detected as corruption rather than misparsed.
const metaMagic = uint32(0x4c4f4731) // "LOG1"

// meta is the atomically-replaced small file naming the committed
// length of log and of every index file. Content past these lengths is
// provisional and invisible to readers until the next meta replace.
type meta struct {
	LogLength    int64
	IndexLengths map[string]int64
}

func readMeta(dir string) (meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, "meta"))
	if err != nil {
		if os.IsNotExist(err) {
			return meta{IndexLengths: map[string]int64{}}, nil
		}
		return meta{}, err
	}
	return decodeMeta(data)
}

func decodeMeta(data []byte) (meta, error) {
	if len(data) < 12 {
		return meta{}, fmt.Errorf("indexedlog: meta file too short (%d bytes)", len(data))
	}
	if binary.BigEndian.Uint32(data[0:4]) != metaMagic {
		return meta{}, fmt.Errorf("indexedlog: meta file has wrong magic")
	}
	logLen := int64(binary.BigEndian.Uint64(data[4:12]))
	m := meta{LogLength: logLen, IndexLengths: map[string]int64{}}

	off := 12
	for off < len(data) {
		if off+2 > len(data) {
			return meta{}, fmt.Errorf("indexedlog: meta file truncated in index name length")
		}
		nameLen := int(binary.BigEndian.Uint16(data[off : off+2]))
		off += 2
		if off+nameLen+8 > len(data) {
			return meta{}, fmt.Errorf("indexedlog: meta file truncated in index entry")
		}
		name := string(data[off : off+nameLen])
		off += nameLen
		length := int64(binary.BigEndian.Uint64(data[off : off+8]))
		off += 8
		m.IndexLengths[name] = length
	}
	return m, nil
}

func (m meta) encode() []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], metaMagic)
	binary.BigEndian.PutUint64(buf[4:12], uint64(m.LogLength))

	for name, length := range m.IndexLengths {
		nameBytes := []byte(name)
		entry := make([]byte, 2+len(nameBytes)+8)
		binary.BigEndian.PutUint16(entry[0:2], uint16(len(nameBytes)))
		copy(entry[2:], nameBytes)
		binary.BigEndian.PutUint64(entry[2+len(nameBytes):], uint64(length))
		buf = append(buf, entry...)
	}
	return buf
}

// writeMeta atomically replaces dir/meta: write to a temp file, fsync,
// then rename over the target. This single rename is the commit point
// readers rely on.
func writeMeta(dir string, m meta) error {
	path := filepath.Join(dir, "meta")
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(m.encode()); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
