package indexedlog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// recordHeaderSize is the fixed-size length+checksum prefix on every
// log record: a 4-byte big-endian length, then a 4-byte CRC32 (IEEE) of
// the payload.
const recordHeaderSize = 8

func encodeRecord(payload []byte) []byte {
	buf := make([]byte, recordHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(buf[4:8], crc32.ChecksumIEEE(payload))
	copy(buf[recordHeaderSize:], payload)
	return buf
}

// decodeRecordAt validates and extracts the payload of the record whose
// header starts at off within data, returning the payload and the
// offset just past the record.
func decodeRecordAt(data []byte, off int64) (payload []byte, next int64, err error) {
	if off+recordHeaderSize > int64(len(data)) {
		return nil, 0, fmt.Errorf("indexedlog: record header truncated at offset %d", off)
	}
	length := int64(binary.BigEndian.Uint32(data[off : off+4]))
	checksum := binary.BigEndian.Uint32(data[off+4 : off+8])
	start := off + recordHeaderSize
	if start+length > int64(len(data)) {
		return nil, 0, fmt.Errorf("indexedlog: record payload truncated at offset %d", off)
	}
	payload = data[start : start+length]
	if crc32.ChecksumIEEE(payload) != checksum {
		return nil, 0, fmt.Errorf("indexedlog: record checksum mismatch at offset %d", off)
	}
	return payload, start + length, nil
}
