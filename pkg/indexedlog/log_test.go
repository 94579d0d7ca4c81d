package indexedlog

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/stretchr/testify/require"
)

// a fixed-width payload format for tests: 8-byte big-endian id used both
// as the record content and the "primary" index key.
func encodePayload(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func primaryKeyFunc(payload []byte) ([]byte, bool) {
	return payload, true
}

func testIndexSpecs() []IndexSpec {
	return []IndexSpec{{Name: "primary", KeyFunc: primaryKeyFunc}}
}

func TestAppendAndLookupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, "test", testIndexSpecs())
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	for _, id := range []uint64{1, 2, 3} {
		_, err := l.Append(ctx, encodePayload(id))
		require.NoError(t, err)
	}

	payload, found, err := l.Lookup("primary", encodePayload(2))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, encodePayload(2), payload)

	_, found, err = l.Lookup("primary", encodePayload(99))
	require.NoError(t, err)
	require.False(t, found)
}

// TestCrashSafetyHidesProvisionalTail mirrors the crash-safety scenario:
// after A, B, C are committed, a provisional D is appended directly to
// the log file past the committed length without updating meta. A fresh
// reader opening the directory must see exactly {A, B, C} and nothing
// of D.
func TestCrashSafetyHidesProvisionalTail(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	w, err := Open(dir, "test", testIndexSpecs())
	require.NoError(t, err)
	for _, id := range []uint64{1, 2, 3} {
		_, err := w.Append(ctx, encodePayload(id))
		require.NoError(t, err)
	}
	committedLen := w.CommittedLength()
	require.NoError(t, w.Close())

	// Simulate a crash mid-write of a fourth record: append raw bytes
	// past the committed length without touching meta.
	f, err := os.OpenFile(filepath.Join(dir, "log"), os.O_RDWR, 0o644)
	require.NoError(t, err)
	provisional := encodeRecord(encodePayload(4))
	_, err = f.WriteAt(provisional, committedLen)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := Open(dir, "test", testIndexSpecs())
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, committedLen, r.CommittedLength())

	var seen []uint64
	require.NoError(t, r.ForEach(func(offset int64, payload []byte) error {
		seen = append(seen, binary.BigEndian.Uint64(payload))
		return nil
	}))
	require.Equal(t, []uint64{1, 2, 3}, seen)

	_, found, err := r.Lookup("primary", encodePayload(4))
	require.NoError(t, err)
	require.False(t, found, "provisional record must not be visible")
}

// TestAutoRepairRecoversFromCorruptIndex mirrors the auto-repair
// scenario: after committing records, the trailing bytes of index-primary
// are corrupted. A plain Open detects the corruption; OpenWithRepair
// repairs in place (rebuilding the index by replaying the log) and
// succeeds on retry, leaving an entry in repair.log.
func TestAutoRepairRecoversFromCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	w, err := Open(dir, "test", testIndexSpecs())
	require.NoError(t, err)
	for _, id := range []uint64{10, 20, 30} {
		_, err := w.Append(ctx, encodePayload(id))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	idxPath := filepath.Join(dir, "index-primary")
	info, err := os.Stat(idxPath)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(idxPath, info.Size()-3))

	_, err = Open(dir, "test", testIndexSpecs())
	require.Error(t, err)
	require.True(t, errkind.Is(err, errkind.Corruption))

	repaired, err := OpenWithRepair(ctx, dir, "test", testIndexSpecs())
	require.NoError(t, err)
	defer repaired.Close()

	for _, id := range []uint64{10, 20, 30} {
		payload, found, err := repaired.Lookup("primary", encodePayload(id))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, encodePayload(id), payload)
	}

	repairLog, err := os.ReadFile(filepath.Join(dir, "repair.log"))
	require.NoError(t, err)
	require.Contains(t, string(repairLog), "rebuilt 1 indexes")
}
