// Package indexedlog implements the append-only log + radix-tree
// secondary index substrate (C2): a writer-exclusive, many-reader,
// lock-free-read on-disk format used by the segmented changelog's IdMap
// and IdDag and by local changeset stores.
//
// On-disk layout per log directory: log (raw records), meta (the
// atomically-replaced committed length + index lengths), one
// index-<name> file per secondary index, and repair.log.
package indexedlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/metrics"
	"github.com/facebook/sapling-sub046/pkg/repair"
	"github.com/gofrs/flock"
	iradix "github.com/hashicorp/go-immutable-radix"
)

// IndexSpec declares one secondary index kept over a log: KeyFunc
// derives the index key from a record's payload, returning ok=false if
// this record has no key under this index (e.g. a log shared by several
// record kinds). Recomputing keys from payloads, rather than storing
// them only in the index file, is what lets Repair rebuild an index
// file purely by replaying the log.
type IndexSpec struct {
	Name    string
	KeyFunc func(payload []byte) (key []byte, ok bool)
}

// Log is a single append-only log directory with its secondary indexes.
type Log struct {
	dir        string
	name       string
	indexSpecs []IndexSpec

	mu sync.RWMutex

	file    *os.File
	logMmap mmap.MMap

	indexFiles map[string]*os.File
	indexMmaps map[string]mmap.MMap
	indexTrees map[string]*iradix.Tree

	committed meta
}

// Open opens (creating if absent) the log directory, validating that
// the log and every index file are at least as long as the last
// committed meta, and that every indexed offset resolves to a
// well-formed record. Any structural problem is returned as an
// errkind.Corruption error.
func Open(dir, name string, indexSpecs []IndexSpec) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errkind.Wrap(errkind.Internal, "indexedlog_mkdir", dir, err)
	}

	m, err := readMeta(dir)
	if err != nil {
		return nil, errkind.Wrap(errkind.Corruption, "indexedlog_read_meta", dir, err)
	}

	file, err := os.OpenFile(filepath.Join(dir, "log"), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, "indexedlog_open_log", dir, err)
	}

	l := &Log{
		dir:        dir,
		name:       name,
		indexSpecs: indexSpecs,
		file:       file,
		indexFiles: make(map[string]*os.File),
		indexMmaps: make(map[string]mmap.MMap),
		indexTrees: make(map[string]*iradix.Tree),
		committed:  m,
	}

	if err := l.validateAndLoad(); err != nil {
		l.Close()
		return nil, errkind.Wrap(errkind.Corruption, "indexedlog_open", dir, err)
	}
	return l, nil
}

// OpenWithRepair opens the log via Open, attempting a single
// exclusive-lock-gated repair if the initial open detects corruption.
func OpenWithRepair(ctx context.Context, dir, name string, indexSpecs []IndexSpec) (*Log, error) {
	r := &logRepairer{dir: dir, name: name, indexSpecs: indexSpecs}
	return repair.OpenWithRepair[*Log](ctx, dir, r, func() (*Log, error) {
		return Open(dir, name, indexSpecs)
	})
}

func (l *Log) validateAndLoad() error {
	info, err := l.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < l.committed.LogLength {
		return fmt.Errorf("log file size %d is shorter than committed length %d", info.Size(), l.committed.LogLength)
	}

	if info.Size() > 0 {
		m, err := mmap.Map(l.file, mmap.RDONLY, 0)
		if err != nil {
			return err
		}
		l.logMmap = m
	}

	for _, spec := range l.indexSpecs {
		idxPath := filepath.Join(l.dir, "index-"+spec.Name)
		idxFile, err := os.OpenFile(idxPath, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return err
		}
		l.indexFiles[spec.Name] = idxFile

		idxInfo, err := idxFile.Stat()
		if err != nil {
			return err
		}
		committedLen := l.committed.IndexLengths[spec.Name]
		if idxInfo.Size() < committedLen {
			return fmt.Errorf("index %q size %d is shorter than committed length %d", spec.Name, idxInfo.Size(), committedLen)
		}

		var idxData []byte
		if idxInfo.Size() > 0 {
			m, err := mmap.Map(idxFile, mmap.RDONLY, 0)
			if err != nil {
				return err
			}
			l.indexMmaps[spec.Name] = m
			idxData = m
		}

		tree, err := rebuildRadix(idxData, committedLen)
		if err != nil {
			return fmt.Errorf("index %q: %w", spec.Name, err)
		}
		if err := validateIndexOffsets(tree, l.logMmap, l.committed.LogLength); err != nil {
			return fmt.Errorf("index %q: %w", spec.Name, err)
		}
		l.indexTrees[spec.Name] = tree
	}

	return nil
}

// validateIndexOffsets walks every (key, offset) pair in tree and
// confirms the offset resolves to a structurally valid record within
// the committed log prefix.
func validateIndexOffsets(tree *iradix.Tree, logData []byte, committedLen int64) error {
	var walkErr error
	tree.Root().Walk(func(k []byte, v interface{}) bool {
		offset := v.(int64)
		if offset < 0 || offset >= committedLen {
			walkErr = fmt.Errorf("indexed offset %d out of committed range [0,%d)", offset, committedLen)
			return true
		}
		if _, _, err := decodeRecordAt(logData[:committedLen], offset); err != nil {
			walkErr = err
			return true
		}
		return false
	})
	return walkErr
}

// Close releases the log's file handles and mmaps. It does not release
// any exclusive lock, which Append acquires and releases per call.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logMmap != nil {
		l.logMmap.Unmap()
	}
	for _, m := range l.indexMmaps {
		m.Unmap()
	}
	for _, f := range l.indexFiles {
		f.Close()
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Append writes payload past the committed log length, derives index
// keys via indexSpecs, and commits the batch by fsyncing the log and
// index files and then atomically replacing meta. Append acquires the
// directory's exclusive writer lock for the duration of the call.
func (l *Log) Append(ctx context.Context, payload []byte) (int64, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.IndexedLogFlushDuration, l.name)

	fl := flock.New(filepath.Join(l.dir, repair.LockFileName))
	if err := fl.Lock(); err != nil {
		return 0, errkind.Wrap(errkind.Unavailable, "indexedlog_append_lock", l.dir, err)
	}
	defer fl.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	offset := l.committed.LogLength
	record := encodeRecord(payload)
	if _, err := l.file.WriteAt(record, offset); err != nil {
		return 0, errkind.Wrap(errkind.Internal, "indexedlog_write", l.dir, err)
	}
	newLogLength := offset + int64(len(record))

	newIndexLengths := make(map[string]int64, len(l.indexSpecs))
	for name, length := range l.committed.IndexLengths {
		newIndexLengths[name] = length
	}
	for _, spec := range l.indexSpecs {
		key, ok := spec.KeyFunc(payload)
		if !ok {
			continue
		}
		idxFile := l.indexFiles[spec.Name]
		idxOffset := l.committed.IndexLengths[spec.Name]
		rec := encodeIndexRecord(key, offset)
		if _, err := idxFile.WriteAt(rec, idxOffset); err != nil {
			return 0, errkind.Wrap(errkind.Internal, "indexedlog_write_index", l.dir, err)
		}
		newIndexLengths[spec.Name] = idxOffset + int64(len(rec))
	}

	if err := l.file.Sync(); err != nil {
		return 0, errkind.Wrap(errkind.Internal, "indexedlog_sync_log", l.dir, err)
	}
	for _, spec := range l.indexSpecs {
		if err := l.indexFiles[spec.Name].Sync(); err != nil {
			return 0, errkind.Wrap(errkind.Internal, "indexedlog_sync_index", l.dir, err)
		}
	}

	newMeta := meta{LogLength: newLogLength, IndexLengths: newIndexLengths}
	if err := writeMeta(l.dir, newMeta); err != nil {
		return 0, errkind.Wrap(errkind.Internal, "indexedlog_write_meta", l.dir, err)
	}
	l.committed = newMeta

	if err := l.remapLocked(); err != nil {
		return 0, errkind.Wrap(errkind.Internal, "indexedlog_remap", l.dir, err)
	}

	metrics.IndexedLogAppendsTotal.WithLabelValues(l.name).Inc()
	return offset, nil
}

// remapLocked re-mmaps the log and index files and rebuilds the radix
// trees so this handle observes its own just-committed append. Callers
// must hold l.mu.
func (l *Log) remapLocked() error {
	if l.logMmap != nil {
		l.logMmap.Unmap()
		l.logMmap = nil
	}
	info, err := l.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() > 0 {
		m, err := mmap.Map(l.file, mmap.RDONLY, 0)
		if err != nil {
			return err
		}
		l.logMmap = m
	}

	for _, spec := range l.indexSpecs {
		if m, ok := l.indexMmaps[spec.Name]; ok {
			m.Unmap()
			delete(l.indexMmaps, spec.Name)
		}
		idxFile := l.indexFiles[spec.Name]
		idxInfo, err := idxFile.Stat()
		if err != nil {
			return err
		}
		var idxData []byte
		if idxInfo.Size() > 0 {
			m, err := mmap.Map(idxFile, mmap.RDONLY, 0)
			if err != nil {
				return err
			}
			l.indexMmaps[spec.Name] = m
			idxData = m
		}
		tree, err := rebuildRadix(idxData, l.committed.IndexLengths[spec.Name])
		if err != nil {
			return err
		}
		l.indexTrees[spec.Name] = tree
	}
	return nil
}

// Refresh re-reads meta and re-mmaps so a long-lived reader handle
// picks up records committed by another process since Open/the last
// Refresh.
func (l *Log) Refresh() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := readMeta(l.dir)
	if err != nil {
		return err
	}
	l.committed = m
	return l.remapLocked()
}

// Lookup returns the payload of the most recently appended record
// indexed under key in the named index, or found=false if absent.
func (l *Log) Lookup(indexName string, key []byte) (payload []byte, found bool, err error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tree, ok := l.indexTrees[indexName]
	if !ok {
		return nil, false, errkind.New(errkind.InvalidRequest, "lookup", indexName)
	}
	v, ok := tree.Get(key)
	if !ok {
		return nil, false, nil
	}
	offset := v.(int64)
	p, _, err := decodeRecordAt(l.logMmap[:l.committed.LogLength], offset)
	if err != nil {
		return nil, false, errkind.Wrap(errkind.Corruption, "lookup_decode", indexName, err)
	}
	return p, true, nil
}

// ForEach walks every record in the committed log in append order.
func (l *Log) ForEach(fn func(offset int64, payload []byte) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var off int64
	for off < l.committed.LogLength {
		payload, next, err := decodeRecordAt(l.logMmap[:l.committed.LogLength], off)
		if err != nil {
			return errkind.Wrap(errkind.Corruption, "foreach_decode", l.dir, err)
		}
		if err := fn(off, payload); err != nil {
			return err
		}
		off = next
	}
	return nil
}

// CommittedLength returns the committed log length, for tests.
func (l *Log) CommittedLength() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.committed.LogLength
}
