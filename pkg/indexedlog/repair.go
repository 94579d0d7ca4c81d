package indexedlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/facebook/sapling-sub046/pkg/metrics"
)

// logRepairer implements repair.Repairable for a log directory without
// requiring a successfully opened Log: corruption is, by construction,
// discovered before Open succeeds, so the repairer only needs the
// static indexSpecs to recompute index keys while replaying.
type logRepairer struct {
	dir        string
	name       string
	indexSpecs []IndexSpec
}

// Repair truncates the log to its last structurally valid record
// boundary and rebuilds every index file from scratch by replaying that
// valid prefix and recomputing keys via indexSpecs.
func (r *logRepairer) Repair(ctx context.Context, dir string) (string, error) {
	logPath := filepath.Join(dir, "log")
	data, err := os.ReadFile(logPath)
	if err != nil {
		return "", err
	}

	var (
		validEnd int64
		records  int
	)
	for validEnd < int64(len(data)) {
		_, next, err := decodeRecordAt(data, validEnd)
		if err != nil {
			break
		}
		validEnd = next
		records++
	}

	if err := os.Truncate(logPath, validEnd); err != nil {
		return "", err
	}

	indexLengths := make(map[string]int64, len(r.indexSpecs))
	for _, spec := range r.indexSpecs {
		idxPath := filepath.Join(dir, "index-"+spec.Name)
		idxFile, err := os.OpenFile(idxPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return "", err
		}

		var off int64
		var rebuilt int64
		var cur int64
		for cur < validEnd {
			payload, next, err := decodeRecordAt(data, cur)
			if err != nil {
				break
			}
			if key, ok := spec.KeyFunc(payload); ok {
				rec := encodeIndexRecord(key, cur)
				if _, err := idxFile.WriteAt(rec, off); err != nil {
					idxFile.Close()
					return "", err
				}
				off += int64(len(rec))
				rebuilt++
			}
			cur = next
		}
		if err := idxFile.Sync(); err != nil {
			idxFile.Close()
			return "", err
		}
		idxFile.Close()
		indexLengths[spec.Name] = off
	}

	if err := writeMeta(dir, meta{LogLength: validEnd, IndexLengths: indexLengths}); err != nil {
		return "", err
	}

	metrics.IndexedLogRepairsTotal.WithLabelValues(r.name).Inc()
	return fmt.Sprintf("indexedlog %s: kept %d valid records (%d bytes), rebuilt %d indexes", r.name, records, validEnd, len(r.indexSpecs)), nil
}
