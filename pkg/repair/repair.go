// Package repair provides the generic auto-repair contract shared by
// every on-disk, indexed-log-shaped component: detect corruption on
// open, and — only when no other reader or writer holds the directory —
// repair in place and retry.
package repair

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/facebook/sapling-sub046/pkg/corectx"
	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/gofrs/flock"
)

// Repairable is implemented by on-disk stores that can detect and fix
// their own corruption. Repair is only ever called while the caller
// holds the directory's exclusive lock with no other readers or
// writers present.
type Repairable interface {
	// Repair rebuilds the store's on-disk state from its last valid
	// prefix and returns a human-readable summary for repair.log.
	Repair(ctx context.Context, dir string) (string, error)
}

// LockFileName is the advisory lock file every repairable directory
// uses for the single-writer/many-reader protocol described in C2.
const LockFileName = ".lock"

// OpenWithRepair opens a store via open, and on a Corruption error,
// attempts an exclusive non-blocking repair-then-retry exactly once.
// If the exclusive lock cannot be acquired immediately, the original
// corruption error is returned unmodified: repair must never run
// while another process might be reading or writing, since it
// truncates and rewrites the log in place.
func OpenWithRepair[T any](ctx context.Context, dir string, repairable Repairable, open func() (T, error)) (T, error) {
	v, err := open()
	if err == nil || errkind.Of(err) != errkind.Corruption {
		return v, err
	}

	log := corectx.Logger(ctx)
	lockPath := filepath.Join(dir, LockFileName)
	fl := flock.New(lockPath)
	locked, lockErr := fl.TryLock()
	if lockErr != nil || !locked {
		log.Warn().Str("dir", dir).Err(err).Msg("corruption detected but exclusive lock unavailable, not repairing")
		var zero T
		return zero, err
	}
	defer fl.Unlock()

	summary, repairErr := repairable.Repair(ctx, dir)
	if repairErr != nil {
		var zero T
		return zero, errkind.Wrap(errkind.Corruption, "repair", dir, repairErr)
	}
	if appendErr := AppendRepairLog(dir, summary); appendErr != nil {
		log.Warn().Err(appendErr).Msg("failed to append repair.log entry")
	}
	log.Info().Str("dir", dir).Str("summary", summary).Msg("repair succeeded, retrying open")

	return open()
}

// RepairLogCap is the maximum size repair.log is allowed to grow to
// before being truncated; repeated repairs must not fill the disk.
const RepairLogCap = 1 << 20 // 1 MiB

var repairLogMu sync.Mutex

// AppendRepairLog appends a timestamped summary line to dir/repair.log,
// truncating the file first if the append would take it past
// RepairLogCap.
func AppendRepairLog(dir, summary string) error {
	repairLogMu.Lock()
	defer repairLogMu.Unlock()

	line := time.Now().UTC().Format(time.RFC3339) + " " + summary + "\n"
	path := filepath.Join(dir, "repair.log")
	if info, err := os.Stat(path); err == nil && info.Size()+int64(len(line)) > RepairLogCap {
		if err := os.Truncate(path, 0); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(line)
	return err
}

// ErrLockUnavailable is returned by callers that want to distinguish
// "could not repair because someone else is active" from other errors.
var ErrLockUnavailable = errors.New("repair: exclusive lock unavailable")
