package derived

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/types"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// LeaseStore is the short-TTL advisory lock keyed by (derivation_type,
// bcs_id) preventing concurrent derivation of the same artifact by more
// than one owner at a time. Rows are never swept in the background;
// an expired row is simply reclaimable the next time someone tries to
// acquire it (spec.md §4.6 "no background sweeper needed").
type LeaseStore struct {
	db *sql.DB
}

// OpenLeaseStore opens (creating the schema if absent) a sqlite-backed
// lease store at the given DSN.
func OpenLeaseStore(dsn string) (*LeaseStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, "open_lease_store", dsn, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errkind.Wrap(errkind.Internal, "create_schema", dsn, err)
	}
	return &LeaseStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *LeaseStore) Close() error {
	return s.db.Close()
}

// Acquire tries to claim the lease for (derivationType, id) under owner
// for ttl. It succeeds if no row exists, or the existing row's owner
// already matches (idempotent re-acquire), or the existing row has
// expired. Otherwise it returns (false, nil): the caller must wait
// and observe for the artifact to appear, per spec.md §4.6 step 4b,
// never proceed anyway.
func (s *LeaseStore) Acquire(ctx context.Context, derivationType types.DerivedDataType, id types.BonsaiChangesetID, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	expiresAt := now.Add(ttl).Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errkind.Wrap(errkind.Internal, "acquire_begin", string(derivationType), err)
	}
	defer tx.Rollback()

	var existingOwner string
	var existingExpiry int64
	err = tx.QueryRowContext(ctx,
		`SELECT owner, expires_at FROM derived_data_lease WHERE derivation_type = ? AND bcs_id = ?`,
		string(derivationType), id[:]).Scan(&existingOwner, &existingExpiry)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO derived_data_lease (derivation_type, bcs_id, owner, expires_at) VALUES (?, ?, ?, ?)`,
			string(derivationType), id[:], owner, expiresAt); err != nil {
			return false, errkind.Wrap(errkind.Internal, "acquire_insert", string(derivationType), err)
		}
	case err != nil:
		return false, errkind.Wrap(errkind.Internal, "acquire_select", string(derivationType), err)
	case existingOwner == owner || existingExpiry < now.Unix():
		if _, err := tx.ExecContext(ctx,
			`UPDATE derived_data_lease SET owner = ?, expires_at = ? WHERE derivation_type = ? AND bcs_id = ?`,
			owner, expiresAt, string(derivationType), id[:]); err != nil {
			return false, errkind.Wrap(errkind.Internal, "acquire_update", string(derivationType), err)
		}
	default:
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, errkind.Wrap(errkind.Internal, "acquire_commit", string(derivationType), err)
	}
	return true, nil
}

// Release drops the lease row, but only if owner still holds it: a
// release racing an expiry-triggered reacquire by another owner must
// not clobber the new holder's lease.
func (s *LeaseStore) Release(ctx context.Context, derivationType types.DerivedDataType, id types.BonsaiChangesetID, owner string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM derived_data_lease WHERE derivation_type = ? AND bcs_id = ? AND owner = ?`,
		string(derivationType), id[:], owner)
	if err != nil {
		return errkind.Wrap(errkind.Internal, "release", string(derivationType), err)
	}
	return nil
}
