package segmented

import (
	"context"
	"database/sql"
	_ "embed"

	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/types"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var versionSchema string

// VersionStore persists the SegmentedChangelogVersion pointer naming the
// current (idmap_version, iddag_version) pair for a repo. Set upserts
// unconditionally; Update only succeeds if the stored idmap_version
// still matches, exactly mirroring
// original_source/.../version_store.rs's SetVersion/UpdateVersion.
type VersionStore struct {
	db *sql.DB
}

// OpenVersionStore opens (or creates) the SQL-backed version store.
func OpenVersionStore(dsn string) (*VersionStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, "version_store_open", dsn, err)
	}
	if _, err := db.Exec(versionSchema); err != nil {
		db.Close()
		return nil, errkind.Wrap(errkind.Internal, "version_store_schema", dsn, err)
	}
	return &VersionStore{db: db}, nil
}

// Close closes the underlying database.
func (s *VersionStore) Close() error { return s.db.Close() }

// Set unconditionally upserts version, used for fresh builds.
func (s *VersionStore) Set(ctx context.Context, version types.SegmentedChangelogVersion) error {
	_, err := s.db.ExecContext(ctx,
		`REPLACE INTO segmented_changelog_version (repo_id, idmap_version, iddag_version) VALUES (?, ?, ?)`,
		version.RepoID, version.IdMapVersion, version.IdDagVersion,
	)
	if err != nil {
		return errkind.Wrap(errkind.Internal, "version_store_set", "", err)
	}
	return nil
}

// Update conditionally replaces iddag_version, only if the stored
// idmap_version matches version.IdMapVersion. This lets an append to an
// existing IdMap race safely against a concurrent IdMap rebuild: the
// rebuild's Set (with a new idmap_version) wins, and the stale append's
// Update fails with Conflict.
func (s *VersionStore) Update(ctx context.Context, version types.SegmentedChangelogVersion) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE segmented_changelog_version SET iddag_version = ? WHERE repo_id = ? AND idmap_version = ?`,
		version.IdDagVersion, version.RepoID, version.IdMapVersion,
	)
	if err != nil {
		return errkind.Wrap(errkind.Internal, "version_store_update", "", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errkind.Wrap(errkind.Internal, "version_store_update", "", err)
	}
	if affected == 0 {
		return errkind.New(errkind.Conflict, "version_store_update", "")
	}
	return nil
}

// Get returns the current version for repoID, or found=false if none
// has ever been set.
func (s *VersionStore) Get(ctx context.Context, repoID types.RepoID) (version types.SegmentedChangelogVersion, found bool, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT idmap_version, iddag_version FROM segmented_changelog_version WHERE repo_id = ?`, repoID)
	version.RepoID = repoID
	if scanErr := row.Scan(&version.IdMapVersion, &version.IdDagVersion); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return types.SegmentedChangelogVersion{}, false, nil
		}
		return types.SegmentedChangelogVersion{}, false, errkind.Wrap(errkind.Internal, "version_store_get", "", scanErr)
	}
	return version, true, nil
}
