package bonsaihgmapping

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"

	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/types"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLMapping is the SQL-backed source of truth for the bonsai<->hg
// mapping, with two unique indexes enforcing the per-repo bijection.
type SQLMapping struct {
	db *sql.DB
}

// OpenSQLMapping opens (creating the schema if absent) a sqlite-backed
// mapping store at the given DSN, e.g. "file:mapping.db?_foreign_keys=on".
func OpenSQLMapping(dsn string) (*SQLMapping, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, "open_sql_mapping", dsn, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errkind.Wrap(errkind.Internal, "create_schema", dsn, err)
	}
	return &SQLMapping{db: db}, nil
}

// Close closes the underlying database handle.
func (m *SQLMapping) Close() error {
	return m.db.Close()
}

func (m *SQLMapping) Add(ctx context.Context, entry Entry) error {
	existingHg, err := m.lookupOneByBonsai(ctx, entry.RepoID, entry.BcsID)
	if err == nil {
		if existingHg == entry.HgCsID {
			return nil // idempotent duplicate
		}
		return errkind.New(errkind.Conflict, "add", entry.BcsID.String())
	} else if !errors.Is(err, sql.ErrNoRows) {
		return errkind.Wrap(errkind.Internal, "add_lookup_bonsai", entry.BcsID.String(), err)
	}

	existingBonsai, err := m.lookupOneByHg(ctx, entry.RepoID, entry.HgCsID)
	if err == nil {
		if existingBonsai == entry.BcsID {
			return nil
		}
		return errkind.New(errkind.Conflict, "add", entry.HgCsID.String())
	} else if !errors.Is(err, sql.ErrNoRows) {
		return errkind.Wrap(errkind.Internal, "add_lookup_hg", entry.HgCsID.String(), err)
	}

	_, err = m.db.ExecContext(ctx,
		`INSERT INTO bonsai_hg_mapping (repo_id, bcs_id, hg_cs_id) VALUES (?, ?, ?)`,
		int32(entry.RepoID), entry.BcsID[:], entry.HgCsID[:])
	if err != nil {
		// A race lost to a concurrent insert surfaces as a unique
		// constraint violation; treat it the same as a pre-checked
		// conflict/idempotent-duplicate rather than leaking the raw
		// driver error.
		rehecked, rerr := m.lookupOneByBonsai(ctx, entry.RepoID, entry.BcsID)
		if rerr == nil && rehecked == entry.HgCsID {
			return nil
		}
		return errkind.New(errkind.Conflict, "add", entry.BcsID.String())
	}
	return nil
}

func (m *SQLMapping) lookupOneByBonsai(ctx context.Context, repoID types.RepoID, bcsID types.BonsaiChangesetID) (types.HgChangesetID, error) {
	var hg types.HgChangesetID
	var buf []byte
	err := m.db.QueryRowContext(ctx,
		`SELECT hg_cs_id FROM bonsai_hg_mapping WHERE repo_id = ? AND bcs_id = ?`,
		int32(repoID), bcsID[:]).Scan(&buf)
	if err != nil {
		return hg, err
	}
	copy(hg[:], buf)
	return hg, nil
}

func (m *SQLMapping) lookupOneByHg(ctx context.Context, repoID types.RepoID, hgID types.HgChangesetID) (types.BonsaiChangesetID, error) {
	var bcs types.BonsaiChangesetID
	var buf []byte
	err := m.db.QueryRowContext(ctx,
		`SELECT bcs_id FROM bonsai_hg_mapping WHERE repo_id = ? AND hg_cs_id = ?`,
		int32(repoID), hgID[:]).Scan(&buf)
	if err != nil {
		return bcs, err
	}
	copy(bcs[:], buf)
	return bcs, nil
}

func (m *SQLMapping) GetByBonsai(ctx context.Context, repoID types.RepoID, bcsIDs []types.BonsaiChangesetID) (map[types.BonsaiChangesetID]types.HgChangesetID, error) {
	out := make(map[types.BonsaiChangesetID]types.HgChangesetID, len(bcsIDs))
	for _, id := range bcsIDs {
		hg, err := m.lookupOneByBonsai(ctx, repoID, id)
		if err == nil {
			out[id] = hg
			continue
		}
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		return nil, errkind.Wrap(errkind.Internal, "get_by_bonsai", id.String(), err)
	}
	return out, nil
}

func (m *SQLMapping) GetByHg(ctx context.Context, repoID types.RepoID, hgIDs []types.HgChangesetID) (map[types.HgChangesetID]types.BonsaiChangesetID, error) {
	out := make(map[types.HgChangesetID]types.BonsaiChangesetID, len(hgIDs))
	for _, id := range hgIDs {
		bcs, err := m.lookupOneByHg(ctx, repoID, id)
		if err == nil {
			out[id] = bcs
			continue
		}
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		return nil, errkind.Wrap(errkind.Internal, "get_by_hg", id.String(), err)
	}
	return out, nil
}
