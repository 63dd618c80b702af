package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/vnnovate/relations-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode so readers are never blocked by a writer's transaction.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contact_index (
	dataset_id    INTEGER NOT NULL,
	owner_id      INTEGER NOT NULL,
	phone_norm    TEXT,
	email_norm    TEXT,
	name          TEXT NOT NULL DEFAULT '',
	indexed_mtime REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS dataset_meta (
	dataset_id    INTEGER PRIMARY KEY,
	indexed_mtime REAL NOT NULL,
	indexed_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_contact_index_dataset ON contact_index(dataset_id);
CREATE INDEX IF NOT EXISTS idx_contact_index_phone ON contact_index(phone_norm) WHERE phone_norm IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_contact_index_email ON contact_index(email_norm) WHERE email_norm IS NOT NULL;
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ReplaceDataset(ctx context.Context, datasetID, ownerID int64, rows []model.IndexRow, mtime float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM contact_index WHERE dataset_id = ?`, datasetID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: delete rows for dataset %d", datasetID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO contact_index (dataset_id, owner_id, phone_norm, email_norm, name, indexed_mtime)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			datasetID, ownerID, nullable(r.Phone), nullable(r.Email), r.Name, mtime,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert row for dataset %d", datasetID)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dataset_meta (dataset_id, indexed_mtime, indexed_at)
		 VALUES (?, ?, datetime('now'))
		 ON CONFLICT(dataset_id) DO UPDATE SET
		   indexed_mtime = excluded.indexed_mtime,
		   indexed_at    = excluded.indexed_at`,
		datasetID, mtime,
	); err != nil {
		return eris.Wrapf(err, "sqlite: upsert meta for dataset %d", datasetID)
	}

	return eris.Wrapf(tx.Commit(), "sqlite: commit replace for dataset %d", datasetID)
}

func (s *SQLiteStore) IndexedMtime(ctx context.Context, datasetID int64) (float64, error) {
	var mtime float64
	err := s.db.QueryRowContext(ctx,
		`SELECT indexed_mtime FROM dataset_meta WHERE dataset_id = ?`, datasetID,
	).Scan(&mtime)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: indexed mtime for dataset %d", datasetID)
	}
	return mtime, nil
}

func (s *SQLiteStore) ListRows(ctx context.Context, datasetIDs []int64) ([]model.IndexRow, error) {
	if len(datasetIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(datasetIDs)), ",")
	args := make([]any, len(datasetIDs))
	for i, id := range datasetIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT dataset_id, owner_id, phone_norm, email_norm, name, indexed_mtime
		 FROM contact_index
		 WHERE dataset_id IN (`+placeholders+`)
		 ORDER BY dataset_id, rowid`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rows")
	}
	defer rows.Close()

	var out []model.IndexRow
	for rows.Next() {
		var (
			r            model.IndexRow
			phone, email sql.NullString
		)
		if err := rows.Scan(&r.DatasetID, &r.OwnerID, &phone, &email, &r.Name, &r.Mtime); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan index row")
		}
		r.Phone = phone.String
		r.Email = email.String
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list rows iterate")
}

func (s *SQLiteStore) ListDatasetIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dataset_id FROM dataset_meta ORDER BY dataset_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dataset ids")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dataset id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list dataset ids iterate")
}

func (s *SQLiteStore) DeleteDataset(ctx context.Context, datasetID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin delete")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM contact_index WHERE dataset_id = ?`, datasetID); err != nil {
		return eris.Wrapf(err, "sqlite: delete rows for dataset %d", datasetID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dataset_meta WHERE dataset_id = ?`, datasetID); err != nil {
		return eris.Wrapf(err, "sqlite: delete meta for dataset %d", datasetID)
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit delete for dataset %d", datasetID)
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dataset_meta`).Scan(&st.Datasets); err != nil {
		return nil, eris.Wrap(err, "sqlite: count datasets")
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contact_index`).Scan(&st.Rows); err != nil {
		return nil, eris.Wrap(err, "sqlite: count rows")
	}
	return &st, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
