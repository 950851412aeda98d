package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "coauthor-backend/pkg/errors"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps records in a local SQLite file, for single-node
// deployments.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps the version check and the write in the same
	// serialized step.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		PRAGMA synchronous = NORMAL;
		PRAGMA busy_timeout = 5000;

		CREATE TABLE IF NOT EXISTS records (
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			body BLOB NOT NULL,
			version INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (kind, id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, kind Kind, id string) (*Record, error) {
	rec := Record{Kind: kind, ID: id}
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT body, version, updated_at FROM records WHERE kind = ? AND id = ?`,
		string(kind), id,
	).Scan(&rec.Body, &rec.Version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(string(kind))
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("select record", err)
	}
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &rec, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec Record, expectedVersion int64) error {
	updated := rec.UpdatedAt.UTC().Format(time.RFC3339Nano)

	var (
		res sql.Result
		err error
	)
	if expectedVersion == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO records (kind, id, body, version, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (kind, id) DO NOTHING`,
			string(rec.Kind), rec.ID, rec.Body, rec.Version, updated,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE records SET body = ?, version = ?, updated_at = ?
			 WHERE kind = ? AND id = ? AND version = ?`,
			rec.Body, rec.Version, updated, string(rec.Kind), rec.ID, expectedVersion,
		)
	}
	if err != nil {
		return apperrors.NewDatabaseError("write record", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewDatabaseError("write record", err)
	}
	if n == 0 {
		return apperrors.NewConflictError(fmt.Sprintf("%s '%s' version %d is stale", rec.Kind, rec.ID, expectedVersion))
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, kind Kind, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE kind = ? AND id = ?`, string(kind), id)
	if err != nil {
		return apperrors.NewDatabaseError("delete record", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError(string(kind))
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
