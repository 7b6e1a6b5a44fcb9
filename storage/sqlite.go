package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loredeck/vkernel/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLite persists snapshots in a single-file SQLite database. One row
// per logical key; PutAll writes inside one transaction so a crash
// between writes never leaves the four keys cross-referencing
// different snapshots.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the snapshot database at path.
func OpenSQLite(path string) (*SQLite, error) {
	const op = "storage.open"
	if strings.TrimSpace(path) == "" {
		return nil, errors.Invalid(op, "storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(op, errors.StorageFailed, err, "open sqlite db")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(op, errors.StorageFailed, err, "ping sqlite db")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(op, errors.StorageFailed, err, "create snapshot table")
	}
	return &SQLite{db: db}, nil
}

// Put stores a single value.
func (s *SQLite) Put(ctx context.Context, key string, value []byte) error {
	return s.PutAll(ctx, map[string][]byte{key: value})
}

// Get returns the value under key.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	const op = "storage.get"
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM snapshots WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(op, errors.StorageFailed, err, fmt.Sprintf("read key %q", key))
	}
	return value, true, nil
}

// PutAll stores every entry in one transaction.
func (s *SQLite) PutAll(ctx context.Context, entries map[string][]byte) error {
	const op = "storage.put"
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(op, errors.StorageFailed, err, "begin transaction")
	}
	now := time.Now().UTC().UnixMilli()
	for key, value := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO snapshots (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, now)
		if err != nil {
			_ = tx.Rollback()
			return errors.Wrap(op, errors.StorageFailed, err, fmt.Sprintf("write key %q", key))
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(op, errors.StorageFailed, err, "commit snapshot")
	}
	return nil
}

// Close closes the database handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
