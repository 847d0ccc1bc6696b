// Package shelf persists a loaded graph between runs and decides whether
// the saved copy still matches its CSV sources.
package shelf

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

// Shelf is a key-value store backed by a single sqlite file.
type Shelf struct {
	db   *sql.DB
	path string
}

// Open creates or opens the shelf at path, creating parent directories.
func Open(path string) (*Shelf, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "set WAL mode")
	}
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	) WITHOUT ROWID;
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	return &Shelf{db: db, path: path}, nil
}

func (s *Shelf) Path() string { return s.path }

// Get returns the value for key and whether it exists.
func (s *Shelf) Get(key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "get %s", key)
	}
	return v, true, nil
}

// Put stores one value.
func (s *Shelf) Put(key string, value []byte) error {
	return s.PutAll(map[string][]byte{key: value})
}

// PutAll stores every entry in one transaction.
func (s *Shelf) PutAll(entries map[string][]byte) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	stmt, err := tx.Prepare(`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "prepare")
	}
	defer stmt.Close()
	for k, v := range entries {
		if _, err := stmt.Exec(k, v); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "put %s", k)
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// Delete removes key if present.
func (s *Shelf) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key)
	return errors.Wrapf(err, "delete %s", key)
}

func (s *Shelf) Close() error {
	return s.db.Close()
}
