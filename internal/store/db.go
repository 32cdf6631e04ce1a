package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
)

// ErrClosed is returned by every operation on a closed store handle.
// Hitting it outside shutdown indicates a startup sequencing bug.
var ErrClosed = errors.New("store: handle is closed")

// NotFoundError reports a lookup for an entity that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("store: %s %q not found", e.Kind, e.ID)
}

// DB wraps a SQLite connection for the app-owned basilisk.db.
type DB struct {
	*sql.DB
	closed atomic.Bool
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db}, nil
}

// Close releases the underlying connection. Further operations fail
// with ErrClosed.
func (db *DB) Close() error {
	db.closed.Store(true)
	return db.DB.Close()
}

func (db *DB) guard() error {
	if db.closed.Load() {
		return ErrClosed
	}
	return nil
}
