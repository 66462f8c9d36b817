// Package sqlstore is a store backend that keeps the key forest in an
// embedded SQLite database.
//
// Keys form an adjacency list in the keys table; values live in key_values
// and are kept in canonical text form. Triggers bump a single change counter
// on every write, which the subscription polls to detect changes made by any
// process sharing the database file.
//
// The database runs in WAL mode so a running sync can read while another
// process writes.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/regsync/regsync/internal/store"
)

// DefaultPollInterval is how often subscriptions check the change counter.
const DefaultPollInterval = 100 * time.Millisecond

func init() {
	store.Register("sqlite", func(dsn string) (store.Backend, error) {
		return Open(dsn)
	})
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS keys (
	id        INTEGER PRIMARY KEY,
	parent_id INTEGER REFERENCES keys(id) ON DELETE CASCADE,
	name      TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_keys_child ON keys(parent_id, name) WHERE parent_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_keys_hive ON keys(name) WHERE parent_id IS NULL;

CREATE TABLE IF NOT EXISTS key_values (
	key_id INTEGER NOT NULL REFERENCES keys(id) ON DELETE CASCADE,
	name   TEXT NOT NULL,
	kind   TEXT NOT NULL,
	value  TEXT,
	PRIMARY KEY (key_id, name)
);

CREATE TABLE IF NOT EXISTS changes (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	counter INTEGER NOT NULL
);
INSERT OR IGNORE INTO changes (id, counter) VALUES (1, 0);

CREATE TRIGGER IF NOT EXISTS keys_insert AFTER INSERT ON keys
BEGIN UPDATE changes SET counter = counter + 1 WHERE id = 1; END;
CREATE TRIGGER IF NOT EXISTS keys_delete AFTER DELETE ON keys
BEGIN UPDATE changes SET counter = counter + 1 WHERE id = 1; END;
CREATE TRIGGER IF NOT EXISTS values_insert AFTER INSERT ON key_values
BEGIN UPDATE changes SET counter = counter + 1 WHERE id = 1; END;
CREATE TRIGGER IF NOT EXISTS values_update AFTER UPDATE ON key_values
BEGIN UPDATE changes SET counter = counter + 1 WHERE id = 1; END;
CREATE TRIGGER IF NOT EXISTS values_delete AFTER DELETE ON key_values
BEGIN UPDATE changes SET counter = counter + 1 WHERE id = 1; END;
`

// Store is a SQLite-backed store.
type Store struct {
	db           *sql.DB
	path         string
	logger       *log.Logger
	pollInterval time.Duration
}

// Open opens or creates the database at path and applies the schema.
//
// The caller must call Close when done.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlstore: database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas go in the DSN so that every pooled connection gets them.
	params := url.Values{}
	params.Add("_pragma", "journal_mode(wal)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "foreign_keys(1)")
	db, err := sql.Open("sqlite3", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	for _, h := range store.Hives() {
		if _, err := db.Exec(`INSERT OR IGNORE INTO keys (parent_id, name) VALUES (NULL, ?)`, string(h)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create hive %s: %w", h, err)
		}
	}

	return &Store{
		db:           db,
		path:         path,
		logger:       log.New(os.Stderr, "[sqlstore] ", log.LstdFlags),
		pollInterval: DefaultPollInterval,
	}, nil
}

// SetLogger replaces the logger used for poller diagnostics.
func (s *Store) SetLogger(logger *log.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetPollInterval sets how often new subscriptions poll for changes.
func (s *Store) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.pollInterval = d
	}
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close implements store.Backend. It checkpoints the WAL before closing.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.db.Close()
	s.db = nil
	return err
}

// Open implements store.Backend.
func (s *Store) Open(root store.RootPath, writable bool) (store.Key, error) {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %v", store.ErrAccess, err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM keys WHERE parent_id IS NULL AND name = ?`, string(root.Hive)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrUnsupportedRoot, root.Hive)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to look up hive %s: %v", store.ErrAccess, root.Hive, err)
	}

	path := string(root.Hive)
	for _, seg := range root.Segments() {
		path = store.Join(path, seg)
		child, err := childID(ctx, tx, id, seg)
		if errors.Is(err, store.ErrNotExist) && writable {
			child, err = insertKey(ctx, tx, id, seg)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		id = child
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit: %v", store.ErrAccess, err)
	}
	return &key{s: s, id: id, path: path, writable: writable}, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func childID(ctx context.Context, q querier, parent int64, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM keys WHERE parent_id = ? AND name = ?`, parent, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotExist
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrAccess, err)
	}
	return id, nil
}

func insertKey(ctx context.Context, q querier, parent int64, name string) (int64, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO keys (parent_id, name) VALUES (?, ?)`, parent, name)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create %q: %v", store.ErrAccess, name, err)
	}
	return res.LastInsertId()
}

func (s *Store) keyExists(ctx context.Context, id int64) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM keys WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotExist
	}
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrAccess, err)
	}
	return nil
}

// changeCounter returns the current value of the change counter.
func (s *Store) changeCounter(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT counter FROM changes WHERE id = 1`).Scan(&n)
	return n, err
}
