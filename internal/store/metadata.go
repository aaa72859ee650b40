package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// metadataSchemaVersion is bumped whenever the files table changes shape.
const metadataSchemaVersion = 1

// SQLiteStore implements MetadataStore on a SQLite database.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time
var _ MetadataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if absent) the metadata database at path.
// If path is empty, an in-memory database is used.
func NewSQLiteStore(path string, opts SQLiteOptions) (*SQLiteStore, error) {
	db, err := openSQLite(path, opts, "files")
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- index_id is NULL until the file's content has been indexed
	CREATE TABLE IF NOT EXISTS files (
		id       INTEGER PRIMARY KEY,
		path     TEXT NOT NULL UNIQUE,
		modified INTEGER NOT NULL,
		index_id INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_files_index_id ON files(index_id);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, metadataSchemaVersion)
	return err
}

// Path returns the database file path ("" for in-memory stores).
func (s *SQLiteStore) Path() string {
	return s.path
}

// FindByPath implements MetadataStore.
func (s *SQLiteStore) FindByPath(ctx context.Context, path string) (*FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	var (
		modified int64
		ref      IndexRef
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT modified, index_id FROM files WHERE path = ?`, path).Scan(&modified, &ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", path, err)
	}

	return &FileRecord{
		Path:         path,
		LastModified: time.Unix(modified, 0),
		Index:        ref,
	}, nil
}

// Insert implements MetadataStore.
func (s *SQLiteStore) Insert(ctx context.Context, rec *FileRecord) error {
	if rec == nil || rec.Path == "" {
		return fmt.Errorf("insert: record path is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO files (path, modified, index_id) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO NOTHING`,
		rec.Path, rec.LastModified.Unix(), rec.Index)
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", rec.Path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", rec.Path, err)
	}
	if n == 0 {
		return fmt.Errorf("insert %s: %w", rec.Path, ErrDuplicatePath)
	}
	return nil
}

// UpdateLastModified implements MetadataStore.
func (s *SQLiteStore) UpdateLastModified(ctx context.Context, path string, modified time.Time) error {
	return s.update(ctx, path, `UPDATE files SET modified = ? WHERE path = ?`, modified.Unix())
}

// UpdateIndexID implements MetadataStore.
func (s *SQLiteStore) UpdateIndexID(ctx context.Context, path string, ref IndexRef) error {
	return s.update(ctx, path, `UPDATE files SET index_id = ? WHERE path = ?`, ref)
}

// DeleteByPath implements MetadataStore.
func (s *SQLiteStore) DeleteByPath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path)
	return checkAffected(res, err, "delete", path)
}

func (s *SQLiteStore) update(ctx context.Context, path, query string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	res, err := s.db.ExecContext(ctx, query, value, path)
	return checkAffected(res, err, "update", path)
}

// checkAffected maps a zero-row mutation to ErrRecordNotFound.
func checkAffected(res sql.Result, err error, op, path string) error {
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", op, path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", op, path, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, path, ErrRecordNotFound)
	}
	return nil
}

// ListAll implements MetadataStore.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]*FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT path, modified, index_id FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var records []*FileRecord
	for rows.Next() {
		var (
			rec      FileRecord
			modified int64
		)
		if err := rows.Scan(&rec.Path, &modified, &rec.Index); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		rec.LastModified = time.Unix(modified, 0)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// GetState returns the value stored under key, or "" if unset.
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrClosed
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return value, nil
}

// SetState stores value under key, replacing any previous value.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}

// Close closes the database. It is safe to call more than once.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}
