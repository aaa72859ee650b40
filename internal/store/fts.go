package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Aman-CERP/ftsync/internal/tokenizer"
)

// ftsDefaultTokenizer is the FTS5 tokenizer used when no custom one is set.
const ftsDefaultTokenizer = "fts5:unicode61 remove_diacritics 2"

// IndexOptions configures a full-text index at creation time.
type IndexOptions struct {
	// Tokenizer replaces the engine's default tokenizer when non-nil.
	Tokenizer tokenizer.Tokenizer

	// SQLite applies to the sqlite backend only.
	SQLite SQLiteOptions
}

// SQLiteFTSIndex implements FullTextIndex using a SQLite FTS5 table.
//
// With the default tokenizer FTS5 tokenizes subject and body itself. With a
// custom tokenizer both are stored UNINDEXED and their terms, produced in Go,
// go to hidden columns.
type SQLiteFTSIndex struct {
	mu       sync.RWMutex
	db       *sql.DB
	path     string
	tok      tokenizer.Tokenizer
	identity string
	closed   bool
}

// Verify interface implementation at compile time
var _ FullTextIndex = (*SQLiteFTSIndex)(nil)

// NewSQLiteFTSIndex opens (creating if absent) an FTS5 index at path.
// If path is empty, an in-memory index is used.
func NewSQLiteFTSIndex(path string, opts IndexOptions) (*SQLiteFTSIndex, error) {
	db, err := openSQLite(path, opts.SQLite, "entries")
	if err != nil {
		return nil, err
	}

	idx := &SQLiteFTSIndex{db: db, path: path, tok: opts.Tokenizer}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (s *SQLiteFTSIndex) tokenizerName() string {
	if s.tok == nil {
		return ftsDefaultTokenizer
	}
	return s.tok.Name()
}

func (s *SQLiteFTSIndex) initSchema() error {
	meta := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);
	CREATE TABLE IF NOT EXISTS index_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	if _, err := s.db.Exec(meta); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	var existing string
	err := s.db.QueryRow(`SELECT value FROM index_meta WHERE key = 'tokenizer'`).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read index metadata: %w", err)
	case existing != s.tokenizerName():
		return fmt.Errorf("index built with %q, opened with %q: %w", existing, s.tokenizerName(), ErrTokenizerMismatch)
	}

	var table string
	if s.tok == nil {
		table = `CREATE VIRTUAL TABLE IF NOT EXISTS entries USING fts5(
			subject,
			body,
			tokenize='unicode61 remove_diacritics 2'
		)`
	} else {
		// Terms are already normalised, so diacritics are left alone.
		table = `CREATE VIRTUAL TABLE IF NOT EXISTS entries USING fts5(
			subject UNINDEXED,
			body UNINDEXED,
			subject_terms,
			body_terms,
			tokenize='unicode61 remove_diacritics 0'
		)`
	}
	if _, err := s.db.Exec(table); err != nil {
		return fmt.Errorf("failed to create FTS5 table: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR IGNORE INTO index_meta (key, value) VALUES ('tokenizer', ?), ('next_id', '1'), ('identity', ?)`,
		s.tokenizerName(), uuid.NewString())
	if err != nil {
		return fmt.Errorf("failed to write index metadata: %w", err)
	}
	if err := s.db.QueryRow(`SELECT value FROM index_meta WHERE key = 'identity'`).Scan(&s.identity); err != nil {
		return fmt.Errorf("failed to read index identity: %w", err)
	}
	return nil
}

// Identity implements FullTextIndex.
func (s *SQLiteFTSIndex) Identity() string {
	return s.identity
}

// terms joins the custom tokenizer's output for text.
func (s *SQLiteFTSIndex) terms(text string) string {
	return strings.Join(tokenizer.Terms(s.tok, text), " ")
}

// Insert implements FullTextIndex.
// Identifiers come from a persisted counter so deleted IDs are never reused.
func (s *SQLiteFTSIndex) Insert(ctx context.Context, subject, body string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next string
	if err := tx.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'next_id'`).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to allocate entry id: %w", err)
	}
	id, err := strconv.ParseInt(next, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt entry id counter %q: %w", next, err)
	}

	if s.tok == nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO entries (rowid, subject, body) VALUES (?, ?, ?)`, id, subject, body)
	} else {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO entries (rowid, subject, body, subject_terms, body_terms) VALUES (?, ?, ?, ?, ?)`,
			id, subject, body, s.terms(subject), s.terms(body))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE index_meta SET value = ? WHERE key = 'next_id'`, strconv.FormatInt(id+1, 10)); err != nil {
		return 0, fmt.Errorf("failed to advance entry id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit entry: %w", err)
	}
	return id, nil
}

// UpdateByID implements FullTextIndex.
func (s *SQLiteFTSIndex) UpdateByID(ctx context.Context, id int64, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	var (
		res sql.Result
		err error
	)
	if s.tok == nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE entries SET subject = ?, body = ? WHERE rowid = ?`, subject, body, id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE entries SET subject = ?, body = ?, subject_terms = ?, body_terms = ? WHERE rowid = ?`,
			subject, body, s.terms(subject), s.terms(body), id)
	}
	return entryAffected(res, err, "update", id)
}

// DeleteByID implements FullTextIndex.
func (s *SQLiteFTSIndex) DeleteByID(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE rowid = ?`, id)
	return entryAffected(res, err, "delete", id)
}

func entryAffected(res sql.Result, err error, op string, id int64) error {
	if err != nil {
		return fmt.Errorf("failed to %s entry %d: %w", op, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s entry %d: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s entry %d: %w", op, id, ErrEntryNotFound)
	}
	return nil
}

// matchExpr renders expr as an FTS5 MATCH string, or "" if it matches nothing.
func (s *SQLiteFTSIndex) matchExpr(expr string) string {
	q := ParseQuery(expr)
	if s.tok != nil {
		q = q.Normalize(s.tok)
	}
	if q.Empty() {
		return ""
	}

	parts := make([]string, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		quoted := ftsQuote(strings.Join(c.Terms, " "))
		if c.Kind == ClausePrefix {
			quoted += "*"
		}
		parts = append(parts, quoted)
	}
	return strings.Join(parts, " AND ")
}

// ftsQuote wraps s in an FTS5 string literal.
func ftsQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// MatchCount implements FullTextIndex.
func (s *SQLiteFTSIndex) MatchCount(ctx context.Context, expr string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}

	match := s.matchExpr(expr)
	if match == "" {
		return 0, nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE entries MATCH ?`, match).Scan(&count); err != nil {
		return 0, fmt.Errorf("match count failed: %w", err)
	}
	return count, nil
}

// MatchAll implements FullTextIndex. Results are ordered by FTS5 rank.
func (s *SQLiteFTSIndex) MatchAll(ctx context.Context, expr string, limit int) ([]*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	match := s.matchExpr(expr)
	if match == "" {
		return []*Match{}, nil
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, subject, body
		FROM entries
		WHERE entries MATCH ?
		ORDER BY rank
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("match failed: %w", err)
	}
	defer rows.Close()

	matches := []*Match{}
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Subject, &m.Body); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, &m)
	}
	return matches, rows.Err()
}

// AllIDs implements FullTextIndex.
func (s *SQLiteFTSIndex) AllIDs(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT rowid FROM entries ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query IDs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count implements FullTextIndex.
func (s *SQLiteFTSIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// Close closes the index. It is safe to call more than once.
func (s *SQLiteFTSIndex) Close() error {
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
