// Package store provides the metadata store and full-text index the
// reconciler keeps in sync with a directory of files.
//
// Both stores are backed by existing engines: SQLite (metadata and FTS5) and
// Bleve (alternative full-text backend).
package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Sentinel errors shared by all store implementations.
var (
	// ErrDuplicatePath is returned when inserting a record whose path exists.
	ErrDuplicatePath = errors.New("store: duplicate path")

	// ErrRecordNotFound is returned when updating or deleting a missing record.
	ErrRecordNotFound = errors.New("store: record not found")

	// ErrEntryNotFound is returned when updating or deleting a missing index entry.
	ErrEntryNotFound = errors.New("store: index entry not found")

	// ErrTokenizerMismatch is returned when an index is reopened with a
	// tokenizer other than the one it was built with.
	ErrTokenizerMismatch = errors.New("store: tokenizer mismatch")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store: closed")
)

// State keys for the metadata store.
const (
	// StateKeyLastPass stores the RFC 3339 time the last pass completed.
	StateKeyLastPass = "last_pass"
	// StateKeyLastRunID stores the run ID of the last completed pass.
	StateKeyLastRunID = "last_run_id"
	// StateKeyRoot stores the root directory the store pair was synced from.
	StateKeyRoot = "root"
	// StateKeyIndex stores the backend and identity of the index the
	// records' references point into, see IndexIdentity.
	StateKeyIndex = "index"
)

// IndexRef is an optional reference to a full-text index entry.
// The zero value is unassigned.
type IndexRef struct {
	id       int64
	assigned bool
}

// Ref returns an assigned reference to the index entry id.
func Ref(id int64) IndexRef {
	return IndexRef{id: id, assigned: true}
}

// ID returns the entry identifier and whether the reference is assigned.
func (r IndexRef) ID() (int64, bool) {
	return r.id, r.assigned
}

// Assigned reports whether the reference names an index entry.
func (r IndexRef) Assigned() bool {
	return r.assigned
}

func (r IndexRef) String() string {
	if !r.assigned {
		return "unassigned"
	}
	return strconv.FormatInt(r.id, 10)
}

// Value implements driver.Valuer. Unassigned references are stored as NULL.
func (r IndexRef) Value() (driver.Value, error) {
	if !r.assigned {
		return nil, nil
	}
	return r.id, nil
}

// Scan implements sql.Scanner.
func (r *IndexRef) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*r = IndexRef{}
	case int64:
		*r = Ref(v)
	case []byte:
		id, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("scan index ref: %w", err)
		}
		*r = Ref(id)
	default:
		return fmt.Errorf("scan index ref: unsupported type %T", src)
	}
	return nil
}

// FileRecord is the persisted knowledge about one file.
type FileRecord struct {
	Path         string    // slash-separated, relative to the synced root
	LastModified time.Time // whole-second precision
	Index        IndexRef  // entry holding the file's content
}

// Match is an index entry returned by a full-text query.
type Match struct {
	ID      int64
	Subject string
	Body    string
}

// MetadataStore persists one FileRecord per path.
type MetadataStore interface {
	// FindByPath returns the record for path, or nil if there is none.
	FindByPath(ctx context.Context, path string) (*FileRecord, error)

	// Insert adds a new record. A record with the same path must not exist.
	Insert(ctx context.Context, rec *FileRecord) error

	UpdateLastModified(ctx context.Context, path string, modified time.Time) error
	UpdateIndexID(ctx context.Context, path string, ref IndexRef) error
	DeleteByPath(ctx context.Context, path string) error

	// ListAll returns every record ordered by path.
	ListAll(ctx context.Context) ([]*FileRecord, error)

	// Runtime state
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	Close() error
}

// FullTextIndex stores (subject, body) entries addressable by integer ID.
type FullTextIndex interface {
	// Insert adds an entry and returns its identifier.
	Insert(ctx context.Context, subject, body string) (int64, error)

	// UpdateByID replaces the entry's fields in place.
	UpdateByID(ctx context.Context, id int64, subject, body string) error

	DeleteByID(ctx context.Context, id int64) error

	// MatchCount returns the number of entries matching expr.
	MatchCount(ctx context.Context, expr string) (int, error)

	// MatchAll returns the entries matching expr, best match first.
	// A limit of zero or less means no limit.
	MatchAll(ctx context.Context, expr string, limit int) ([]*Match, error)

	// AllIDs returns every entry identifier (for consistency checks).
	AllIDs(ctx context.Context) ([]int64, error)

	// Count returns the number of entries.
	Count(ctx context.Context) (int, error)

	// Identity is a random identifier assigned when the index is created.
	// A recreated index has a new identity.
	Identity() string

	Close() error
}

// IndexIdentity names idx for the StateKeyIndex state value.
func IndexIdentity(backend Backend, idx FullTextIndex) string {
	if backend == "" {
		backend = BackendSQLite
	}
	return string(backend) + ":" + idx.Identity()
}

// TruncateModTime reduces t to whole-second precision.
// Stores and the reconciler compare modification times at this granularity.
func TruncateModTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), 0)
}
