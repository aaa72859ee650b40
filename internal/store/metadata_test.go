package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a file-backed metadata store in a temp directory.
func newTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), ".ftsync", "metadata.db")

	s, err := NewSQLiteStore(dbPath, SQLiteOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, dbPath
}

func TestSQLiteStore_InsertAndFind(t *testing.T) {
	// Given: an empty store
	s, _ := newTestStore(t)
	ctx := context.Background()
	modified := time.Unix(1_700_000_000, 0)

	// When: inserting a record with an assigned index reference
	err := s.Insert(ctx, &FileRecord{Path: "notes/a.md", LastModified: modified, Index: Ref(7)})
	require.NoError(t, err)

	// Then: it can be found by path
	rec, err := s.FindByPath(ctx, "notes/a.md")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "notes/a.md", rec.Path)
	assert.True(t, modified.Equal(rec.LastModified))
	id, ok := rec.Index.ID()
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
}

func TestSQLiteStore_FindByPath_Missing(t *testing.T) {
	// Given: an empty store
	s, _ := newTestStore(t)

	// When: looking up an unknown path
	rec, err := s.FindByPath(context.Background(), "missing.md")

	// Then: nil is returned without error
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSQLiteStore_Insert_UnassignedRefIsNull(t *testing.T) {
	// Given: a store
	s, _ := newTestStore(t)
	ctx := context.Background()

	// When: inserting a record without an index reference
	require.NoError(t, s.Insert(ctx, &FileRecord{Path: "a.md", LastModified: time.Unix(10, 0)}))

	// Then: the reference reads back unassigned
	rec, err := s.FindByPath(ctx, "a.md")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.Index.Assigned())
}

func TestSQLiteStore_Insert_DuplicatePath(t *testing.T) {
	// Given: a store holding a record
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, &FileRecord{Path: "a.md", LastModified: time.Unix(10, 0)}))

	// When: inserting the same path again
	err := s.Insert(ctx, &FileRecord{Path: "a.md", LastModified: time.Unix(20, 0)})

	// Then: ErrDuplicatePath is returned and the original survives
	assert.ErrorIs(t, err, ErrDuplicatePath)
	rec, err := s.FindByPath(ctx, "a.md")
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.LastModified.Unix())
}

func TestSQLiteStore_Updates(t *testing.T) {
	// Given: a store holding a record
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, &FileRecord{Path: "a.md", LastModified: time.Unix(10, 0)}))

	// When: updating the modification time and the index reference
	require.NoError(t, s.UpdateLastModified(ctx, "a.md", time.Unix(99, 0)))
	require.NoError(t, s.UpdateIndexID(ctx, "a.md", Ref(3)))

	// Then: both are persisted
	rec, err := s.FindByPath(ctx, "a.md")
	require.NoError(t, err)
	assert.Equal(t, int64(99), rec.LastModified.Unix())
	assert.Equal(t, "3", rec.Index.String())

	// And: clearing the reference makes it unassigned again
	require.NoError(t, s.UpdateIndexID(ctx, "a.md", IndexRef{}))
	rec, err = s.FindByPath(ctx, "a.md")
	require.NoError(t, err)
	assert.False(t, rec.Index.Assigned())
}

func TestSQLiteStore_MissingPathMutations(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.UpdateLastModified(ctx, "x.md", time.Unix(1, 0)), ErrRecordNotFound)
	assert.ErrorIs(t, s.UpdateIndexID(ctx, "x.md", Ref(1)), ErrRecordNotFound)
	assert.ErrorIs(t, s.DeleteByPath(ctx, "x.md"), ErrRecordNotFound)
}

func TestSQLiteStore_DeleteAndListAll(t *testing.T) {
	// Given: a store with three records
	s, _ := newTestStore(t)
	ctx := context.Background()
	for _, p := range []string{"c.md", "a.md", "b.md"} {
		require.NoError(t, s.Insert(ctx, &FileRecord{Path: p, LastModified: time.Unix(1, 0)}))
	}

	// When: deleting one
	require.NoError(t, s.DeleteByPath(ctx, "b.md"))

	// Then: the rest are listed in path order
	recs, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a.md", recs[0].Path)
	assert.Equal(t, "c.md", recs[1].Path)
}

func TestSQLiteStore_State(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// Unset keys read as empty
	v, err := s.GetState(ctx, StateKeyLastPass)
	require.NoError(t, err)
	assert.Empty(t, v)

	// Set then overwrite
	require.NoError(t, s.SetState(ctx, StateKeyLastPass, "one"))
	require.NoError(t, s.SetState(ctx, StateKeyLastPass, "two"))
	v, err = s.GetState(ctx, StateKeyLastPass)
	require.NoError(t, err)
	assert.Equal(t, "two", v)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	// Given: a store with a record, closed
	s, dbPath := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, &FileRecord{Path: "a.md", LastModified: time.Unix(42, 0), Index: Ref(5)}))
	require.NoError(t, s.Close())

	// When: reopening the same file
	reopened, err := NewSQLiteStore(dbPath, SQLiteOptions{})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	// Then: the record is still there
	rec, err := reopened.FindByPath(ctx, "a.md")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(42), rec.LastModified.Unix())
	assert.True(t, rec.Index.Assigned())
}

func TestSQLiteStore_ClosedStore(t *testing.T) {
	s, err := NewSQLiteStore("", SQLiteOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close()) // idempotent

	_, err = s.FindByPath(context.Background(), "a.md")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTruncateModTime(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)

	assert.True(t, base.Equal(TruncateModTime(base.Add(500*time.Millisecond))))
	assert.True(t, base.Equal(TruncateModTime(base.Add(999*time.Millisecond))))
	assert.False(t, base.Equal(TruncateModTime(base.Add(time.Second))))
}

func TestIndexRef(t *testing.T) {
	var zero IndexRef
	assert.False(t, zero.Assigned())
	assert.Equal(t, "unassigned", zero.String())

	v, err := zero.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	var scanned IndexRef
	require.NoError(t, scanned.Scan(int64(12)))
	id, ok := scanned.ID()
	assert.True(t, ok)
	assert.Equal(t, int64(12), id)

	require.NoError(t, scanned.Scan(nil))
	assert.False(t, scanned.Assigned())

	assert.Error(t, scanned.Scan(3.5))
}
