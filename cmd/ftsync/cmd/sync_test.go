package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ftserrors "github.com/Aman-CERP/ftsync/internal/errors"
	"github.com/Aman-CERP/ftsync/internal/lock"
	"github.com/Aman-CERP/ftsync/internal/store"
)

func TestSyncCmd_AddsUpdatesAndDeletes(t *testing.T) {
	isolate(t)
	root := t.TempDir()

	// Given: two notes and a file of another type
	writeNote(t, root, "alpha.md", "the quick brown fox", baseTime)
	writeNote(t, root, "notes/beta.md", "a lazy dog", baseTime)
	writeNote(t, root, "image.png", "binary", baseTime)

	// When: syncing
	stdout, _, err := execute(t, "sync", root)

	// Then: both notes are added
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 added, 0 updated, 0 deleted")
	assert.Contains(t, stdout, "2 scanned")

	// When: one note changes and the other is removed
	writeNote(t, root, "alpha.md", "the quick red fox", baseTime.Add(time.Minute))
	require.NoError(t, os.Remove(filepath.Join(root, "notes", "beta.md")))
	stdout, _, err = execute(t, "sync", root, "-v")

	// Then: the pass updates one and deletes the other
	require.NoError(t, err)
	assert.Contains(t, stdout, "0 added, 1 updated, 1 deleted")
	assert.Contains(t, stdout, "~ alpha.md")
	assert.Contains(t, stdout, "- notes/beta.md")

	// And: a repeated pass changes nothing
	stdout, _, err = execute(t, "sync", root)
	require.NoError(t, err)
	assert.Contains(t, stdout, "0 added, 0 updated, 0 deleted (1 scanned, 1 unchanged)")
}

func TestSyncCmd_DryRun(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeNote(t, root, "alpha.md", "the quick brown fox", baseTime)

	// When: a dry run
	stdout, _, err := execute(t, "sync", root, "--dry-run")

	// Then: the change is reported but not applied
	require.NoError(t, err)
	assert.Contains(t, stdout, "Would sync")
	assert.Contains(t, stdout, "1 added")

	stdout, _, err = execute(t, "search", "--root", root, "--count", "fox")
	require.NoError(t, err)
	assert.Equal(t, "0\n", stdout)
}

func TestSyncCmd_JSON(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeNote(t, root, "alpha.md", "the quick brown fox", baseTime)

	stdout, _, err := execute(t, "sync", root, "--json")
	require.NoError(t, err)

	var summary passSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, root, summary.Root)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, []changeSummary{{Path: "alpha.md", Transition: "added"}}, summary.Changes)
	assert.Empty(t, summary.Failures)
}

func TestSyncCmd_Locked(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeNote(t, root, "alpha.md", "the quick brown fox", baseTime)

	// Given: another process holds the pass lock
	l := lock.NewAt(store.PathsFor(filepath.Join(root, ".ftsync")).Lock)
	require.NoError(t, l.TryLock())
	t.Cleanup(func() { _ = l.Unlock() })

	// When: syncing without --wait
	_, _, err := execute(t, "sync", root)

	// Then: the pass refuses to run
	require.Error(t, err)
	assert.Equal(t, ftserrors.ErrCodeLocked, ftserrors.GetCode(err))
	assert.Equal(t, ftserrors.ExitLocked, ftserrors.ExitCode(err))
}

func TestSyncCmd_DataDirBoundToRoot(t *testing.T) {
	isolate(t)
	dataDir := t.TempDir()
	first, second := t.TempDir(), t.TempDir()
	writeNote(t, first, "alpha.md", "alpha", baseTime)
	writeNote(t, second, "beta.md", "beta", baseTime)

	_, _, err := execute(t, "sync", first, "--data-dir", dataDir)
	require.NoError(t, err)

	// When: syncing another root into the same data directory
	_, _, err = execute(t, "sync", second, "--data-dir", dataDir)

	// Then: it is refused and the first root's records survive
	require.Error(t, err)
	assert.Equal(t, ftserrors.ErrCodeInvalidInput, ftserrors.GetCode(err))

	stdout, _, err := execute(t, "search", "--root", first, "--data-dir", dataDir, "--count", "alpha")
	require.NoError(t, err)
	assert.Equal(t, "1\n", stdout)
}

func TestSyncCmd_InvalidConfig(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeNote(t, root, ".ftsync.yaml", "storage:\n  backend: mongo\n", baseTime)

	_, _, err := execute(t, "sync", root)

	require.Error(t, err)
	assert.Equal(t, ftserrors.ErrCodeConfigInvalid, ftserrors.GetCode(err))
	assert.Equal(t, ftserrors.ExitUsage, ftserrors.ExitCode(err))
}

func TestSyncCmd_BackendSwitchReindexes(t *testing.T) {
	isolate(t)
	root := syncedRoot(t)

	// When: the configured backend changes under existing records
	t.Setenv("FTSYNC_BACKEND", "bleve")
	stdout, _, err := execute(t, "sync", root)

	// Then: every file is re-indexed into the new backend
	require.NoError(t, err)
	assert.Contains(t, stdout, "0 added, 0 updated, 0 deleted, 2 re-indexed")

	stdout, _, err = execute(t, "search", "--root", root, "--count", "fox")
	require.NoError(t, err)
	assert.Equal(t, "1\n", stdout)

	stdout, _, err = execute(t, "check", root)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Stores are consistent")

	// When: switching back to the old index, whose entries are stale
	t.Setenv("FTSYNC_BACKEND", "sqlite")
	stdout, _, err = execute(t, "sync", root)

	// Then: the stale entries are replaced rather than reused
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 re-indexed")

	stdout, _, err = execute(t, "search", "--root", root, "--count", "fox")
	require.NoError(t, err)
	assert.Equal(t, "1\n", stdout)

	stdout, _, err = execute(t, "check", root)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Checked 2 records and 2 index entries")
}

func TestSyncCmd_LostIndexReindexes(t *testing.T) {
	isolate(t)
	root := syncedRoot(t)

	// Given: the index file is lost while the metadata survives
	indexPath := store.IndexPath(store.PathsFor(filepath.Join(root, ".ftsync")).IndexBase, string(store.BackendSQLite))
	for _, suffix := range []string{"", "-wal", "-shm"} {
		require.NoError(t, removeIfExists(indexPath+suffix))
	}

	// Then: status reports the pending re-index
	stdout, _, err := execute(t, "status", root, "--json")
	require.NoError(t, err)
	var report statusReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.True(t, report.ReindexPending)

	// When: syncing
	stdout, _, err = execute(t, "sync", root)

	// Then: both files are indexed again
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 re-indexed")

	stdout, _, err = execute(t, "search", "--root", root, "--count", "fox")
	require.NoError(t, err)
	assert.Equal(t, "1\n", stdout)

	stdout, _, err = execute(t, "status", root, "--json")
	require.NoError(t, err)
	report = statusReport{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.False(t, report.ReindexPending)
}

func TestSyncCmd_AdoptsMatchingIndexWithoutReindex(t *testing.T) {
	isolate(t)
	root := syncedRoot(t)

	// Given: records never tied to an index identity, but matching the index
	meta, err := store.NewSQLiteStore(store.PathsFor(filepath.Join(root, ".ftsync")).Metadata, store.SQLiteOptions{})
	require.NoError(t, err)
	require.NoError(t, meta.SetState(context.Background(), store.StateKeyIndex, ""))
	require.NoError(t, meta.Close())

	// When: syncing
	stdout, _, err := execute(t, "sync", root)

	// Then: the index is kept as is
	require.NoError(t, err)
	assert.Contains(t, stdout, "0 added, 0 updated, 0 deleted (2 scanned, 2 unchanged)")
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
