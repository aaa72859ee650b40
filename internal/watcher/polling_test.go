package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noneIgnored(string) bool { return false }

func TestPoller_Diff(t *testing.T) {
	// Given: a baseline with two files
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.md"), []byte("k"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "gone.md"), []byte("g"), 0o644))
	p := newPoller(root, noneIgnored)
	require.NoError(t, p.baseline())

	// When: one file changes, one is removed, one is added
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, "keep.md"), later, later))
	require.NoError(t, os.Remove(filepath.Join(root, "gone.md")))
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.md"), []byte("n"), 0o644))

	events, err := p.diff()
	require.NoError(t, err)

	// Then: each change is reported once, ordered by path
	require.Len(t, events, 3)
	assert.Equal(t, Event{Path: "gone.md", Op: OpDelete, Time: events[0].Time}, events[0])
	assert.Equal(t, "keep.md", events[1].Path)
	assert.Equal(t, OpModify, events[1].Op)
	assert.Equal(t, "new.md", events[2].Path)
	assert.Equal(t, OpCreate, events[2].Op)

	// And: a second diff without changes is empty
	events, err = p.diff()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPoller_IgnoresDirectories(t *testing.T) {
	root := t.TempDir()
	p := newPoller(root, func(rel string) bool { return rel == ".ftsync" })
	require.NoError(t, p.baseline())

	require.NoError(t, os.MkdirAll(filepath.Join(root, ".ftsync"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".ftsync", "metadata.db"), []byte("x"), 0o644))

	events, err := p.diff()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPoller_MissingRoot(t *testing.T) {
	p := newPoller(filepath.Join(t.TempDir(), "missing"), noneIgnored)
	assert.Error(t, p.baseline())
}
