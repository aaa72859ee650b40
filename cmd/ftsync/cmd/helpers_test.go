package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// isolate keeps user config and FTSYNC_* variables of the host out of a test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")
	for _, key := range []string{
		"FTSYNC_DATA_DIR", "FTSYNC_BACKEND", "FTSYNC_DRIVER", "FTSYNC_TOKENIZER",
		"FTSYNC_LANGUAGE", "FTSYNC_MAX_FILE_SIZE", "FTSYNC_LOG_LEVEL",
		"FTSYNC_FAIL_FAST", "FTSYNC_GITIGNORE", "FTSYNC_EXTENSIONS", "FTSYNC_DEBOUNCE",
	} {
		t.Setenv(key, "")
	}
}

// execute runs the CLI with args and returns stdout, stderr and the
// classified error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := classify(cmd.ExecuteContext(context.Background()))
	return stdout.String(), stderr.String(), err
}

// writeNote writes a file under root with a fixed modification time.
func writeNote(t *testing.T, root, rel, content string, mtime time.Time) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(p, mtime, mtime))
}

// syncedRoot returns a root holding two notes after one sync.
func syncedRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeNote(t, root, "alpha.md", "the quick brown fox", baseTime)
	writeNote(t, root, "notes/beta.md", "a lazy dog sleeps", baseTime)
	_, _, err := execute(t, "sync", root)
	require.NoError(t, err)
	return root
}
