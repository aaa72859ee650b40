package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ftserrors "github.com/Aman-CERP/ftsync/internal/errors"
)

const sampleLog = `{"time":"2024-03-01T12:00:00Z","level":"INFO","msg":"reconcile_started","root":"/notes"}
{"time":"2024-03-01T12:00:01Z","level":"WARN","msg":"file_skipped","path":"big.md"}
{"time":"2024-03-01T12:00:02Z","level":"ERROR","msg":"reconcile_aborted","error":"disk full"}
`

func writeLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ftsync.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o644))
	return path
}

func TestLogsCmd_Tail(t *testing.T) {
	path := writeLog(t)

	stdout, stderr, err := execute(t, "logs", "--file", path, "-n", "2")

	require.NoError(t, err)
	assert.Contains(t, stderr, "Log file: "+path)
	assert.NotContains(t, stdout, "reconcile_started")
	assert.Contains(t, stdout, "file_skipped path=big.md")
	assert.Contains(t, stdout, "reconcile_aborted")
	assert.Equal(t, 2, strings.Count(stdout, "\n"))
}

func TestLogsCmd_Filters(t *testing.T) {
	path := writeLog(t)

	stdout, _, err := execute(t, "logs", "--file", path, "--level", "error")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(stdout, "\n"))
	assert.Contains(t, stdout, "reconcile_aborted")

	stdout, _, err = execute(t, "logs", "--file", path, "--filter", "reconcile_")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(stdout, "\n"))
}

func TestLogsCmd_Errors(t *testing.T) {
	_, _, err := execute(t, "logs", "--file", filepath.Join(t.TempDir(), "missing.log"))
	require.Error(t, err)

	_, _, err = execute(t, "logs", "--file", writeLog(t), "--filter", "(")
	require.Error(t, err)
	assert.Equal(t, ftserrors.ExitUsage, ftserrors.ExitCode(err))
}
