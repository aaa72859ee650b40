package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackup_MissingFile(t *testing.T) {
	backup, err := Backup(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Empty(t, backup)
}

func TestBackup_CopiesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "version: 1\n")

	backup, err := Backup(path)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(filepath.Base(backup), "config.yaml"+BackupSuffix+"."))
	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
}

func TestBackup_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "current")

	// Given: more old backups than are kept
	for i := range MaxBackups + 2 {
		writeFile(t, fmt.Sprintf("%s%s.20200101-00000%d.000", path, BackupSuffix, i), "old")
	}

	// When: backing up
	latest, err := Backup(path)
	require.NoError(t, err)

	// Then: only the newest MaxBackups remain, the new one first
	backups, err := ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, MaxBackups)
	assert.Equal(t, latest, backups[0])
}

func TestListBackups_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, filepath.Join(dir, "other.yaml.bak.20200101-000000.000"), "x")
	writeFile(t, filepath.Join(dir, "config.yaml"), "x")

	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Empty(t, backups)

	backups, err = ListBackups(filepath.Join(dir, "missing", "config.yaml"))
	require.NoError(t, err)
	assert.Nil(t, backups)
}

func TestRestore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "first")
	backup, err := Backup(path)
	require.NoError(t, err)
	writeFile(t, path, "second")

	require.NoError(t, Restore(path, backup))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	err = Restore(path, filepath.Join(dir, "missing.bak"))
	assert.Error(t, err)
}
