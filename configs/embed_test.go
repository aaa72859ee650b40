package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ftsync/internal/config"
)

func TestTemplate_LoadsAsDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, ".ftsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(Template), 0o644))

	cfg, err := config.LoadFrom(dir, path)
	require.NoError(t, err)

	defaults := config.NewConfig()
	assert.Equal(t, defaults.Version, cfg.Version)
	assert.Equal(t, defaults.Storage, cfg.Storage)
	assert.Equal(t, defaults.Sync, cfg.Sync)
	assert.Equal(t, defaults.LogLevel, cfg.LogLevel)
	assert.Equal(t, defaults.Paths.Extensions, cfg.Paths.Extensions)
	assert.Equal(t, defaults.Paths.Gitignore, cfg.Paths.Gitignore)
	assert.Empty(t, cfg.Paths.Include)
	assert.Empty(t, cfg.Paths.Exclude)
}
