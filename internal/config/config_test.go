package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ftsync/internal/store"
)

// isolate points the user config at an empty directory and clears FTSYNC_*.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, key := range []string{
		"FTSYNC_DATA_DIR", "FTSYNC_BACKEND", "FTSYNC_DRIVER", "FTSYNC_TOKENIZER",
		"FTSYNC_LANGUAGE", "FTSYNC_MAX_FILE_SIZE", "FTSYNC_LOG_LEVEL",
		"FTSYNC_FAIL_FAST", "FTSYNC_GITIGNORE", "FTSYNC_EXTENSIONS", "FTSYNC_DEBOUNCE",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, []string{".md"}, cfg.Paths.Extensions)
	assert.True(t, cfg.Paths.Gitignore)
	assert.Equal(t, ".ftsync", cfg.Storage.DataDir)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, store.DriverModernc, cfg.Storage.Driver)
	assert.Equal(t, TokenizerDefault, cfg.Storage.Tokenizer)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.Debounce)
	assert.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Validate())

	size, err := cfg.MaxFileSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(32<<20), size)
}

func TestLoad_NoFiles(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoad_ProjectYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	// Given: a project config that sets some keys
	writeFile(t, filepath.Join(dir, ".ftsync.yaml"), `
paths:
  extensions: [".txt", ".md"]
  gitignore: false
storage:
  backend: bleve
sync:
  debounce: 2s
  max_file_size: 1MB
`)

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: set keys override, the rest keep their defaults
	assert.Equal(t, []string{".txt", ".md"}, cfg.Paths.Extensions)
	assert.False(t, cfg.Paths.Gitignore)
	assert.Equal(t, "bleve", cfg.Storage.Backend)
	assert.Equal(t, store.DriverModernc, cfg.Storage.Driver)
	assert.Equal(t, 2*time.Second, cfg.Sync.Debounce)
	assert.Equal(t, 10*time.Second, cfg.Sync.PollInterval)

	size, err := cfg.MaxFileSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), size)
}

func TestLoad_ProjectTOML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, ".ftsync.toml"), `
log_level = "debug"

[storage]
tokenizer = "unicode"
language = "tr"

[sync]
fail_fast = true
poll_interval = "1m"
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, TokenizerUnicode, cfg.Storage.Tokenizer)
	assert.Equal(t, "tr", cfg.Storage.Language)
	assert.True(t, cfg.Sync.FailFast)
	assert.Equal(t, time.Minute, cfg.Sync.PollInterval)
	assert.True(t, cfg.Paths.Gitignore)
}

func TestLoad_UnknownKeysRejected(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", ".ftsync.yaml", "storage:\n  backnd: bleve\n"},
		{"toml", ".ftsync.toml", "[storage]\nbacknd = \"bleve\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, tt.file), tt.content)

			_, err := Load(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "backnd")
		})
	}
}

func TestLoad_EmptyYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".ftsync.yml"), "")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoad_Precedence(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	// Given: user config, project config and environment all set values
	writeFile(t, GetUserConfigPath(), `
storage:
  backend: bleve
  tokenizer: unicode
log_level: warn
`)
	writeFile(t, filepath.Join(dir, ".ftsync.yaml"), `
storage:
  backend: sqlite
`)
	t.Setenv("FTSYNC_LOG_LEVEL", "debug")

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: project beats user, env beats both
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, TokenizerUnicode, cfg.Storage.Tokenizer)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFrom_ExplicitPath(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".ftsync.yaml"), "storage:\n  backend: bleve\n")
	explicit := filepath.Join(t.TempDir(), "other.toml")
	writeFile(t, explicit, "[storage]\ndata_dir = \"/var/lib/ftsync\"\n")

	cfg, err := LoadFrom(dir, explicit)
	require.NoError(t, err)

	// The project file in dir is not read.
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/ftsync", cfg.Storage.DataDir)
}

func TestLoadFrom_MissingExplicitPath(t *testing.T) {
	isolate(t)

	_, err := LoadFrom(t.TempDir(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("FTSYNC_BACKEND", "bleve")
	t.Setenv("FTSYNC_FAIL_FAST", "true")
	t.Setenv("FTSYNC_GITIGNORE", "false")
	t.Setenv("FTSYNC_EXTENSIONS", ".txt, .rst,")
	t.Setenv("FTSYNC_DEBOUNCE", "150ms")
	t.Setenv("FTSYNC_MAX_FILE_SIZE", "4KiB")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "bleve", cfg.Storage.Backend)
	assert.True(t, cfg.Sync.FailFast)
	assert.False(t, cfg.Paths.Gitignore)
	assert.Equal(t, []string{".txt", ".rst"}, cfg.Paths.Extensions)
	assert.Equal(t, 150*time.Millisecond, cfg.Sync.Debounce)

	size, err := cfg.MaxFileSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(4096), size)
}

func TestLoad_InvalidEnv(t *testing.T) {
	for key, value := range map[string]string{
		"FTSYNC_FAIL_FAST": "sometimes",
		"FTSYNC_DEBOUNCE":  "soon",
		"FTSYNC_BACKEND":   "lucene",
	} {
		t.Run(key, func(t *testing.T) {
			isolate(t)
			t.Setenv(key, value)

			_, err := Load(t.TempDir())
			require.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"backend", func(c *Config) { c.Storage.Backend = "lucene" }, "storage.backend"},
		{"driver", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.driver"},
		{"tokenizer", func(c *Config) { c.Storage.Tokenizer = "porter" }, "storage.tokenizer"},
		{"language", func(c *Config) { c.Storage.Language = "not a tag!" }, "storage.language"},
		{"data dir", func(c *Config) { c.Storage.DataDir = " " }, "storage.data_dir"},
		{"max file size", func(c *Config) { c.Sync.MaxFileSize = "huge" }, "sync.max_file_size"},
		{"debounce", func(c *Config) { c.Sync.Debounce = -time.Second }, "sync.debounce"},
		{"poll interval", func(c *Config) { c.Sync.PollInterval = -time.Second }, "sync.poll_interval"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}

func TestDataDirPath(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, filepath.Join("/notes", ".ftsync"), cfg.DataDirPath("/notes"))

	cfg.Storage.DataDir = "/var/lib/ftsync"
	assert.Equal(t, "/var/lib/ftsync", cfg.DataDirPath("/notes"))
}

func TestPredicate(t *testing.T) {
	cfg := NewConfig()
	cfg.Paths.Extensions = []string{".md", ".txt"}
	cfg.Paths.Include = []string{"docs/**"}

	pred := cfg.Predicate()
	assert.True(t, pred("docs/a.md"))
	assert.True(t, pred("docs/deep/b.TXT"))
	assert.False(t, pred("src/a.md"))
	assert.False(t, pred("docs/a.go"))

	// No extensions and no patterns means every file.
	cfg.Paths.Extensions = nil
	cfg.Paths.Include = nil
	assert.True(t, cfg.Predicate()("anything.bin"))
}

func TestScannerOptions(t *testing.T) {
	cfg := NewConfig()
	cfg.Paths.Exclude = []string{"drafts/**"}
	cfg.Paths.FollowSymlinks = true

	opts := cfg.ScannerOptions(nil)
	assert.Equal(t, []string{"drafts/**"}, opts.ExcludePatterns)
	assert.True(t, opts.RespectGitignore)
	assert.True(t, opts.FollowSymlinks)
	assert.False(t, opts.AllowSensitive)
	require.NotNil(t, opts.Include)
	assert.True(t, opts.Include("a.md"))

	// A relative data dir with a custom name is excluded from walks.
	cfg.Storage.DataDir = "var/state"
	opts = cfg.ScannerOptions(nil)
	assert.Contains(t, opts.ExcludePatterns, "var/state/**")
}

func TestIndexOptions(t *testing.T) {
	cfg := NewConfig()
	opts, err := cfg.IndexOptions()
	require.NoError(t, err)
	assert.Nil(t, opts.Tokenizer)
	assert.Equal(t, store.DriverModernc, opts.SQLite.Driver)

	cfg.Storage.Tokenizer = TokenizerUnicode
	cfg.Storage.Language = "tr"
	opts, err = cfg.IndexOptions()
	require.NoError(t, err)
	require.NotNil(t, opts.Tokenizer)
}

func TestWrite_RoundTrip(t *testing.T) {
	for _, name := range []string{".ftsync.yaml", ".ftsync.toml"} {
		t.Run(name, func(t *testing.T) {
			isolate(t)
			dir := t.TempDir()

			// Given: a non-default config written to disk
			cfg := NewConfig()
			cfg.Storage.Backend = "bleve"
			cfg.Paths.Exclude = []string{"tmp/**"}
			cfg.Sync.Debounce = 3 * time.Second
			backup, err := cfg.Write(filepath.Join(dir, name))
			require.NoError(t, err)
			assert.Empty(t, backup)

			// When: loading it back
			loaded, err := Load(dir)
			require.NoError(t, err)

			// Then: the values survive
			assert.Equal(t, "bleve", loaded.Storage.Backend)
			assert.Equal(t, []string{"tmp/**"}, loaded.Paths.Exclude)
			assert.Equal(t, 3*time.Second, loaded.Sync.Debounce)
		})
	}
}

func TestWrite_BacksUpExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".ftsync.yaml")
	writeFile(t, path, "log_level: debug\n")

	backup, err := NewConfig().Write(path)
	require.NoError(t, err)
	require.NotEmpty(t, backup)

	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "log_level: debug\n", string(data))
}

func TestFindRoot(t *testing.T) {
	t.Run("project config in ancestor", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, ".ftsync.toml"), "")
		nested := filepath.Join(root, "a", "b")
		require.NoError(t, os.MkdirAll(nested, 0755))

		got, err := FindRoot(nested)
		require.NoError(t, err)
		assert.Equal(t, root, got)
	})

	t.Run("data dir in ancestor", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root, ".ftsync"), 0755))
		nested := filepath.Join(root, "notes")
		require.NoError(t, os.MkdirAll(nested, 0755))

		got, err := FindRoot(nested)
		require.NoError(t, err)
		assert.Equal(t, root, got)
	})

	t.Run("no marker", func(t *testing.T) {
		dir := t.TempDir()

		got, err := FindRoot(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, got)
	})
}
