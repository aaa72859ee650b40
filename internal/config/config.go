// Package config loads the layered ftsync configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/ftsync/internal/scanner"
	"github.com/Aman-CERP/ftsync/internal/store"
	"github.com/Aman-CERP/ftsync/internal/tokenizer"
)

// Project config file names, in lookup order.
var projectConfigNames = []string{".ftsync.yaml", ".ftsync.yml", ".ftsync.toml"}

// Tokenizer choices.
const (
	TokenizerDefault = "default" // the backend's own tokenizer
	TokenizerUnicode = "unicode" // tokenizer.Unicode
)

// Config is the complete ftsync configuration.
type Config struct {
	Version  int           `yaml:"version" toml:"version"`
	Paths    PathsConfig   `yaml:"paths" toml:"paths"`
	Storage  StorageConfig `yaml:"storage" toml:"storage"`
	Sync     SyncConfig    `yaml:"sync" toml:"sync"`
	LogLevel string        `yaml:"log_level" toml:"log_level"`
}

// PathsConfig selects the files that make up the synced set.
type PathsConfig struct {
	// Extensions a file must have (case-insensitive). Empty means any.
	Extensions []string `yaml:"extensions" toml:"extensions"`
	// Include patterns; when set, a file must also match one of them.
	Include []string `yaml:"include" toml:"include"`
	// Exclude patterns, on top of the built-in exclusions.
	Exclude []string `yaml:"exclude" toml:"exclude"`

	Gitignore      bool `yaml:"gitignore" toml:"gitignore"`
	FollowSymlinks bool `yaml:"follow_symlinks" toml:"follow_symlinks"`
	AllowSensitive bool `yaml:"allow_sensitive" toml:"allow_sensitive"`
}

// StorageConfig locates and configures the store pair.
type StorageConfig struct {
	// DataDir holds the stores. Relative paths are resolved against the root.
	DataDir string `yaml:"data_dir" toml:"data_dir"`
	// Backend is the full-text index: "sqlite" or "bleve".
	Backend string `yaml:"backend" toml:"backend"`
	// Driver is the SQL driver: "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `yaml:"driver" toml:"driver"`
	// Tokenizer is "default" or "unicode".
	Tokenizer string `yaml:"tokenizer" toml:"tokenizer"`
	// Language is a BCP 47 tag for case folding with the unicode tokenizer.
	Language string `yaml:"language" toml:"language"`
}

// SyncConfig tunes reconciliation passes.
type SyncConfig struct {
	FailFast bool `yaml:"fail_fast" toml:"fail_fast"`
	// MaxFileSize is a human-readable size such as "32MiB".
	MaxFileSize  string        `yaml:"max_file_size" toml:"max_file_size"`
	Debounce     time.Duration `yaml:"debounce" toml:"debounce"`
	PollInterval time.Duration `yaml:"poll_interval" toml:"poll_interval"`
	ForcePolling bool          `yaml:"force_polling" toml:"force_polling"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Extensions: []string{".md"},
			Gitignore:  true,
		},
		Storage: StorageConfig{
			DataDir:   scanner.DataDirName,
			Backend:   string(store.BackendSQLite),
			Driver:    store.DriverModernc,
			Tokenizer: TokenizerDefault,
		},
		Sync: SyncConfig{
			MaxFileSize:  "32MiB",
			Debounce:     500 * time.Millisecond,
			PollInterval: 10 * time.Second,
		},
		LogLevel: "info",
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory layout:
//   - $XDG_CONFIG_HOME/ftsync/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/ftsync/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ftsync", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ftsync", "config.yaml")
	}
	return filepath.Join(home, ".config", "ftsync", "config.yaml")
}

// Load loads configuration for the root directory dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/ftsync/config.yaml)
//  3. Project config (.ftsync.yaml, .ftsync.yml or .ftsync.toml in dir)
//  4. Environment variables (FTSYNC_*)
func Load(dir string) (*Config, error) {
	return LoadFrom(dir, "")
}

// LoadFrom is Load with an explicit project config file. An empty
// configPath looks the project config up in dir.
func LoadFrom(dir, configPath string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadFile(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if configPath == "" {
		configPath = FindProjectConfig(dir)
	}
	if configPath != "" {
		if err := cfg.loadFile(configPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FindProjectConfig returns the project config file in dir, or "".
func FindProjectConfig(dir string) string {
	for _, name := range projectConfigNames {
		if p := filepath.Join(dir, name); fileExists(p) {
			return p
		}
	}
	return ""
}

// loadFile decodes a YAML or TOML file over c. Keys absent from the file
// keep their current values; unknown keys are an error.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		md, err := toml.Decode(string(data), c)
		if err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("failed to parse config file %s: unknown key %q", path, undecoded[0].String())
		}
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies FTSYNC_* environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"FTSYNC_DATA_DIR":      &c.Storage.DataDir,
		"FTSYNC_BACKEND":       &c.Storage.Backend,
		"FTSYNC_DRIVER":        &c.Storage.Driver,
		"FTSYNC_TOKENIZER":     &c.Storage.Tokenizer,
		"FTSYNC_LANGUAGE":      &c.Storage.Language,
		"FTSYNC_MAX_FILE_SIZE": &c.Sync.MaxFileSize,
		"FTSYNC_LOG_LEVEL":     &c.LogLevel,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"FTSYNC_FAIL_FAST": &c.Sync.FailFast,
		"FTSYNC_GITIGNORE": &c.Paths.Gitignore,
	}
	for key, dst := range bools {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = b
		}
	}

	if v := os.Getenv("FTSYNC_EXTENSIONS"); v != "" {
		c.Paths.Extensions = splitList(v)
	}
	if v := os.Getenv("FTSYNC_DEBOUNCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FTSYNC_DEBOUNCE: %w", err)
		}
		c.Sync.Debounce = d
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if err := store.ValidateBackend(c.Storage.Backend); err != nil {
		return fmt.Errorf("storage.backend: %w", err)
	}
	if err := store.ValidateDriver(c.Storage.Driver); err != nil {
		return fmt.Errorf("storage.driver: %w", err)
	}
	switch c.Storage.Tokenizer {
	case "", TokenizerDefault, TokenizerUnicode:
	default:
		return fmt.Errorf("storage.tokenizer must be 'default' or 'unicode', got %s", c.Storage.Tokenizer)
	}
	if c.Storage.Language != "" {
		if _, err := language.Parse(c.Storage.Language); err != nil {
			return fmt.Errorf("storage.language: %w", err)
		}
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return errors.New("storage.data_dir must not be empty")
	}

	if _, err := c.MaxFileSizeBytes(); err != nil {
		return err
	}
	if c.Sync.Debounce < 0 {
		return fmt.Errorf("sync.debounce must be non-negative, got %s", c.Sync.Debounce)
	}
	if c.Sync.PollInterval < 0 {
		return fmt.Errorf("sync.poll_interval must be non-negative, got %s", c.Sync.PollInterval)
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel converts a log level name to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level must be 'debug', 'info', 'warn', or 'error', got %s", level)
	}
}

// MaxFileSizeBytes parses Sync.MaxFileSize. An empty value is 0 (the
// reconciler default).
func (c *Config) MaxFileSizeBytes() (int64, error) {
	if c.Sync.MaxFileSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.Sync.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("sync.max_file_size: %w", err)
	}
	return int64(n), nil
}

// DataDirPath resolves the data directory for root.
func (c *Config) DataDirPath(root string) string {
	if filepath.IsAbs(c.Storage.DataDir) {
		return c.Storage.DataDir
	}
	return filepath.Join(root, c.Storage.DataDir)
}

// Predicate builds the inclusion predicate from the paths section.
func (c *Config) Predicate() scanner.Predicate {
	var preds []scanner.Predicate
	if len(c.Paths.Extensions) > 0 {
		preds = append(preds, scanner.Extensions(c.Paths.Extensions...))
	}
	if len(c.Paths.Include) > 0 {
		preds = append(preds, scanner.Patterns(c.Paths.Include...))
	}
	return scanner.All(preds...)
}

// ScannerOptions builds scanner options from the paths section.
func (c *Config) ScannerOptions(logger *slog.Logger) scanner.Options {
	exclude := append([]string(nil), c.Paths.Exclude...)
	if dataDir := filepath.ToSlash(filepath.Clean(c.Storage.DataDir)); !filepath.IsAbs(c.Storage.DataDir) &&
		dataDir != scanner.DataDirName && !strings.HasPrefix(dataDir, "../") {
		exclude = append(exclude, dataDir+"/**")
	}
	return scanner.Options{
		Include:          c.Predicate(),
		ExcludePatterns:  exclude,
		RespectGitignore: c.Paths.Gitignore,
		FollowSymlinks:   c.Paths.FollowSymlinks,
		AllowSensitive:   c.Paths.AllowSensitive,
		Logger:           logger,
	}
}

// IndexOptions builds full-text index options from the storage section.
func (c *Config) IndexOptions() (store.IndexOptions, error) {
	opts := store.IndexOptions{SQLite: store.SQLiteOptions{Driver: c.Storage.Driver}}
	if c.Storage.Tokenizer != TokenizerUnicode {
		return opts, nil
	}

	var tokOpts []tokenizer.Option
	if c.Storage.Language != "" {
		tag, err := language.Parse(c.Storage.Language)
		if err != nil {
			return opts, fmt.Errorf("storage.language: %w", err)
		}
		tokOpts = append(tokOpts, tokenizer.WithLanguage(tag))
	}
	opts.Tokenizer = tokenizer.NewUnicode(tokOpts...)
	return opts, nil
}

// Marshal encodes the configuration as YAML, or TOML when format is "toml".
func (c *Config) Marshal(format string) ([]byte, error) {
	if strings.EqualFold(format, "toml") {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return nil, fmt.Errorf("failed to marshal config: %w", err)
		}
		return buf.Bytes(), nil
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Write writes the configuration to path, as TOML for a .toml extension and
// YAML otherwise. An existing file is backed up first.
func (c *Config) Write(path string) (backup string, err error) {
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		format = "toml"
	}
	data, err := c.Marshal(format)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	backup, err = Backup(path)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return backup, fmt.Errorf("failed to write config file: %w", err)
	}
	return backup, nil
}

// FindRoot finds the synced root containing startDir: the nearest ancestor
// with a project config file or a default data directory. If there is none,
// startDir itself is returned.
func FindRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	current := absDir
	for {
		if FindProjectConfig(current) != "" || dirExists(filepath.Join(current, scanner.DataDirName)) {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return absDir, nil
		}
		current = parent
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
