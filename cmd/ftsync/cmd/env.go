package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ftsync/internal/config"
	ftserrors "github.com/Aman-CERP/ftsync/internal/errors"
	"github.com/Aman-CERP/ftsync/internal/logging"
	"github.com/Aman-CERP/ftsync/internal/output"
	"github.com/Aman-CERP/ftsync/internal/reconcile"
	"github.com/Aman-CERP/ftsync/internal/store"
)

// env is what a command needs to operate on one synced root.
type env struct {
	root    string
	cfg     *config.Config
	dataDir string
	paths   store.Paths
	logger  *slog.Logger
	out     *output.Writer
	cleanup func()
}

// newEnv resolves the root (args[0], or the nearest configured ancestor of
// the working directory), loads its configuration and sets up logging.
func newEnv(cmd *cobra.Command, opts *globalOptions, args []string) (*env, error) {
	root, err := resolveRoot(args)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadFrom(root, opts.configPath)
	if err != nil {
		return nil, ftserrors.ConfigError(err.Error(), err).
			WithSuggestion("fix the config file or run 'ftsync config init' to write a fresh one")
	}
	if opts.dataDir != "" {
		cfg.Storage.DataDir = opts.dataDir
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logCfg.Stderr = cmd.ErrOrStderr()
	if opts.debug {
		logCfg = logging.DebugConfig()
		logCfg.Stderr = cmd.ErrOrStderr()
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	if opts.debug {
		logger.Debug("debug_logging_enabled", slog.String("log_file", logCfg.FilePath))
	}

	dataDir := cfg.DataDirPath(root)
	return &env{
		root:    root,
		cfg:     cfg,
		dataDir: dataDir,
		paths:   store.PathsFor(dataDir),
		logger:  logger,
		out:     output.New(cmd.OutOrStdout()),
		cleanup: cleanup,
	}, nil
}

func resolveRoot(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to resolve root: %w", err)
		}
		return abs, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return config.FindRoot(wd)
}

func (e *env) close() {
	if e.cleanup != nil {
		e.cleanup()
	}
}

// stores is an open store pair.
type stores struct {
	metadata *store.SQLiteStore
	index    store.FullTextIndex
}

func (s *stores) Close() error {
	return errors.Join(s.index.Close(), s.metadata.Close())
}

// hasStores reports whether a pass has created the metadata store.
func (e *env) hasStores() bool {
	_, err := os.Stat(e.paths.Metadata)
	return err == nil
}

// openStores opens (creating if absent) the metadata store and the
// configured full-text index.
func (e *env) openStores() (*stores, error) {
	if err := os.MkdirAll(e.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	indexOpts, err := e.cfg.IndexOptions()
	if err != nil {
		return nil, err
	}

	metadata, err := store.NewSQLiteStore(e.paths.Metadata, indexOpts.SQLite)
	if err != nil {
		return nil, storeOpenError("metadata store", e.paths.Metadata, err)
	}
	index, err := store.NewFullTextIndex(e.paths.IndexBase, e.cfg.Storage.Backend, indexOpts)
	if err != nil {
		_ = metadata.Close()
		return nil, storeOpenError("full-text index", store.IndexPath(e.paths.IndexBase, e.cfg.Storage.Backend), err)
	}
	return &stores{metadata: metadata, index: index}, nil
}

// openExisting is openStores for read-only commands: it fails if no pass
// has run yet instead of creating empty stores.
func (e *env) openExisting() (*stores, error) {
	if !e.hasStores() {
		return nil, ftserrors.New(ftserrors.ErrCodeStoreOpen, "no index found in "+e.dataDir, nil).
			WithSuggestion("run 'ftsync sync' first")
	}
	return e.openStores()
}

// checkRoot refuses a store pair synced from another root, whose records
// the sweep would otherwise delete. With bind set, an unbound store pair is
// bound to e.root.
func (e *env) checkRoot(ctx context.Context, s *stores, bind bool) error {
	bound, err := s.metadata.GetState(ctx, store.StateKeyRoot)
	if err != nil {
		return err
	}
	if bound == "" {
		if !bind {
			return nil
		}
		return s.metadata.SetState(ctx, store.StateKeyRoot, e.root)
	}
	if bound != e.root {
		return ftserrors.New(ftserrors.ErrCodeInvalidInput,
			fmt.Sprintf("data directory %s belongs to root %s", e.dataDir, bound), nil).
			WithDetail("root", e.root).
			WithSuggestion("use --data-dir to pick a separate data directory for this root")
	}
	return nil
}

// indexIdentity names the open index for StateKeyIndex.
func (e *env) indexIdentity(s *stores) string {
	return store.IndexIdentity(store.Backend(e.cfg.Storage.Backend), s.index)
}

// adoptIndex ties the records to the open index. An index the records were
// not made against (another backend, a lost or recreated file) is reset
// together with every reference, so the pass that follows re-indexes each
// file. A dry run only reports it.
func (e *env) adoptIndex(ctx context.Context, s *stores, dryRun bool) error {
	c := reconcile.NewChecker(s.metadata, s.index, e.logger)
	identity := e.indexIdentity(s)

	if dryRun {
		stale, err := c.NeedsReset(ctx, identity)
		if err != nil {
			return err
		}
		if stale {
			e.logger.Warn("index_stale",
				slog.String("index", identity),
				slog.String("hint", "the next sync re-indexes every file"))
		}
		return nil
	}

	reset, err := c.Adopt(ctx, identity)
	if err != nil {
		return err
	}
	if reset {
		e.logger.Warn("index_adopted",
			slog.String("index", identity),
			slog.String("action", "re-indexing every file"))
	}
	return nil
}
