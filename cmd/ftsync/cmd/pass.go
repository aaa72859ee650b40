package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Aman-CERP/ftsync/internal/lock"
	"github.com/Aman-CERP/ftsync/internal/reconcile"
	"github.com/Aman-CERP/ftsync/internal/scanner"
	"github.com/Aman-CERP/ftsync/internal/store"
)

// passOptions are the per-invocation pass settings.
type passOptions struct {
	dryRun   bool
	failFast bool
	wait     bool // wait for the pass lock instead of failing
}

// acquire takes the pass lock.
func acquire(ctx context.Context, l *lock.PassLock, wait bool) error {
	if wait {
		return l.Lock(ctx)
	}
	return l.TryLock()
}

// runPass opens the stores and runs one pass under the pass lock.
func (e *env) runPass(ctx context.Context, opts passOptions) (*reconcile.Result, error) {
	l := lock.NewAt(e.paths.Lock)
	if err := acquire(ctx, l, opts.wait); err != nil {
		return nil, err
	}
	defer func() { _ = l.Unlock() }()

	s, err := e.openStores()
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()

	return e.reconcile(ctx, s, opts)
}

// reconcile runs one pass over open stores. The caller holds the lock.
// Completed passes, including partial ones, record their time and run ID.
func (e *env) reconcile(ctx context.Context, s *stores, opts passOptions) (*reconcile.Result, error) {
	if err := e.checkRoot(ctx, s, !opts.dryRun); err != nil {
		return nil, err
	}
	if err := e.adoptIndex(ctx, s, opts.dryRun); err != nil {
		return nil, err
	}

	sc, err := scanner.New(e.cfg.ScannerOptions(e.logger))
	if err != nil {
		return nil, err
	}
	maxSize, err := e.cfg.MaxFileSizeBytes()
	if err != nil {
		return nil, err
	}

	r, err := reconcile.New(reconcile.Dependencies{
		Metadata: s.metadata,
		Index:    s.index,
		Scanner:  sc,
		Logger:   e.logger,
	}, reconcile.Options{
		FailFast:    opts.failFast || e.cfg.Sync.FailFast,
		MaxFileSize: maxSize,
		DryRun:      opts.dryRun,
	})
	if err != nil {
		return nil, err
	}

	res, err := r.Reconcile(ctx, e.root)
	var passErr *reconcile.PassError
	if opts.dryRun || (err != nil && !errors.As(err, &passErr)) {
		return res, err
	}

	// The pass itself succeeded, so losing the bookkeeping is only logged.
	bookkeeping := context.WithoutCancel(ctx)
	if serr := s.metadata.SetState(bookkeeping, store.StateKeyLastPass, time.Now().UTC().Format(time.RFC3339)); serr != nil {
		e.logger.Warn("state_write_failed", slog.String("key", store.StateKeyLastPass), slog.String("error", serr.Error()))
	}
	if serr := s.metadata.SetState(bookkeeping, store.StateKeyLastRunID, res.RunID); serr != nil {
		e.logger.Warn("state_write_failed", slog.String("key", store.StateKeyLastRunID), slog.String("error", serr.Error()))
	}
	return res, err
}
