package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	ftserrors "github.com/Aman-CERP/ftsync/internal/errors"
	"github.com/Aman-CERP/ftsync/internal/lock"
	"github.com/Aman-CERP/ftsync/internal/metrics"
	"github.com/Aman-CERP/ftsync/internal/reconcile"
	"github.com/Aman-CERP/ftsync/internal/watcher"
)

type watchOptions struct {
	failFast    bool
	metricsAddr string
	resync      time.Duration
	verbose     bool
}

func newWatchCmd(global *globalOptions) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch [root]",
		Short: "Keep the index in sync as files change",
		Long: `Run a pass, then run another pass whenever files under the root change.

File events only trigger passes; each pass rescans the root, so events
missed while a pass runs are picked up by the next one. Press Ctrl+C to stop.

Examples:
  ftsync watch
  ftsync watch ~/notes --metrics-addr :9464
  ftsync watch --resync 15m`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, global, args)
			if err != nil {
				return err
			}
			defer e.close()
			return runWatch(cmd.Context(), e, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.failFast, "fail-fast", false, "Abort a pass on the first unreadable file")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	cmd.Flags().DurationVar(&opts.resync, "resync", 0, "Also run a pass at this interval (0 disables)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "List every changed path")

	return cmd
}

// passRunner runs watch passes under the lock, retrying while another
// process holds it and backing off after repeated aborted passes.
type passRunner struct {
	e       *env
	s       *stores
	lock    *lock.PassLock
	opts    passOptions
	metrics *metrics.Metrics
	breaker *ftserrors.CircuitBreaker
	retry   ftserrors.RetryConfig
	verbose bool
}

func isPartial(err error) bool {
	var passErr *reconcile.PassError
	return errors.As(err, &passErr)
}

// run executes one pass. It returns the pass error, or ErrCircuitOpen if
// the pass was skipped.
func (r *passRunner) run(ctx context.Context, trigger string) error {
	return r.breaker.Execute(func() error {
		res, err := ftserrors.RetryWithResult(ctx, r.retry, func() (*reconcile.Result, error) {
			if err := r.lock.TryLock(); err != nil {
				return nil, err
			}
			defer func() { _ = r.lock.Unlock() }()
			return r.e.reconcile(ctx, r.s, r.opts)
		})
		r.metrics.Record(res, err)

		if res != nil && (err == nil || isPartial(err)) {
			if res.Mutations() > 0 || len(res.Failures) > 0 || trigger == "initial" {
				printResult(r.e.out, res, r.verbose)
			}
			r.e.logger.Info("watch_pass_complete",
				slog.String("trigger", trigger),
				slog.String("run_id", res.RunID),
				slog.Int("mutations", res.Mutations()),
				slog.Int("failures", len(res.Failures)))
		}
		return err
	}, isPartial)
}

func runWatch(ctx context.Context, e *env, opts watchOptions) error {
	s, err := e.openStores()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	retry := ftserrors.DefaultRetryConfig()
	retry.ShouldRetry = func(err error) bool { return errors.Is(err, lock.ErrLocked) }
	r := &passRunner{
		e:       e,
		s:       s,
		lock:    lock.NewAt(e.paths.Lock),
		opts:    passOptions{failFast: opts.failFast},
		metrics: metrics.New(),
		breaker: ftserrors.NewCircuitBreaker("reconcile",
			ftserrors.WithMaxFailures(3),
			ftserrors.WithResetTimeout(30*time.Second)),
		retry:   retry,
		verbose: opts.verbose,
	}

	// A store pair that cannot be synced at all is not worth watching.
	if err := r.run(ctx, "initial"); err != nil && !isPartial(err) {
		return err
	}

	w, err := watcher.New(watcher.Options{
		Debounce:     e.cfg.Sync.Debounce,
		PollInterval: e.cfg.Sync.PollInterval,
		IgnoreDirs:   []string{".git", filepath.Base(e.dataDir)},
		ForcePolling: e.cfg.Sync.ForcePolling,
		Logger:       e.logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx, e.root) })

	if opts.metricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           metricsMux(r.metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		e.logger.Info("metrics_server_started", slog.String("addr", opts.metricsAddr))
	}

	e.out.Statusf("", "Watching %s (%s). Press Ctrl+C to stop.", e.root, w.Mode())
	g.Go(func() error { return r.loop(gctx, w, opts.resync) })

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loop runs a pass per batch, and on every resync tick, until the watcher stops.
func (r *passRunner) loop(ctx context.Context, w *watcher.Watcher, resync time.Duration) error {
	var tick <-chan time.Time
	if resync > 0 {
		ticker := time.NewTicker(resync)
		defer ticker.Stop()
		tick = ticker.C
	}
	errs := w.Errors()

	for {
		var trigger string
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-w.Batches():
			if !ok {
				return nil
			}
			r.e.logger.Debug("watch_batch", slog.Int("events", len(batch)))
			trigger = "events"
		case <-tick:
			trigger = "resync"
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.e.logger.Warn("watch_error", slog.String("error", err.Error()))
			continue
		}

		err := r.run(ctx, trigger)
		switch {
		case err == nil, isPartial(err):
		case errors.Is(err, ftserrors.ErrCircuitOpen):
			r.e.logger.Warn("watch_pass_skipped", slog.String("trigger", trigger), slog.String("reason", "circuit open"))
		case ctx.Err() != nil:
			return nil
		default:
			r.e.out.Error(classify(err).Error())
			r.e.logger.Error("watch_pass_failed", slog.String("trigger", trigger), slog.String("error", err.Error()))
		}
	}
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}
