// Package watcher turns file system activity under a synced root into
// debounced batches of events.
//
// A batch is a trigger: the host runs one reconciliation pass per batch and
// the pass decides what actually changed. fsnotify is used when available;
// otherwise the root is polled.
//
// Usage:
//
//	w, err := watcher.New(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	go func() { _ = w.Run(ctx, root) }()
//
//	for batch := range w.Batches() {
//	    // run a pass
//	}
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted.
	OpDelete
	// OpRename indicates a file or directory was renamed away.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Event is one observed change.
type Event struct {
	Path  string // slash-separated, relative to the root
	Op    Operation
	IsDir bool
	Time  time.Time
}

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period before a batch is emitted.
	// Default: 500ms
	Debounce time.Duration

	// PollInterval is the scan interval in polling mode.
	// Default: 10s
	PollInterval time.Duration

	// BufferSize is the number of batches buffered for the consumer.
	// Default: 16
	BufferSize int

	// IgnoreDirs are directory names whose contents never produce events.
	// Default: .git and .ftsync
	IgnoreDirs []string

	// ForcePolling skips fsnotify.
	ForcePolling bool

	// Logger for watcher events (default: slog.Default()).
	Logger *slog.Logger
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:     500 * time.Millisecond,
		PollInterval: 10 * time.Second,
		BufferSize:   16,
		IgnoreDirs:   []string{".git", ".ftsync"},
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = defaults.Debounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaults.BufferSize
	}
	if o.IgnoreDirs == nil {
		o.IgnoreDirs = defaults.IgnoreDirs
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Watcher watches a root recursively and emits debounced batches.
type Watcher struct {
	opts      Options
	logger    *slog.Logger
	ignore    map[string]struct{}
	fsWatcher *fsnotify.Watcher // nil in polling mode
	debouncer *Debouncer
	batches   chan []Event
	errors    chan error
	stopCh    chan struct{}
	root      string

	mu      sync.RWMutex
	stopped bool
	dropped atomic.Uint64
}

// New creates a watcher. It falls back to polling if fsnotify cannot start.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()

	w := &Watcher{
		opts:      opts,
		logger:    opts.Logger,
		ignore:    make(map[string]struct{}, len(opts.IgnoreDirs)),
		debouncer: NewDebouncer(opts.Debounce, opts.Logger),
		batches:   make(chan []Event, opts.BufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
	for _, dir := range opts.IgnoreDirs {
		w.ignore[dir] = struct{}{}
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			w.logger.Warn("fsnotify_unavailable",
				slog.String("error", err.Error()),
				slog.Duration("poll_interval", opts.PollInterval))
		} else {
			w.fsWatcher = fsw
		}
	}
	return w, nil
}

// Mode returns "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}

// Run watches root until ctx is cancelled or Stop is called, then returns nil.
// It returns an error only if watching cannot start.
func (w *Watcher) Run(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return fmt.Errorf("watch %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", absRoot)
	}

	w.mu.Lock()
	w.root = absRoot
	w.mu.Unlock()

	go w.forward(ctx)
	defer func() { _ = w.Stop() }()

	if w.fsWatcher != nil {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

func (w *Watcher) runFsnotify(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	w.logger.Debug("watch_started", slog.String("root", w.root), slog.String("mode", w.Mode()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotify(ev)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) error {
	p := newPoller(w.root, w.ignored)
	if err := p.baseline(); err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}
	w.logger.Debug("watch_started", slog.String("root", w.root), slog.String("mode", w.Mode()))

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			events, err := p.diff()
			if err != nil {
				w.emitError(err)
				continue
			}
			for _, ev := range events {
				w.debouncer.Add(ev)
			}
		}
	}
}

// handleFsnotify converts and filters one fsnotify event.
func (w *Watcher) handleFsnotify(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}
	if w.ignored(rel) {
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir {
			// Files may already exist in a directory created with its contents.
			if err := w.addRecursive(ev.Name); err != nil {
				w.emitError(err)
			}
		}
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// chmod
		return
	}

	w.debouncer.Add(Event{Path: rel, Op: op, IsDir: isDir, Time: time.Now()})
}

// addRecursive adds dir and all its non-ignored subdirectories.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// vanished or unreadable; the next pass reports it
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.root, p)
		if err != nil {
			return nil
		}
		if rel != "." && w.ignored(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(p)
	})
}

// ignored reports whether rel lies in an ignored directory.
func (w *Watcher) ignored(rel string) bool {
	if rel == "." || rel == "" {
		return true
	}
	for _, part := range strings.Split(rel, "/") {
		if _, ok := w.ignore[part]; ok {
			return true
		}
	}
	return false
}

// forward moves debounced batches to the consumer.
func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(batch) > 0 {
				w.emitBatch(batch)
			}
		}
	}
}

func (w *Watcher) emitBatch(batch []Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.batches <- batch:
	default:
		// A pending batch already triggers a pass that will see these changes.
		count := w.dropped.Add(1)
		w.logger.Debug("watch_batch_coalesced",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_coalesced", count))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.errors <- err:
	default:
		w.logger.Warn("watch_error_dropped", slog.String("error", err.Error()))
	}
}

// Batches returns the channel of debounced event batches.
// It is closed when the watcher stops.
func (w *Watcher) Batches() <-chan []Event {
	return w.batches
}

// Errors returns non-fatal watcher errors. It is closed when the watcher stops.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Dropped returns the number of batches merged into an already pending one.
func (w *Watcher) Dropped() uint64 {
	return w.dropped.Load()
}

// Stop stops the watcher and releases resources. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	w.debouncer.Stop()
	var err error
	if w.fsWatcher != nil {
		err = w.fsWatcher.Close()
	}
	close(w.batches)
	close(w.errors)
	return err
}
