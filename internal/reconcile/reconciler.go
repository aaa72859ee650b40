// Package reconcile keeps a metadata store and a full-text index in sync with
// the files under a root directory.
//
// A pass walks the root once, compares each matching file's modification time
// (whole seconds) with its FileRecord and applies the minimal set of index and
// record mutations. Records of files that no longer exist are swept after
// the walk. Passes are sequential and must not overlap for one store pair;
// hosts serialise them (see internal/lock).
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/ftsync/internal/scanner"
	"github.com/Aman-CERP/ftsync/internal/store"
)

// DefaultMaxFileSize is the largest file read when Options.MaxFileSize is 0.
const DefaultMaxFileSize int64 = 32 << 20

// Transition is what a pass did to one path.
type Transition string

const (
	TransitionAdded     Transition = "added"
	TransitionUpdated   Transition = "updated"
	TransitionRecovered Transition = "recovered"
	TransitionDeleted   Transition = "deleted"
	TransitionSkipped   Transition = "skipped"
	TransitionFailed    Transition = "failed"
)

// Dependencies are the collaborators of a Reconciler.
type Dependencies struct {
	Metadata store.MetadataStore
	Index    store.FullTextIndex
	Scanner  *scanner.Scanner // enumeration + inclusion predicate
	Logger   *slog.Logger     // optional
}

// Options tunes a Reconciler.
type Options struct {
	// FailFast aborts the pass on the first file that cannot be stat'ed or
	// read. By default such files are skipped and reported in a PassError.
	FailFast bool

	// MaxFileSize skips reading files larger than this many bytes.
	// Skipped files keep their records. 0 means DefaultMaxFileSize.
	MaxFileSize int64

	// DryRun reports what a pass would do without mutating either store.
	DryRun bool
}

// Change records one non-trivial transition.
type Change struct {
	Path       string
	Transition Transition
}

// Result summarises a pass. It is returned even when the pass fails.
type Result struct {
	RunID     string
	Root      string
	DryRun    bool
	Scanned   int // files enumerated
	Added     int
	Updated   int
	Recovered int // records whose missing index entry was created
	Deleted   int
	Unchanged int
	Skipped   int
	Failures  []*FileError
	Changes   []Change
	Duration  time.Duration
}

// Mutations returns the number of paths whose stores were (or, in a dry run,
// would be) changed.
func (r *Result) Mutations() int {
	return r.Added + r.Updated + r.Recovered + r.Deleted
}

func (r *Result) record(p string, t Transition) {
	switch t {
	case TransitionAdded:
		r.Added++
	case TransitionUpdated:
		r.Updated++
	case TransitionRecovered:
		r.Recovered++
	case TransitionDeleted:
		r.Deleted++
	case TransitionSkipped:
		r.Skipped++
	}
	r.Changes = append(r.Changes, Change{Path: p, Transition: t})
}

// FileError is a file that could not be stat'ed or read.
type FileError struct {
	Path string
	Op   string // "stat" or "read"
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// PassError is returned by a pass that completed with per-file failures.
type PassError struct {
	Failures []*FileError
}

func (e *PassError) Error() string {
	if len(e.Failures) == 1 {
		return "reconcile: " + e.Failures[0].Error()
	}
	return fmt.Sprintf("reconcile: %d files failed (first: %v)", len(e.Failures), e.Failures[0])
}

// Unwrap exposes every per-file failure to errors.Is and errors.As.
func (e *PassError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Reconciler applies passes against one store pair.
type Reconciler struct {
	metadata store.MetadataStore
	index    store.FullTextIndex
	scanner  *scanner.Scanner
	logger   *slog.Logger
	opts     Options

	readFile func(name string) ([]byte, error)
}

// New creates a Reconciler.
func New(deps Dependencies, opts Options) (*Reconciler, error) {
	switch {
	case deps.Metadata == nil:
		return nil, errors.New("reconcile: metadata store is required")
	case deps.Index == nil:
		return nil, errors.New("reconcile: full-text index is required")
	case deps.Scanner == nil:
		return nil, errors.New("reconcile: scanner is required")
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		metadata: deps.Metadata,
		index:    deps.Index,
		scanner:  deps.Scanner,
		logger:   logger,
		opts:     opts,
		readFile: os.ReadFile,
	}, nil
}

// pass is the state of one Reconcile call.
type pass struct {
	root     string
	res      *Result
	observed map[string]struct{}
}

// Reconcile synchronises the stores with the files under root.
//
// Enumeration failures, store failures and cancellation abort the pass before
// the deletion sweep. Mutations already applied are kept; running the pass
// again is always safe. Per-file read failures are collected into a
// *PassError unless Options.FailFast is set.
func (r *Reconciler) Reconcile(ctx context.Context, root string) (*Result, error) {
	start := time.Now()
	p := &pass{
		root:     root,
		res:      &Result{RunID: uuid.NewString(), Root: root, DryRun: r.opts.DryRun},
		observed: make(map[string]struct{}),
	}
	logger := r.logger.With(slog.String("run_id", p.res.RunID))
	logger.Debug("reconcile_started", slog.String("root", root), slog.Bool("dry_run", r.opts.DryRun))

	err := r.scanner.Walk(ctx, root, func(fi *scanner.FileInfo) error {
		p.res.Scanned++
		return r.syncFile(ctx, logger, p, fi)
	})
	if err == nil {
		err = r.sweep(ctx, logger, p)
	}
	p.res.Duration = time.Since(start)

	if err != nil {
		logger.Warn("reconcile_aborted",
			slog.String("root", root),
			slog.String("error", err.Error()),
			slog.Duration("duration", p.res.Duration))
		return p.res, err
	}

	logger.Info("reconcile_complete",
		slog.String("root", root),
		slog.Int("scanned", p.res.Scanned),
		slog.Int("added", p.res.Added),
		slog.Int("updated", p.res.Updated),
		slog.Int("recovered", p.res.Recovered),
		slog.Int("deleted", p.res.Deleted),
		slog.Int("unchanged", p.res.Unchanged),
		slog.Int("skipped", p.res.Skipped),
		slog.Int("failed", len(p.res.Failures)),
		slog.Duration("duration", p.res.Duration))

	if len(p.res.Failures) > 0 {
		return p.res, &PassError{Failures: p.res.Failures}
	}
	return p.res, nil
}

// syncFile brings one enumerated file's record and entry up to date.
func (r *Reconciler) syncFile(ctx context.Context, logger *slog.Logger, p *pass, fi *scanner.FileInfo) error {
	p.observed[fi.Path] = struct{}{}
	if fi.Err != nil {
		return r.fail(logger, p, &FileError{Path: fi.Path, Op: "stat", Err: fi.Err})
	}

	modified := store.TruncateModTime(fi.ModTime)
	rec, err := r.metadata.FindByPath(ctx, fi.Path)
	if err != nil {
		return storeError("find record", fi.Path, err)
	}

	changed := rec != nil && !rec.LastModified.Equal(modified)
	if rec != nil && !changed && rec.Index.Assigned() {
		p.res.Unchanged++
		return nil
	}

	if fi.Size > r.opts.MaxFileSize {
		logger.Warn("file_too_large",
			slog.String("path", fi.Path),
			slog.Int64("size", fi.Size),
			slog.Int64("max_size", r.opts.MaxFileSize))
		p.res.record(fi.Path, TransitionSkipped)
		return nil
	}

	transition := TransitionAdded
	switch {
	case rec == nil:
	case !rec.Index.Assigned():
		transition = TransitionRecovered
	default:
		transition = TransitionUpdated
	}
	if r.opts.DryRun {
		p.res.record(fi.Path, transition)
		return nil
	}

	body, err := r.readContent(fi.AbsPath)
	if errors.Is(err, fs.ErrNotExist) {
		// Removed after enumeration: leave it to the sweep.
		delete(p.observed, fi.Path)
		logger.Debug("file_vanished", slog.String("path", fi.Path))
		return nil
	}
	if err != nil {
		return r.fail(logger, p, &FileError{Path: fi.Path, Op: "read", Err: err})
	}
	subject := path.Base(fi.Path)

	switch transition {
	case TransitionAdded:
		err = r.add(ctx, fi.Path, modified, subject, body)
	case TransitionRecovered:
		err = r.recover(ctx, fi.Path, subject, body, changed, modified)
	default:
		err = r.update(ctx, logger, rec, modified, subject, body)
	}
	if err != nil {
		return err
	}

	logger.Debug("file_"+string(transition), slog.String("path", fi.Path))
	p.res.record(fi.Path, transition)
	return nil
}

// add indexes a new file and then creates its record.
func (r *Reconciler) add(ctx context.Context, relPath string, modified time.Time, subject, body string) error {
	ref, err := indexContent(ctx, r.index, subject, body)
	if err != nil {
		return storeError("index", relPath, err)
	}
	err = r.metadata.Insert(ctx, &store.FileRecord{Path: relPath, LastModified: modified, Index: ref})
	if err != nil {
		// Do not leave an orphan entry behind.
		id, _ := ref.ID()
		if delErr := r.index.DeleteByID(ctx, id); delErr != nil {
			r.logger.Warn("orphan_entry_cleanup_failed",
				slog.String("path", relPath),
				slog.Int64("index_id", id),
				slog.String("error", delErr.Error()))
		}
		return storeError("insert record", relPath, err)
	}
	return nil
}

// recover indexes a file whose record has no entry yet.
func (r *Reconciler) recover(ctx context.Context, relPath, subject, body string, changed bool, modified time.Time) error {
	ref, err := indexContent(ctx, r.index, subject, body)
	if err != nil {
		return storeError("index", relPath, err)
	}
	if err := r.metadata.UpdateIndexID(ctx, relPath, ref); err != nil {
		return storeError("set index reference", relPath, err)
	}
	if changed {
		if err := r.metadata.UpdateLastModified(ctx, relPath, modified); err != nil {
			return storeError("update modified", relPath, err)
		}
	}
	return nil
}

// update overwrites a changed file's entry in place. A reference to an entry
// that no longer exists is healed by inserting a new one.
func (r *Reconciler) update(ctx context.Context, logger *slog.Logger, rec *store.FileRecord, modified time.Time, subject, body string) error {
	id, _ := rec.Index.ID()
	err := r.index.UpdateByID(ctx, id, subject, body)
	if errors.Is(err, store.ErrEntryNotFound) {
		logger.Warn("dangling_reference",
			slog.String("path", rec.Path),
			slog.Int64("index_id", id))
		ref, err := indexContent(ctx, r.index, subject, body)
		if err != nil {
			return storeError("index", rec.Path, err)
		}
		if err := r.metadata.UpdateIndexID(ctx, rec.Path, ref); err != nil {
			return storeError("set index reference", rec.Path, err)
		}
	} else if err != nil {
		return storeError("update entry", rec.Path, err)
	}

	if err := r.metadata.UpdateLastModified(ctx, rec.Path, modified); err != nil {
		return storeError("update modified", rec.Path, err)
	}
	return nil
}

// sweep removes the records and entries of matching files that no longer
// exist. Records outside the inclusion predicate are left alone, and so are
// records of files the walk excluded (gitignore, exclude patterns, symlinks)
// that are still on disk.
func (r *Reconciler) sweep(ctx context.Context, logger *slog.Logger, p *pass) error {
	records, err := r.metadata.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !r.scanner.Matches(rec.Path) {
			continue
		}
		if _, ok := p.observed[rec.Path]; ok {
			continue
		}
		exists, err := r.exists(p.root, rec.Path)
		if err != nil {
			if ferr := r.fail(logger, p, &FileError{Path: rec.Path, Op: "stat", Err: err}); ferr != nil {
				return ferr
			}
			continue
		}
		if exists {
			logger.Debug("file_excluded_kept", slog.String("path", rec.Path))
			continue
		}

		if !r.opts.DryRun {
			if id, ok := rec.Index.ID(); ok {
				err := r.index.DeleteByID(ctx, id)
				if err != nil && !errors.Is(err, store.ErrEntryNotFound) {
					return storeError("delete entry", rec.Path, err)
				}
			}
			err := r.metadata.DeleteByPath(ctx, rec.Path)
			if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
				return storeError("delete record", rec.Path, err)
			}
			logger.Debug("file_deleted", slog.String("path", rec.Path))
		}
		p.res.record(rec.Path, TransitionDeleted)
	}
	return nil
}

// exists reports whether relPath is still present under root. Symlinks are
// not followed.
func (r *Reconciler) exists(root, relPath string) (bool, error) {
	_, err := os.Lstat(filepath.Join(root, filepath.FromSlash(relPath)))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// fail records a per-file failure. With FailFast it also stops the walk.
func (r *Reconciler) fail(logger *slog.Logger, p *pass, fe *FileError) error {
	logger.Warn("file_failed",
		slog.String("path", fe.Path),
		slog.String("op", fe.Op),
		slog.String("error", fe.Err.Error()))
	p.res.Failures = append(p.res.Failures, fe)
	p.res.Changes = append(p.res.Changes, Change{Path: fe.Path, Transition: TransitionFailed})
	if r.opts.FailFast {
		return fe
	}
	return nil
}

// indexContent inserts one entry and returns a reference to it.
func indexContent(ctx context.Context, idx store.FullTextIndex, subject, body string) (store.IndexRef, error) {
	id, err := idx.Insert(ctx, subject, body)
	if err != nil {
		return store.IndexRef{}, err
	}
	return store.Ref(id), nil
}

// readContent reads a file as text. Invalid UTF-8 is replaced.
func (r *Reconciler) readContent(absPath string) (string, error) {
	data, err := r.readFile(absPath)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}

func storeError(op, relPath string, err error) error {
	return fmt.Errorf("%s %s: %w", op, relPath, err)
}
