// Package scanner enumerates the files of a synced root directory.
//
// Enumeration is synchronous and sequential: Walk invokes a callback for each
// regular file that passes the exclusion rules and the inclusion predicate.
// Directories that cannot be read abort the walk, because a partial listing
// would make the reconciler's deletion sweep remove records of files that
// still exist.
package scanner

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

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/ftsync/internal/gitignore"
)

// gitignoreCacheSize is the maximum number of gitignore matchers to cache.
const gitignoreCacheSize = 1000

// DataDirName is the default name of the store directory inside a root.
// It is always excluded from enumeration.
const DataDirName = ".ftsync"

// FileInfo describes one enumerated file.
type FileInfo struct {
	Path    string    // slash-separated, relative to the root
	AbsPath string    // absolute path on disk
	Size    int64     // size in bytes
	ModTime time.Time // last modification time, full precision
	// Err is set when the file was listed but could not be stat'ed.
	// Size and ModTime are zero in that case.
	Err error
}

// Options configures a Scanner.
type Options struct {
	// Include is the inclusion predicate (nil = every file).
	Include Predicate

	// ExcludePatterns are extra directory and file patterns to skip.
	ExcludePatterns []string

	// RespectGitignore skips paths ignored by .gitignore files.
	RespectGitignore bool

	// FollowSymlinks enumerates symlinked files (symlinked directories are
	// never descended into).
	FollowSymlinks bool

	// AllowSensitive disables the built-in sensitive file exclusions.
	AllowSensitive bool

	// Logger for scan events (default: slog.Default()).
	Logger *slog.Logger
}

// WalkError is an enumeration failure. The walk stops at the first one.
type WalkError struct {
	Path string
	Err  error
}

func (e *WalkError) Error() string {
	return fmt.Sprintf("enumerate %s: %v", e.Path, e.Err)
}

func (e *WalkError) Unwrap() error { return e.Err }

// Scanner enumerates files under a root.
type Scanner struct {
	opts   Options
	logger *slog.Logger

	// gitignoreCache caches parsed matchers by absolute directory.
	// A nil value records a directory without a .gitignore.
	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
}

// New creates a Scanner.
func New(opts Options) (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitignore cache: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scanner{opts: opts, logger: logger, gitignoreCache: cache}, nil
}

// Matches reports whether relPath satisfies the inclusion predicate.
// The deletion sweep only considers records for which this holds.
func (s *Scanner) Matches(relPath string) bool {
	if s.opts.Include == nil {
		return true
	}
	return s.opts.Include(relPath)
}

// Walk enumerates root and calls fn for each matching file, in lexical order.
//
// An error returned by fn stops the walk and is returned unchanged.
// Enumeration failures are returned as *WalkError. Entries that disappear
// during the walk are skipped.
func (s *Scanner) Walk(ctx context.Context, root string, fn func(*FileInfo) error) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return &WalkError{Path: root, Err: err}
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return &WalkError{Path: absRoot, Err: err}
	}
	if !info.IsDir() {
		return &WalkError{Path: absRoot, Err: fmt.Errorf("not a directory")}
	}

	// .gitignore files may have changed since the last walk.
	s.gitignoreCache.Purge()

	return filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			if p != absRoot && errors.Is(walkErr, fs.ErrNotExist) {
				s.logger.Debug("scan_entry_vanished", slog.String("path", p))
				return nil
			}
			return &WalkError{Path: p, Err: walkErr}
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return &WalkError{Path: p, Err: err}
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if s.excludeDir(absRoot, rel) {
				return filepath.SkipDir
			}
			return nil
		}

		isLink := d.Type()&fs.ModeSymlink != 0
		if isLink && !s.opts.FollowSymlinks {
			return nil
		}
		if !isLink && !d.Type().IsRegular() {
			return nil
		}
		if s.excludeFile(absRoot, rel) || !s.Matches(rel) {
			return nil
		}

		fi := &FileInfo{Path: rel, AbsPath: p}
		var stat fs.FileInfo
		if isLink {
			stat, err = os.Stat(p)
		} else {
			stat, err = d.Info()
		}
		switch {
		case errors.Is(err, fs.ErrNotExist):
			s.logger.Debug("scan_entry_vanished", slog.String("path", rel))
			return nil
		case err != nil:
			fi.Err = err
		case !stat.Mode().IsRegular():
			// symlink to a directory or device
			return nil
		default:
			fi.Size = stat.Size()
			fi.ModTime = stat.ModTime()
		}

		return fn(fi)
	})
}

// excludeDir checks built-in, configured and gitignore directory exclusions.
func (s *Scanner) excludeDir(absRoot, rel string) bool {
	for _, pattern := range defaultExcludeDirs {
		if matchDirPattern(rel, pattern) {
			return true
		}
	}
	for _, pattern := range s.opts.ExcludePatterns {
		if matchDirPattern(rel, pattern) {
			return true
		}
	}
	return s.opts.RespectGitignore && s.isGitignored(absRoot, rel, true)
}

// excludeFile checks sensitive, configured and gitignore file exclusions.
func (s *Scanner) excludeFile(absRoot, rel string) bool {
	baseName := path.Base(rel)

	if !s.opts.AllowSensitive {
		for _, pattern := range sensitiveFilePatterns {
			if matchFilePattern(baseName, rel, pattern) {
				return true
			}
		}
	}
	for _, pattern := range s.opts.ExcludePatterns {
		if matchFilePattern(baseName, rel, pattern) {
			return true
		}
	}
	return s.opts.RespectGitignore && s.isGitignored(absRoot, rel, false)
}

// isGitignored evaluates the .gitignore files of the root and of every
// directory between it and rel.
func (s *Scanner) isGitignored(absRoot, rel string, isDir bool) bool {
	stack := gitignore.Stack{s.matcherFor(absRoot, "")}

	dir := path.Dir(rel)
	if dir != "." {
		parts := strings.Split(dir, "/")
		for i := range parts {
			base := strings.Join(parts[:i+1], "/")
			stack = append(stack, s.matcherFor(filepath.Join(absRoot, filepath.FromSlash(base)), base))
		}
	}
	return stack.Match(rel, isDir)
}

// matcherFor returns the cached matcher for dir, parsing it on first use.
func (s *Scanner) matcherFor(dir, base string) *gitignore.Matcher {
	if m, ok := s.gitignoreCache.Get(dir); ok {
		return m
	}

	m, err := gitignore.ParseFile(filepath.Join(dir, ".gitignore"), base)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("gitignore_unreadable",
				slog.String("dir", dir),
				slog.String("error", err.Error()))
		}
		m = nil
	}
	s.gitignoreCache.Add(dir, m)
	return m
}

// Default directories to exclude.
var defaultExcludeDirs = []string{
	"**/" + DataDirName + "/**",
	"**/.git/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/.aws/**",
	"**/.gcp/**",
	"**/.azure/**",
	"**/.ssh/**",
}

// Sensitive file patterns that are never indexed unless allowed.
var sensitiveFilePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
}
