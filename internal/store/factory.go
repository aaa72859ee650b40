package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Backend names a full-text index implementation.
type Backend string

const (
	// BackendSQLite uses SQLite FTS5 (default). WAL mode allows concurrent
	// readers from other processes.
	BackendSQLite Backend = "sqlite"

	// BackendBleve uses Bleve v2. Its BoltDB lock makes it single-process.
	BackendBleve Backend = "bleve"
)

// ValidateBackend reports whether backend names a known implementation.
func ValidateBackend(backend string) error {
	switch Backend(backend) {
	case BackendSQLite, BackendBleve, "":
		return nil
	default:
		return fmt.Errorf("unknown index backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// NewFullTextIndex creates a FullTextIndex using the given backend.
// basePath has no extension; ".db" or ".bleve" is appended per backend.
// If basePath is empty, an in-memory index is created.
func NewFullTextIndex(basePath string, backend string, opts IndexOptions) (FullTextIndex, error) {
	switch Backend(backend) {
	case BackendSQLite, "":
		return NewSQLiteFTSIndex(IndexPath(basePath, backend), opts)
	case BackendBleve:
		return NewBleveIndex(IndexPath(basePath, backend), opts)
	default:
		return nil, ValidateBackend(backend)
	}
}

// IndexPath returns the file or directory the backend stores its index in.
func IndexPath(basePath string, backend string) string {
	if basePath == "" {
		return ""
	}
	if Backend(backend) == BackendBleve {
		return basePath + ".bleve"
	}
	return basePath + ".db"
}

// DetectBackend reports which backend an existing index at basePath uses,
// or "" if there is none.
func DetectBackend(basePath string) Backend {
	if info, err := os.Stat(basePath + ".db"); err == nil && !info.IsDir() {
		return BackendSQLite
	}
	if info, err := os.Stat(basePath + ".bleve"); err == nil && info.IsDir() {
		return BackendBleve
	}
	return ""
}

// Paths locates the store pair inside a data directory.
type Paths struct {
	Metadata  string // metadata database file
	IndexBase string // index base path, see IndexPath
	Lock      string // pass lock file
}

// PathsFor returns the conventional store locations under dataDir.
func PathsFor(dataDir string) Paths {
	return Paths{
		Metadata:  filepath.Join(dataDir, "metadata.db"),
		IndexBase: filepath.Join(dataDir, "index"),
		Lock:      filepath.Join(dataDir, ".sync.lock"),
	}
}
