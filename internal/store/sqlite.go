package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQL driver names accepted by the SQLite-backed stores.
const (
	// DriverModernc is the pure Go driver (default).
	DriverModernc = "sqlite"

	// DriverMattn is github.com/mattn/go-sqlite3. It requires CGO, and the
	// FTS5 index additionally requires the sqlite_fts5 build tag.
	DriverMattn = "sqlite3"
)

// SQLiteOptions configures how a SQLite database is opened.
type SQLiteOptions struct {
	// Driver is the database/sql driver name (default: DriverModernc).
	Driver string
}

func (o SQLiteOptions) driver() string {
	if o.Driver == "" {
		return DriverModernc
	}
	return o.Driver
}

// openSQLite opens a SQLite database at path with a single connection and
// WAL journaling. An empty path opens a private in-memory database.
// requiredTable, when set, is checked by the pre-open integrity validation.
func openSQLite(path string, opts SQLiteOptions, requiredTable string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateSQLiteIntegrity(path, opts.driver(), requiredTable); validErr != nil {
			slog.Warn("sqlite_database_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("database corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("sqlite_database_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, recreated empty"))
		}
		dsn = path
	}

	db, err := sql.Open(opts.driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: serialises writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if path != "" {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	return db, nil
}

// validateSQLiteIntegrity checks an existing database file before opening.
// Returns nil when the file does not exist yet.
func validateSQLiteIntegrity(path, driverName, requiredTable string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot stat database: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	if requiredTable == "" {
		return nil
	}
	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = ?`, requiredTable).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("table %q missing", requiredTable)
	}
	return nil
}
