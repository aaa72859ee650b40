package store

import (
	"fmt"

	_ "github.com/mattn/go-sqlite3" // CGO SQLite driver, selected with storage.driver: sqlite3
)

// ValidateDriver reports whether name is a supported SQL driver.
func ValidateDriver(name string) error {
	switch name {
	case "", DriverModernc, DriverMattn:
		return nil
	default:
		return fmt.Errorf("unknown SQL driver: %s (valid options: %s, %s)", name, DriverModernc, DriverMattn)
	}
}
