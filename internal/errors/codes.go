// Package errors provides structured error handling for ftsync.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage and file system errors
//   - 3XX: Concurrency errors
//   - 4XX: Validation errors
//   - 5XX: Reconciliation and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates storage and file system errors.
	CategoryIO Category = "IO"
	// CategoryConcurrency indicates contention with another process.
	CategoryConcurrency Category = "CONCURRENCY"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates reconciliation and unexpected errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage and file system errors (200-299)
	ErrCodeRootNotFound      = "ERR_201_ROOT_NOT_FOUND"
	ErrCodePermission        = "ERR_202_PERMISSION"
	ErrCodeStoreOpen         = "ERR_203_STORE_OPEN"
	ErrCodeCorruptStore      = "ERR_204_CORRUPT_STORE"
	ErrCodeTokenizerMismatch = "ERR_205_TOKENIZER_MISMATCH"

	// Concurrency errors (300-399)
	ErrCodeLocked = "ERR_301_LOCKED"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_402_QUERY_EMPTY"

	// Reconciliation and internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodePassPartial  = "ERR_502_PASS_PARTIAL"
	ErrCodePassAborted  = "ERR_503_PASS_ABORTED"
	ErrCodeSearchFailed = "ERR_504_SEARCH_FAILED"
	ErrCodeInconsistent = "ERR_505_INCONSISTENT"
	ErrCodeCanceled     = "ERR_506_CANCELED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "101" from "ERR_101_CONFIG_NOT_FOUND"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryConcurrency
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptStore, ErrCodeTokenizerMismatch:
		return SeverityFatal
	case ErrCodePassPartial, ErrCodeInconsistent:
		return SeverityWarning
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeLocked, ErrCodePassPartial:
		return true
	default:
		return false
	}
}
