package importer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by KV.Get when a key has no value.
var ErrNotFound = errors.New("key not found")

// Run-level failures. The engine never starts row processing once one of
// these is hit, and they are reported distinctly so clients can tell
// "wait" (already running) from "fix your input".
var (
	// ErrAlreadyRunning means another import holds the lock.
	ErrAlreadyRunning = errors.New("import already running")

	// ErrSourceUnavailable means the CSV source could not be read at all.
	ErrSourceUnavailable = errors.New("csv source unavailable")

	// ErrEmptyContent means the source was readable but contained nothing.
	ErrEmptyContent = errors.New("csv content is empty")

	// ErrNoData means the CSV had a header but zero data rows.
	ErrNoData = errors.New("csv contains no data rows")

	// ErrInvalidConfig means validation rejected the import configuration.
	ErrInvalidConfig = errors.New("invalid import configuration")
)

// Row-level failures. These are isolated per row and counted toward the
// error ceiling; they never abort the run on their own.
var (
	// ErrMissingTitle means neither title column held a usable value.
	ErrMissingTitle = errors.New("missing title")
)

// MissingColumnsError reports required columns absent from the CSV header.
// Checked once per run before any row is processed.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("csv header missing required columns: %s", strings.Join(e.Columns, ", "))
}

// ValidationError wraps a failed validation result so the trigger surface
// can return the full error list to the caller.
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid import configuration: %s", strings.Join(e.Result.Errors, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}
