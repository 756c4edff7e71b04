package estate

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sentinel errors for common engagement-level conditions.
// These can be checked with errors.Is().
var (
	// ErrInvalidConfig indicates the engagement configuration is invalid
	// or incomplete.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoQueue indicates a review-queue operation was attempted on an
	// engagement opened without a queue client.
	ErrNoQueue = errors.New("no review queue configured")

	// ErrClosed indicates an operation on an engagement after Close.
	ErrClosed = errors.New("engagement is closed")
)

// Error kinds categorize errors by their type.
const (
	// KindNotFound represents errors where a record was not found.
	KindNotFound = "not_found"

	// KindValidation represents errors related to input validation.
	KindValidation = "validation"

	// KindConflict represents identity collisions and illegal status
	// transitions.
	KindConflict = "conflict"

	// KindConfiguration represents errors related to configuration.
	KindConfiguration = "configuration"

	// KindStorage represents snapshot read/write errors.
	KindStorage = "storage"
)

// Error is a structured error that wraps underlying errors with the
// operation that failed and the category of failure.
//
// Error supports unwrapping, so errors.Is() and errors.As() see through it
// to the per-store sentinels.
type Error struct {
	// Op is the operation that failed (e.g., "Engagement.SaveAll").
	Op string

	// Kind categorizes the error (e.g., KindNotFound, KindStorage).
	Kind string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("estate: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("estate: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches either the underlying error or another *Error with the same
// Kind (and Op, when the target specifies one).
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}
	return errors.Is(e.Err, target)
}

// newConfigurationError wraps err as a KindConfiguration Error.
func newConfigurationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindConfiguration, Err: err}
}

// newStorageError wraps err as a KindStorage Error.
func newStorageError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindStorage, Err: err}
}

// CloseWithLog closes the resource and logs any error at warning level.
// Intended for defer statements so cleanup errors are not silently dropped.
// If logger is nil, slog.Default() is used.
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
