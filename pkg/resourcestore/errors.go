package resourcestore

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrNotFound indicates a read against a key that does not exist
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a conditional create against an occupied key
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrUnavailable indicates a backend, service or network failure
	ErrUnavailable = errors.New("storage backend unavailable")

	// ErrMalformed indicates an undecodable payload on a write path
	ErrMalformed = errors.New("malformed resource payload")

	// ErrNoGateway indicates a Store was built without a backend gateway
	ErrNoGateway = errors.New("gateway is required")

	// ErrInvalidPrefix indicates an empty directory prefix or a prefix template
	// that cannot produce injective prefixes
	ErrInvalidPrefix = errors.New("invalid prefix")
)

// StorageError represents an error related to storage operations.
// Kind is one of the sentinel errors above; Err is the underlying cause, if any.
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Kind    error
	Err     error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Kind)
	}
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v: %v", e.Op, e.Key, e.Backend, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NotFound builds a StorageError of kind ErrNotFound.
func NotFound(backend, op, key string) error {
	return &StorageError{Backend: backend, Key: key, Op: op, Kind: ErrNotFound}
}

// Unavailable builds a StorageError of kind ErrUnavailable wrapping cause.
func Unavailable(backend, op, key string, cause error) error {
	return &StorageError{Backend: backend, Key: key, Op: op, Kind: ErrUnavailable, Err: cause}
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
