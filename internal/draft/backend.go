// Package draft persists in-progress inspection state so a session survives
// reloads and navigation. Values are stored whole as JSON under namespaced
// keys; every write overwrites the previous value.
package draft

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by a Backend when a key holds no value.
var ErrNotFound = errors.New("draft: key not found")

// Backend is a synchronous byte-oriented key-value store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// StorageError wraps a failure of the underlying backend. Callers treat it
// as a warning: the caller's in-memory state stays authoritative.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("draft %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
