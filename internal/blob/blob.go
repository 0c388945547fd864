// Package blob abstracts the object store holding raw messages and
// attachment bytes.
package blob

import (
	"context"
	"io"
)

// Store is a flat key/value byte store. Keys are opaque paths like
// "raw/<org>/<message>" assigned by the producer.
type Store interface {
	// Get returns the object bytes. Returns sentinel.ErrNotFound when the
	// key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes the object, overwriting any previous value. Writes are
	// idempotent: redelivered messages re-put the same bytes.
	Put(ctx context.Context, key string, r io.Reader) error

	// Exists reports whether the key holds an object.
	Exists(ctx context.Context, key string) (bool, error)
}
