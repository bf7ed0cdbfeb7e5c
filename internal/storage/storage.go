// Package storage abstracts durable placement of finished artifacts. Scratch
// chunk handling is deliberately not part of this interface: merging needs
// random local file access, so raw chunks always live on local disk.
package storage

import (
	"context"
	"io"
)

type Backend interface {
	// Put stores the reader's bytes at key and returns the public URL or
	// path of the stored artifact.
	Put(ctx context.Context, key string, r io.Reader, size int64) (string, error)
	// Exists reports whether a non-empty artifact already sits at key.
	Exists(ctx context.Context, key string) (bool, error)
	// URL returns the public URL or path an artifact at key would have.
	URL(key string) string
	// IsLocal reports whether artifacts stay on the local filesystem.
	IsLocal() bool
}
