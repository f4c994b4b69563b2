// Package blob abstracts document storage. Jobs reference documents by
// opaque refs; a ref is a path under the configured backend.
package blob

import "context"

// Store reads and writes document blobs by ref.
type Store interface {
	Download(ctx context.Context, ref string) ([]byte, error)
	Upload(ctx context.Context, ref string, data []byte) error
	Close() error
}
