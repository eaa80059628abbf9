// Package storage persists uploaded files on local disk or in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ChunkSize is the copy buffer used when streaming uploads to their destination.
const ChunkSize = 1 << 20

// ErrExists is returned when the generated key is already taken.
var ErrExists = errors.New("storage key already exists")

// Store writes an upload under key and reports the bytes written.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (int64, error)
	// URL returns the public address of key.
	URL(key string) string
	Name() string
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
