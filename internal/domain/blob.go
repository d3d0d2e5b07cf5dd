package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver moves settled contracts to cold storage. ArchiveSettled exports
// the contracts closed in the 24h before the cutoff and returns how many it
// wrote.
type Archiver interface {
	ArchiveSettled(ctx context.Context, before time.Time) (int64, error)
}
