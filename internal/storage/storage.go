package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrReadOnly       = errors.New("object store is read-only")
	ErrTruncated      = errors.New("object body shorter than its recorded size")
)

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	// ContentType defaults to ContentTypeFor(key).
	ContentType string
}

// DatasetReader is what the working table loader needs from a bucket.
type DatasetReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

// DatasetWriter is what the seed tool needs to publish dataset files.
type DatasetWriter interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
}

type ObjectStore interface {
	DatasetReader
	DatasetWriter
}
