package blob

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a blob doesn't exist.
var ErrNotFound = errors.New("blob not found")

// Info describes a stored blob.
type Info struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Store is durable byte storage for snapshot payloads. Paths are
// slash-separated and relative to the store root.
type Store interface {
	Write(ctx context.Context, path string, data []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Stat(ctx context.Context, path string) (Info, error)
}
