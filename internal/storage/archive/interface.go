// Package archive stores dataset objects and saved run results under
// slash-separated keys, on local disk or in an S3-compatible bucket.
package archive

import (
	"context"
	"fmt"

	"github.com/newthinker/rankfolio/internal/core"
)

// Storage is a flat key/value object store.
type Storage interface {
	// Write stores data under key, replacing any previous object
	Write(ctx context.Context, key string, data []byte) error

	// Read returns the object under key. A missing object yields an error
	// matching core.ErrNoData.
	Read(ctx context.Context, key string) ([]byte, error)

	// List returns every key under prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether an object is stored under key
	Exists(ctx context.Context, key string) (bool, error)
}

// Config selects and configures a backend.
type Config struct {
	Type string // "localfs" or "s3"
	Path string
	S3   S3Config
}

// Open builds the backend named by cfg.Type.
func Open(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "localfs":
		return NewLocalFS(cfg.Path)
	case "s3":
		return NewS3(cfg.S3)
	}
	return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown storage type %q", cfg.Type))
}

func notFound(key string, cause error) error {
	return core.WrapError(core.ErrNoData, fmt.Errorf("object %q not found: %w", key, cause))
}
