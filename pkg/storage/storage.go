// Package storage is the thin adapter over where beat assets live: a local
// media directory or an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

var (
	ErrNotFound   = errors.New("storage: object not found")
	ErrInvalidKey = errors.New("storage: invalid object key")
)

// Object is an open asset stream. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// Store reads and writes catalog assets by key.
type Store interface {
	Open(ctx context.Context, key string) (*Object, error)
	Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
	Name() string
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig, logg *logger.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case config.StorageDriverLocal, "":
		return NewLocal(cfg.LocalRoot)
	case config.StorageDriverS3:
		return NewS3(ctx, cfg, logg)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// CleanKey normalizes a storage key and rejects keys escaping the store root.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if trimmed == "" {
		return "", ErrInvalidKey
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." {
			return "", ErrInvalidKey
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+trimmed), "/")
	if cleaned == "" || cleaned == "." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
