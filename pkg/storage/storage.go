package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/feichai0017/ingestion-wizard/pkg/logger"
	"github.com/feichai0017/ingestion-wizard/pkg/storage/memory"
	"github.com/feichai0017/ingestion-wizard/pkg/storage/minio"
)

// StorageType selects a backend.
type StorageType string

const (
	StorageTypeMinio  StorageType = "minio"
	StorageTypeMemory StorageType = "memory"
)

// Storage persists uploaded originals, crawl text, and processing artifacts.
// Keys are namespaced per session (sessions/<id>/...), so a session reset is
// a prefix delete.
type Storage interface {
	// Store writes the content under key and returns the key.
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	// Get reads the content stored under key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes one object.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object under prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// NewStorage creates a storage backend.
func NewStorage(storageType StorageType, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeMinio:
		return minio.GetClient(log)
	case StorageTypeMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
