package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/feichai0017/document-ingest/config"
	"github.com/feichai0017/document-ingest/pkg/logger"
	"github.com/feichai0017/document-ingest/pkg/storage/minio"
	"github.com/feichai0017/document-ingest/pkg/storage/s3"
)

// StorageType selects the object store backend.
type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// Storage is a read-only object store. Callers close the returned reader.
type Storage interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// NewStorage builds the backend named by storageType from its environment
// configuration.
func NewStorage(ctx context.Context, storageType StorageType, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, config.GetS3Config(), log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, config.GetMinioConfig(), log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %q", storageType)
	}
}
