package storage

import (
	"context"
	"fmt"

	"github.com/reena96/picstormai-sub001/pkg/config"
)

// StorageFactory creates storage instances based on configuration
type StorageFactory struct {
	config *config.StorageConfig
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(config *config.StorageConfig) *StorageFactory {
	return &StorageFactory{config: config}
}

// CreateStorage creates a storage instance based on the configured type
func (sf *StorageFactory) CreateStorage(ctx context.Context) (BlobStorage, error) {
	switch sf.config.Type {
	case "local":
		local, err := NewLocalStorage(sf.config.LocalPath)
		if err != nil {
			return nil, err
		}
		return local, nil
	case "s3":
		s3Storage, err := NewS3Storage(ctx, sf.config)
		if err != nil {
			return nil, err
		}
		return s3Storage, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", sf.config.Type)
	}
}
