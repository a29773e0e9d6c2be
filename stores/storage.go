package stores

import (
	"compass/config"
	"compass/core"
	"compass/stores/aws"
	"compass/stores/filesystem"
	"compass/stores/memory"
	"compass/stores/mongo"
	"compass/stores/sqlite"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Store is a union interface that includes all store types.
type Store interface {
	core.ProjectStore
	core.CanvasStore
	Close() error
}

// GetStore opens the backend named by cfg.Type. Unknown or empty types fall
// back to process memory.
func GetStore(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	var (
		store Store
		err   error
	)

	storageField := logrus.Fields{
		"storageType": cfg.Type,
	}

	switch cfg.Type {
	case "filesystem":
		storageField["basePath"] = cfg.LocalPath
		store, err = filesystem.NewStore(cfg.LocalPath)
	case "sqlite":
		storageField["dataSourceName"] = cfg.DataSourceName
		store, err = sqlite.NewStore(cfg.DataSourceName)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET_NAME must be set for s3 storage type")
		}
		storageField["bucketName"] = cfg.S3Bucket
		store, err = aws.NewStore(ctx, cfg.S3Bucket)
	case "mongo":
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI must be set for mongo storage type")
		}
		storageField["database"] = cfg.MongoDatabase
		store, err = mongo.NewStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Type, err)
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}
