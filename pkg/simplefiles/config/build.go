package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/simple-files/pkg/simplefiles"
	"github.com/tendant/simple-files/pkg/simplefiles/metrics"
	repodynamo "github.com/tendant/simple-files/pkg/simplefiles/repo/dynamodb"
	"github.com/tendant/simple-files/pkg/simplefiles/repo/memory"
	repopg "github.com/tendant/simple-files/pkg/simplefiles/repo/postgres"
	fsstorage "github.com/tendant/simple-files/pkg/simplefiles/storage/fs"
	memorystorage "github.com/tendant/simple-files/pkg/simplefiles/storage/memory"
	s3storage "github.com/tendant/simple-files/pkg/simplefiles/storage/s3"
)

// BuildService creates a Service from the configuration. The returned close
// func releases connections and must be called once the service is unused.
// reg may be nil when EnableMetrics is false.
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger, reg prometheus.Registerer) (simplefiles.Service, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	repo, closeRepo, err := c.buildRepository(ctx, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build repository: %w", err)
	}

	store, err := c.buildStorageBackend(ctx)
	if err != nil {
		closeRepo()
		return nil, nil, fmt.Errorf("failed to build storage backend %s: %w", c.StorageType, err)
	}

	var sinks simplefiles.MultiEventSink
	if c.EnableEventLogging {
		sinks = append(sinks, simplefiles.NewLoggingEventSink(logger))
	}
	if c.EnableMetrics && reg != nil {
		sinks = append(sinks, metrics.NewEventSink(reg))
	}

	options := []simplefiles.Option{
		simplefiles.WithMetadataStore(repo),
		simplefiles.WithBlobStore(store),
		simplefiles.WithLogger(logger),
	}
	if len(sinks) > 0 {
		options = append(options, simplefiles.WithEventSink(sinks))
	}

	svc, err := simplefiles.New(options...)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}

	logger.Info("File service configured",
		"database_type", c.DatabaseType,
		"storage_type", c.StorageType,
	)
	return svc, closeRepo, nil
}

// buildRepository creates the metadata store based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context, logger *slog.Logger) (simplefiles.MetadataStore, func(), error) {
	noop := func() {}

	switch c.DatabaseType {
	case "memory":
		return memory.New(), noop, nil
	case "postgres":
		pool, err := repopg.Connect(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, nil, err
		}
		if c.DBAutoMigrate {
			if err := repopg.Migrate(ctx, pool, c.DatabaseURL, c.DBSchema, logger); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return repopg.NewWithPool(pool), pool.Close, nil
	case "dynamodb":
		repo, err := repodynamo.New(ctx, repodynamo.Config{
			Region:                c.S3.Region,
			Table:                 c.Dynamo.Table,
			DownloadsTable:        c.Dynamo.DownloadsTable,
			AccessKeyID:           c.S3.AccessKeyID,
			SecretAccessKey:       c.S3.SecretAccessKey,
			Endpoint:              c.Dynamo.Endpoint,
			CreateTableIfNotExist: c.Dynamo.CreateTable,
		})
		if err != nil {
			return nil, nil, err
		}
		return repo, noop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// buildStorageBackend creates the object store based on the configuration
func (c *ServerConfig) buildStorageBackend(ctx context.Context) (simplefiles.BlobStore, error) {
	switch c.StorageType {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: c.FSBaseDir})
	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.S3.Bucket,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			CreateBucketIfNotExist: c.S3.CreateBucket,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", c.StorageType)
	}
}
