package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithPostgres selects the Postgres metadata store
func WithPostgres(url, schema string) Option {
	return func(c *ServerConfig) error {
		if url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = "postgres"
		c.DatabaseURL = url
		if schema != "" {
			c.DBSchema = schema
		}
		return nil
	}
}

// WithDynamoDB selects the DynamoDB metadata store
func WithDynamoDB(table string, createTable bool) Option {
	return func(c *ServerConfig) error {
		if table == "" {
			return fmt.Errorf("dynamodb table cannot be empty")
		}
		c.DatabaseType = "dynamodb"
		c.Dynamo.Table = table
		c.Dynamo.CreateTable = createTable
		return nil
	}
}

// WithMemoryStores selects the in-memory metadata and object stores
func WithMemoryStores() Option {
	return func(c *ServerConfig) error {
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
		c.StorageType = "memory"
		return nil
	}
}

// WithFilesystemStorage selects the filesystem object store
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.StorageType = "fs"
		c.FSBaseDir = baseDir
		return nil
	}
}

// WithS3Storage selects the S3 object store
func WithS3Storage(s3 S3Config) Option {
	return func(c *ServerConfig) error {
		if s3.Bucket == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}
		if s3.Region == "" {
			s3.Region = c.S3.Region
		}
		c.StorageType = "s3"
		c.S3 = s3
		return nil
	}
}

// WithShutdownTimeout bounds graceful shutdown
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *ServerConfig) error {
		if d <= 0 {
			return fmt.Errorf("shutdown timeout must be positive")
		}
		c.ShutdownTimeout = d
		return nil
	}
}

// WithEventLogging toggles the logging event sink
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// WithMetrics toggles the Prometheus event sink
func WithMetrics(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableMetrics = enabled
		return nil
	}
}
