package config

import (
	"errors"
	"fmt"
	"time"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:               "8080",
		Environment:        "development",
		LogLevel:           "info",
		DatabaseType:       "memory",
		DBSchema:           "files",
		DBAutoMigrate:      true,
		StorageType:        "memory",
		S3:                 S3Config{Region: "us-east-1"},
		ShutdownTimeout:    15 * time.Second,
		EnableEventLogging: true,
		EnableMetrics:      true,
	}
}

// ServerConfig represents server configuration for the simple-files service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing
	LogLevel    string // debug, info, warn, error

	// Metadata store
	DatabaseType  string // "memory", "postgres", "dynamodb"
	DatabaseURL   string
	DBSchema      string // Postgres schema (default: files)
	DBAutoMigrate bool   // Apply embedded migrations at startup
	Dynamo        DynamoConfig

	// Object store
	StorageType string // "memory", "fs", "s3"
	FSBaseDir   string
	S3          S3Config

	ShutdownTimeout time.Duration

	EnableEventLogging bool
	EnableMetrics      bool
}

// S3Config holds S3 object store settings
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	CreateBucket    bool
}

// DynamoConfig holds DynamoDB metadata store settings
type DynamoConfig struct {
	Table          string
	DownloadsTable string
	Endpoint       string
	CreateTable    bool
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	case "dynamodb":
		if c.Dynamo.Table == "" {
			return errors.New("dynamodb table is required when using dynamodb")
		}
	default:
		return fmt.Errorf("database_type must be 'memory', 'postgres' or 'dynamodb', got: %s", c.DatabaseType)
	}

	switch c.StorageType {
	case "memory":
	case "fs":
		if c.FSBaseDir == "" {
			return errors.New("filesystem base directory is required when using fs storage")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3 bucket is required when using s3 storage")
		}
	default:
		return fmt.Errorf("storage_type must be 'memory', 'fs' or 's3', got: %s", c.StorageType)
	}

	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	return nil
}

// IsProduction reports whether the server runs in production mode
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}
