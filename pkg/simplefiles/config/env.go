package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// envConfig is the environment surface read by cleanenv. Variables that are
// not set leave the current value in place.
type envConfig struct {
	Port        string `env:"PORT"`
	Environment string `env:"ENVIRONMENT"`
	LogLevel    string `env:"LOG_LEVEL"`

	DatabaseURL   string `env:"DATABASE_URL"`
	DBSchema      string `env:"DB_SCHEMA"`
	DBAutoMigrate bool   `env:"DB_AUTO_MIGRATE"`
	DynamoCreate  bool   `env:"DYNAMODB_CREATE_TABLE"`

	StorageURL      string `env:"STORAGE_URL"`
	S3BucketName    string `env:"AWS_S3_BUCKET_NAME"`
	AWSRegion       string `env:"AWS_REGION"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	EndpointURL     string `env:"AWS_ENDPOINT_URL"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
}

// WithEnv applies environment variable overrides.
//
// Server:
//
//	PORT, ENVIRONMENT, LOG_LEVEL, SHUTDOWN_TIMEOUT
//
// Metadata store (DATABASE_URL):
//
//	"memory" or empty           in-memory store (default)
//	"postgres://..."            Postgres; DB_SCHEMA, DB_AUTO_MIGRATE
//	"dynamodb://table"          DynamoDB; ?endpoint=, ?downloads_table=, DYNAMODB_CREATE_TABLE
//
// Object store (STORAGE_URL):
//
//	"memory://"                 in-memory store (default)
//	"file:///path/to/data"      filesystem store
//	"s3://bucket"               S3; ?region=, ?endpoint=, ?path_style=true, ?create_bucket=true
//
// AWS_S3_BUCKET_NAME selects S3 when STORAGE_URL is unset. AWS_REGION,
// AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_ENDPOINT_URL apply to
// both AWS stores.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		env := envConfig{
			Port:            c.Port,
			Environment:     c.Environment,
			LogLevel:        c.LogLevel,
			DBSchema:        c.DBSchema,
			DBAutoMigrate:   c.DBAutoMigrate,
			DynamoCreate:    c.Dynamo.CreateTable,
			AWSRegion:       c.S3.Region,
			ShutdownTimeout: c.ShutdownTimeout,
		}
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}

		c.Port = env.Port
		c.Environment = env.Environment
		c.LogLevel = env.LogLevel
		c.DBSchema = env.DBSchema
		c.DBAutoMigrate = env.DBAutoMigrate
		c.ShutdownTimeout = env.ShutdownTimeout

		if err := applyDatabaseEnv(env, c); err != nil {
			return err
		}
		return applyStorageEnv(env, c)
	}
}

// applyDatabaseEnv applies database configuration from environment
func applyDatabaseEnv(env envConfig, c *ServerConfig) error {
	dbURL := strings.TrimSpace(env.DatabaseURL)
	if dbURL == "" || dbURL == "memory" || dbURL == "memory://" {
		if dbURL != "" {
			c.DatabaseType = "memory"
			c.DatabaseURL = ""
		}
		return nil
	}

	u, err := url.Parse(dbURL)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_URL: %w", err)
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
	case "dynamodb":
		table := u.Host + strings.TrimSuffix(u.Path, "/")
		if table == "" {
			return fmt.Errorf("DynamoDB table name cannot be empty in DATABASE_URL")
		}
		q := u.Query()
		c.DatabaseType = "dynamodb"
		c.DatabaseURL = ""
		c.Dynamo = DynamoConfig{
			Table:          table,
			DownloadsTable: q.Get("downloads_table"),
			Endpoint:       firstNonEmpty(q.Get("endpoint"), env.EndpointURL),
			CreateTable:    env.DynamoCreate,
		}
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgres://...' or 'dynamodb://table')", redact(u))
	}
	return nil
}

// applyStorageEnv applies storage configuration from environment
func applyStorageEnv(env envConfig, c *ServerConfig) error {
	storageURL := strings.TrimSpace(env.StorageURL)
	if storageURL == "" && env.S3BucketName != "" {
		storageURL = "s3://" + env.S3BucketName
	}

	// AWS settings apply even when S3 was selected programmatically
	c.S3.Region = firstNonEmpty(env.AWSRegion, c.S3.Region)
	c.S3.AccessKeyID = firstNonEmpty(env.AccessKeyID, c.S3.AccessKeyID)
	c.S3.SecretAccessKey = firstNonEmpty(env.SecretAccessKey, c.S3.SecretAccessKey)

	if storageURL == "" {
		return nil
	}
	if storageURL == "memory" || storageURL == "memory://" {
		c.StorageType = "memory"
		return nil
	}

	u, err := url.Parse(storageURL)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}

	switch u.Scheme {
	case "file":
		path := u.Host + u.Path
		if path == "" {
			return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		c.StorageType = "fs"
		c.FSBaseDir = path
	case "s3":
		if u.Host == "" {
			return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
		}
		q := u.Query()
		pathStyle, err := parseBoolParam(q, "path_style")
		if err != nil {
			return err
		}
		createBucket, err := parseBoolParam(q, "create_bucket")
		if err != nil {
			return err
		}
		c.StorageType = "s3"
		c.S3.Bucket = u.Host
		c.S3.Region = firstNonEmpty(q.Get("region"), c.S3.Region)
		c.S3.Endpoint = firstNonEmpty(q.Get("endpoint"), env.EndpointURL)
		c.S3.UsePathStyle = pathStyle || c.S3.Endpoint != ""
		c.S3.CreateBucket = createBucket
	default:
		return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", storageURL)
	}
	return nil
}

func parseBoolParam(q url.Values, key string) (bool, error) {
	raw := q.Get(key)
	if raw == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid boolean for %s: %w", key, err)
	}
	return parsed, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// redact hides credentials in URLs echoed back in errors
func redact(u *url.URL) string {
	return u.Redacted()
}
