package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/tendant/simple-files/pkg/simplefiles"
	"github.com/tendant/simple-files/pkg/simplefiles/awsutil"
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// PartSize for multipart uploads in bytes (default: manager.DefaultUploadPartSize)
	PartSize int64

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create bucket if it doesn't exist
}

// API is the subset of the S3 client used by the backend
type API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Backend is an S3-compatible implementation of the simplefiles.BlobStore interface
type Backend struct {
	client   API
	uploader *manager.Uploader
	bucket   string
	config   Config
}

// New creates a new S3-compatible storage backend
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket name is required", simplefiles.ErrConfiguration)
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	awsCfg, err := awsutil.LoadConfig(ctx, awsutil.Credentials{
		Region:          config.Region,
		AccessKeyID:     config.AccessKeyID,
		SecretAccessKey: config.SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", simplefiles.ErrConfiguration, err)
	}

	var s3Options []func(*s3.Options)

	// Custom endpoint for S3-compatible services (MinIO, etc.)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	backend := NewWithClient(s3.NewFromConfig(awsCfg, s3Options...), config)

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(ctx); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

// NewWithClient wraps an existing client; config.Bucket must be set
func NewWithClient(client API, config Config) *Backend {
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if config.PartSize > 0 {
			u.PartSize = config.PartSize
		}
	})
	return &Backend{
		client:   client,
		uploader: uploader,
		bucket:   config.Bucket,
		config:   config,
	}
}

// createBucketIfNotExists creates the bucket if it doesn't exist
func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		return nil
	}

	// Handle multiple error types for MinIO compatibility
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) &&
		!strings.Contains(err.Error(), "NoSuchBucket") {
		return b.classify("head_bucket", b.bucket, err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	}
	if b.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	_, err = b.client.CreateBucket(ctx, createInput)
	if err != nil {
		switch awsutil.ErrorCode(err) {
		case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
			return nil
		}
		return b.classify("create_bucket", b.bucket, err)
	}

	return nil
}

// Upload streams content to S3. The uploader buffers at most one part at a
// time, so unknown-length streams are supported.
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params simplefiles.UploadParams) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(params.ObjectKey),
		Body:        reader,
		ContentType: aws.String(simplefiles.NormalizeContentType(params.MimeType)),
	}

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return b.classify("upload", params.ObjectKey, err)
	}
	return nil
}

// Download opens the object body. The body is bound to ctx, so cancelling
// the request releases the connection.
func (b *Backend) Download(ctx context.Context, objectKey string) (*simplefiles.Blob, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, b.classify("download", objectKey, err)
	}

	blob := &simplefiles.Blob{
		Body:        result.Body,
		ContentType: simplefiles.DefaultContentType,
		Size:        -1,
	}
	if result.ContentType != nil && *result.ContentType != "" {
		blob.ContentType = *result.ContentType
	}
	if result.ContentLength != nil {
		blob.Size = *result.ContentLength
	}
	return blob, nil
}

// Exists issues a HeadObject
func (b *Backend) Exists(ctx context.Context, objectKey string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	})
	if err == nil {
		return true, nil
	}
	classified := b.classify("head", objectKey, err)
	if errors.Is(classified, simplefiles.ErrNotFound) {
		return false, nil
	}
	return false, classified
}

// Delete deletes content from S3. S3 reports success for missing keys, so
// callers that need NotFound must check Exists first.
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return b.classify("delete", objectKey, err)
	}
	return nil
}

// classify maps an SDK error onto the simplefiles error kinds
func (b *Backend) classify(op, key string, err error) error {
	return simplefiles.NewStorageError("s3", op, key, classifyKind(err), err)
}

func classifyKind(err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return simplefiles.ErrObjectNotFound
	}

	switch awsutil.ErrorCode(err) {
	case "NoSuchKey", "NotFound":
		return simplefiles.ErrObjectNotFound
	case "NoSuchBucket", "InvalidBucketName", "PermanentRedirect":
		return simplefiles.ErrConfiguration
	}
	if awsutil.IsCredentialsError(err) {
		return simplefiles.ErrConfiguration
	}
	return simplefiles.ErrTransient
}
