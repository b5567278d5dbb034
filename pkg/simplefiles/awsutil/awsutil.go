// Package awsutil holds the AWS SDK setup shared by the S3 object store and
// the DynamoDB metadata store.
package awsutil

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/smithy-go"
)

// Credentials options common to every AWS backend
type Credentials struct {
	Region          string // AWS region (default: us-east-1)
	AccessKeyID     string // Static access key; empty uses the default chain
	SecretAccessKey string
	SessionToken    string
}

// LoadConfig builds an aws.Config from static credentials when both keys
// are set, falling back to the default credential chain otherwise.
func LoadConfig(ctx context.Context, creds Credentials) (aws.Config, error) {
	region := creds.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if creds.AccessKeyID != "" && creds.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID,
			creds.SecretAccessKey,
			creds.SessionToken,
		)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// ErrorCode returns the service error code carried by err, or "".
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsCredentialsError reports whether err comes from credential resolution or
// from the service rejecting the credentials that were sent.
func IsCredentialsError(err error) bool {
	switch ErrorCode(err) {
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken",
		"UnrecognizedClientException", "InvalidSignatureException", "AccessDenied",
		"AccessDeniedException", "MissingAuthenticationToken", "AuthorizationHeaderMalformed":
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "failed to retrieve credentials") ||
		strings.Contains(msg, "no valid providers in chain") ||
		strings.Contains(msg, "anonymous credentials")
}
