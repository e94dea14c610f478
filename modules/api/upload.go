package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// uploadURLTTL bounds how long a presigned PUT URL stays valid.
const uploadURLTTL = time.Minute

// ErrUploadsNotConfigured is returned when no object storage bucket is
// configured.
var ErrUploadsNotConfigured = errors.New("object storage not configured")

// UploadURLIssuer issues presigned upload URLs for client file uploads.
type UploadURLIssuer interface {
	// IssueUploadURL returns a presigned PUT URL for a new object of the
	// given content type, plus the object's eventual public URL.
	IssueUploadURL(ctx context.Context, contentType string) (presignedURL, fileURL string, err error)
}

// S3Presigner implements UploadURLIssuer against an S3 bucket.
type S3Presigner struct {
	presign *s3.PresignClient
	bucket  string
}

// NewS3Presigner builds a presigner from the ambient AWS configuration.
// Returns ErrUploadsNotConfigured when AWS_BUCKET_NAME is not set.
func NewS3Presigner(ctx context.Context) (*S3Presigner, error) {
	bucket := os.Getenv("AWS_BUCKET_NAME")
	if bucket == "" {
		return nil, ErrUploadsNotConfigured
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)

	return &S3Presigner{
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
	}, nil
}

// IssueUploadURL presigns a PUT to a random object key.
func (p *S3Presigner) IssueUploadURL(ctx context.Context, contentType string) (string, string, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}

	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate object key: %w", err)
	}
	key := hex.EncodeToString(raw)

	req, err := p.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = uploadURLTTL
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to presign upload: %w", err)
	}

	// The public URL is the presigned URL without its query string.
	fileURL, _, _ := strings.Cut(req.URL, "?")
	return req.URL, fileURL, nil
}
