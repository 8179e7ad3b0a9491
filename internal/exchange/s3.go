package exchange

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dawncrm/internal/config"
	"dawncrm/internal/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrBackupNotConfigured is returned when no bucket is set.
var ErrBackupNotConfigured = errors.New("backup bucket is not configured")

// putObjectAPI is the part of the S3 client the uploader needs.
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

// S3Uploader stores export files in an S3-compatible bucket.
type S3Uploader struct {
	client putObjectAPI
	bucket string
	prefix string
}

// NewS3Uploader builds an uploader from the backup config. Static keys are
// used when present; otherwise the default AWS credential chain applies.
// A custom endpoint switches to path-style addressing for MinIO and friends.
func NewS3Uploader(ctx context.Context, cfg config.BackupConfig) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, ErrBackupNotConfigured
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Uploader(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Uploader(client putObjectAPI, bucket, prefix string) *S3Uploader {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Uploader{client: client, bucket: bucket, prefix: prefix}
}

// ObjectKey names the backup object for an export taken at t.
func (u *S3Uploader) ObjectKey(t time.Time, format string) string {
	if format == "" {
		format = utils.FormatJSON
	}
	return fmt.Sprintf("%sexport-%s.%s", u.prefix, t.UTC().Format("20060102T150405Z"), format)
}

// Upload encodes doc and puts it in the bucket. It returns the object key.
func (u *S3Uploader) Upload(ctx context.Context, doc Document, format string) (string, error) {
	body, err := Encode(doc, format)
	if err != nil {
		return "", err
	}

	key := u.ObjectKey(doc.ExportedAt, format)
	contentType := "application/json"
	if format == utils.FormatYAML || format == "yml" {
		contentType = "application/yaml"
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to bucket %s: %w", key, u.bucket, err)
	}

	utils.Infof("Uploaded backup s3://%s/%s (%d bytes)", u.bucket, key, len(body))
	return key, nil
}
