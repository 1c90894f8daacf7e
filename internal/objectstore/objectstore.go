// Package objectstore wraps the S3-compatible client used to persist run
// artifacts and release payloads beyond the lifetime of a single process.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds the connection settings for an S3-compatible endpoint.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
}

// ConfigFromEnv reads connection settings from FLOWCI_S3_* variables.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Endpoint:  envString("FLOWCI_S3_ENDPOINT", "localhost:9000"),
		AccessKey: envString("FLOWCI_S3_ACCESS_KEY", ""),
		SecretKey: envString("FLOWCI_S3_SECRET_KEY", ""),
		Region:    envString("FLOWCI_S3_REGION", "us-east-1"),
		UseSSL:    envString("FLOWCI_S3_USE_SSL", "false") == "true",
		Bucket:    envString("FLOWCI_S3_BUCKET", "flowci"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the config is complete enough to dial.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return errors.New("endpoint must not include a scheme")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	return nil
}

// Bucket is a handle on one bucket of the object store.
type Bucket struct {
	client *minio.Client
	bucket string
}

// NewBucket dials the endpoint and returns a bucket handle.
func NewBucket(cfg Config) (*Bucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &Bucket{client: client, bucket: cfg.Bucket}, nil
}

// Ensure creates the bucket if it does not exist.
func (b *Bucket) Ensure(ctx context.Context, region string) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists check: %w", err)
	}
	if exists {
		return nil
	}
	return b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: region})
}

// Put uploads a payload under key.
func (b *Bucket) Put(ctx context.Context, key string, payload []byte) error {
	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// Stat returns the ETag of the object at key, or exists=false when the key
// is absent.
func (b *Bucket) Stat(ctx context.Context, key string) (etag string, exists bool, err error) {
	info, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to stat object %s: %w", key, err)
	}
	return info.ETag, true, nil
}

func envString(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return fallback
}
