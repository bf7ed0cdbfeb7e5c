package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	internalstorage "github.com/hireloop/interview-capture/internal/storage"
)

// S3Backend stores artifacts in an S3-compatible bucket.
type S3Backend struct {
	client   *minio.Client
	bucket   string
	endpoint string
	useSSL   bool
}

type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

func NewS3Backend(cfg S3Config) (internalstorage.Backend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &S3Backend{
		client:   client,
		bucket:   cfg.Bucket,
		endpoint: cfg.Endpoint,
		useSSL:   cfg.UseSSL,
	}, nil
}

// objectKey namespaces video artifacts inside the bucket.
func objectKey(key string) string {
	return "videos/" + key
}

func (b *S3Backend) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	contentType := "application/octet-stream"
	if strings.HasSuffix(key, ".mp4") {
		contentType = "video/mp4"
	}
	if _, err := b.client.PutObject(ctx, b.bucket, objectKey(key), r, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return b.URL(key), nil
}

func (b *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	info, err := b.client.StatObject(ctx, b.bucket, objectKey(key), minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
			return false, nil
		}
		return false, err
	}
	return info.Size > 0, nil
}

func (b *S3Backend) URL(key string) string {
	scheme := "https"
	if !b.useSSL {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s.%s/%s", scheme, b.bucket, b.endpoint, objectKey(key))
}

func (b *S3Backend) IsLocal() bool { return false }
