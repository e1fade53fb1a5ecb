// Package storage is the receipt-image blob store: MinIO when configured,
// local disk otherwise. Same Upload/GetPresignedURL/Delete/GetFileExtension
// shape as a package-level global client, reworked into an instance with a
// local-disk fallback, since multi-tenant scoping isn't needed here.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/localledger/receipt-backend/internal/logging"
)

var log = logging.New("storage")

// Backend is the receipt-image blob store capability set.
type Backend interface {
	Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error)
	URL(ctx context.Context, ref string) (string, error)
	Delete(ctx context.Context, ref string) error
}

// MinIOBackend stores images in an S3-compatible bucket.
type MinIOBackend struct {
	client *minio.Client
	bucket string
}

// NewMinIO dials endpoint and verifies bucket exists.
func NewMinIO(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinIOBackend, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	log.Printf("MinIO backend ready (bucket=%s)", bucket)
	return &MinIOBackend{client: client, bucket: bucket}, nil
}

func (m *MinIOBackend) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	now := time.Now()
	objectName := fmt.Sprintf("%d/%02d/%s", now.Year(), now.Month(), filename)

	if _, err := m.client.PutObject(ctx, m.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return objectName, nil
}

func (m *MinIOBackend) URL(ctx context.Context, ref string) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, m.bucket, ref, 24*time.Hour, nil)
	if err != nil {
		return "", fmt.Errorf("generate presigned URL: %w", err)
	}
	return url.String(), nil
}

func (m *MinIOBackend) Delete(ctx context.Context, ref string) error {
	return m.client.RemoveObject(ctx, m.bucket, ref, minio.RemoveObjectOptions{})
}

// LocalBackend stores images under a directory on local disk, used when
// MinIO is not configured.
type LocalBackend struct {
	dir       string
	staticURL string
}

// NewLocal ensures dir exists. URL maps a stored ref to
// staticURLPrefix/<ref>; this package does not serve that path, and
// api.Routes registers no route for it.
func NewLocal(dir, staticURLPrefix string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	return &LocalBackend{dir: dir, staticURL: staticURLPrefix}, nil
}

func (l *LocalBackend) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	now := time.Now()
	rel := filepath.Join(fmt.Sprintf("%d", now.Year()), fmt.Sprintf("%02d", now.Month()), filename)
	full := filepath.Join(l.dir, rel)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create image subdirectory: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return "", fmt.Errorf("write image file: %w", err)
	}
	return rel, nil
}

func (l *LocalBackend) URL(ctx context.Context, ref string) (string, error) {
	return fmt.Sprintf("%s/%s", l.staticURL, filepath.ToSlash(ref)), nil
}

func (l *LocalBackend) Delete(ctx context.Context, ref string) error {
	return os.Remove(filepath.Join(l.dir, ref))
}

// ExtensionFor maps a content type to a file extension.
func ExtensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}
