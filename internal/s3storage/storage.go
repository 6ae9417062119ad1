// Package s3storage implements the object store on MinIO or any S3 API.
package s3storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/SiteVault/internal/config"
	"github.com/dharsanguruparan/SiteVault/internal/store"
)

var _ store.ObjectStore = (*Storage)(nil)

// Storage wraps MinIO/S3 interactions for submission files and attachments.
type Storage struct {
	client  *minio.Client
	bucket  string
	region  string
	baseURL string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:  client,
		bucket:  cfg.Bucket,
		region:  cfg.S3Region,
		baseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// EnsureBucket makes sure the bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Upload stores the reader contents at path.
func (s *Storage) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, path, r, size, opts); err != nil {
		return fmt.Errorf("upload object: %w", err)
	}
	return nil
}

// Download fetches the object bytes at path.
func (s *Storage) Download(ctx context.Context, path string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return buf, nil
}

// Move copies oldPath to newPath server-side, then removes oldPath. When the
// remove fails the source is still in place, so the move is reported as
// failed and callers keep pointing at oldPath.
func (s *Storage) Move(ctx context.Context, oldPath, newPath string) error {
	dst := minio.CopyDestOptions{Bucket: s.bucket, Object: newPath}
	src := minio.CopySrcOptions{Bucket: s.bucket, Object: oldPath}
	if _, err := s.client.CopyObject(ctx, dst, src); err != nil {
		return fmt.Errorf("copy object: %w", err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, oldPath, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("object copied to %s but source not removed: %w", newPath, errors.Join(ErrStaleSource, err))
	}
	return nil
}

// ErrStaleSource marks a move whose copy succeeded but whose source remains.
var ErrStaleSource = errors.New("stale source object")

// Remove deletes paths in one batch. Missing objects are not errors.
func (s *Storage) Remove(ctx context.Context, paths []string) error {
	objects := make(chan minio.ObjectInfo, len(paths))
	for _, p := range paths {
		objects <- minio.ObjectInfo{Key: p}
	}
	close(objects)
	var errs []error
	for res := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		if res.Err != nil && minio.ToErrorResponse(res.Err).Code != "NoSuchKey" {
			errs = append(errs, fmt.Errorf("%s: %w", res.ObjectName, res.Err))
		}
	}
	return errors.Join(errs...)
}

// PublicURL returns the unsigned URL of path under the public base URL.
func (s *Storage) PublicURL(path string) string {
	return s.baseURL + "/" + strings.TrimPrefix(path, "/")
}

// SignedURL returns a presigned GET URL valid for ttl.
func (s *Storage) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, path, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}
