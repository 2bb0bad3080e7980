// Package objstore implements the ObjectStore driven port against any
// S3-compatible endpoint (MinIO, AWS S3, Supabase storage).
package objstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/otpgate/otpgate/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ObjectStore = (*Store)(nil)

// Store is the MinIO-backed implementation of the ObjectStore port.
// All objects live in a single bucket; callers scope keys with prefixes.
type Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// New creates a Store for the given S3-compatible endpoint. It does not touch
// the network; the first operation does.
func New(endpoint, accessKey, secretKey, bucket string, secure bool, logger *slog.Logger) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client for %q: %w", endpoint, err)
	}

	return &Store{client: client, bucket: bucket, logger: logger}, nil
}

// EnsureBucket creates the bucket if it does not exist. A concurrent creator
// winning the race is treated as success.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		exists, existsErr := s.client.BucketExists(ctx, s.bucket)
		if existsErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

// List returns all object keys under prefix. An empty listing returns an
// empty slice, not an error.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Download fetches the object at key into localPath, overwriting any existing file.
func (s *Store) Download(ctx context.Context, key, localPath string) error {
	if err := s.client.FGetObject(ctx, s.bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("download %q: %w", key, err)
	}
	return nil
}

// Upload stores the file at localPath under key, overwriting any existing object.
func (s *Store) Upload(ctx context.Context, key, localPath string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("upload %q: %w", key, err)
	}
	return nil
}

// RemovePrefix deletes every object under prefix in a single batch operation.
// A prefix with no objects is a no-op.
func (s *Store) RemovePrefix(ctx context.Context, prefix string) error {
	objectsCh := make(chan minio.ObjectInfo)
	listErrCh := make(chan error, 1)
	go func() {
		defer close(objectsCh)
		defer close(listErrCh)
		for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		}) {
			if obj.Err != nil {
				s.logger.Error("list for removal failed", "prefix", prefix, "error", obj.Err)
				listErrCh <- fmt.Errorf("list %q for removal: %w", prefix, obj.Err)
				return
			}
			objectsCh <- obj
		}
	}()

	var firstErr error
	for rErr := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		s.logger.Error("remove object failed", "key", rErr.ObjectName, "error", rErr.Err)
		if firstErr == nil {
			firstErr = fmt.Errorf("remove %q: %w", rErr.ObjectName, rErr.Err)
		}
	}
	// A listing failure truncates the batch; the prefix may still hold objects.
	if listErr := <-listErrCh; listErr != nil && firstErr == nil {
		firstErr = listErr
	}
	return firstErr
}
