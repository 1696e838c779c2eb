// Package gcs implements the file store on Google Cloud Storage. Credentials come from
// Application Default Credentials unless a service account key file is configured.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	appconfig "github.com/meertime/dataportal/internal/config"
	appstorage "github.com/meertime/dataportal/internal/storage"
)

func init() {
	appstorage.Register("gcs", func(cfg *appconfig.Config) (appstorage.Storage, error) {
		return New(&cfg.Storage.GCS)
	})
}

// GCSStorage serves objects from one bucket
type GCSStorage struct {
	client *storage.Client
	bucket string
}

// New creates a GCS file store. An Endpoint without a credentials file is treated as an
// emulator and the client runs unauthenticated.
func New(cfg *appconfig.GCSStorageConfig) (*GCSStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	switch {
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	case cfg.Endpoint != "":
		opts = append(opts, option.WithoutAuthentication())
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStorage{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Close closes the GCS client
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

// Open streams an object
func (s *GCSStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	name, err := appstorage.CleanPath(path)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, wrapError(err, path, "failed to open object")
	}
	return r, nil
}

// Exists checks if an object exists at the specified path
func (s *GCSStorage) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.Stat(ctx, path)
	if err != nil {
		if errors.Is(err, appstorage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Stat reads object attributes without fetching content
func (s *GCSStorage) Stat(ctx context.Context, path string) (*appstorage.FileMetadata, error) {
	name, err := appstorage.CleanPath(path)
	if err != nil {
		return nil, err
	}
	attrs, err := s.client.Bucket(s.bucket).Object(name).Attrs(ctx)
	if err != nil {
		return nil, wrapError(err, path, "failed to get object metadata")
	}
	return &appstorage.FileMetadata{
		Path:         path,
		Size:         attrs.Size,
		ContentType:  attrs.ContentType,
		LastModified: attrs.Updated,
	}, nil
}

func wrapError(err error, path, msg string) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%w: %s", appstorage.ErrNotFound, path)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
