// Package azure implements the file store on Azure Blob Storage using shared key
// credentials. Blob content is streamed through the portal.
package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/meertime/dataportal/internal/config"
	"github.com/meertime/dataportal/internal/storage"
)

func init() {
	storage.Register("azure", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Azure)
	})
}

// AzureStorage serves blobs from one container
type AzureStorage struct {
	client        *azblob.Client
	containerName string
}

// New creates an Azure Blob Storage file store
func New(cfg *config.AzureStorageConfig) (*AzureStorage, error) {
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("azure storage account name is required")
	}
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("azure storage account key is required")
	}
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("azure storage container name is required")
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}

	return &AzureStorage{
		client:        client,
		containerName: cfg.ContainerName,
	}, nil
}

// Open streams a blob
func (s *AzureStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	name, err := storage.CleanPath(path)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.DownloadStream(ctx, s.containerName, name, nil)
	if err != nil {
		return nil, wrapError(err, path, "failed to download blob")
	}
	return resp.Body, nil
}

// Exists checks if a blob exists at the specified path
func (s *AzureStorage) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.Stat(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Stat reads blob properties without downloading content
func (s *AzureStorage) Stat(ctx context.Context, path string) (*storage.FileMetadata, error) {
	name, err := storage.CleanPath(path)
	if err != nil {
		return nil, err
	}
	blobClient := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlobClient(name)
	props, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		return nil, wrapError(err, path, "failed to get blob properties")
	}

	meta := &storage.FileMetadata{Path: path}
	if props.ContentLength != nil {
		meta.Size = *props.ContentLength
	}
	if props.ContentType != nil {
		meta.ContentType = *props.ContentType
	}
	if props.LastModified != nil {
		meta.LastModified = *props.LastModified
	}
	return meta, nil
}

// wrapError maps 404 responses to storage.ErrNotFound. Properties requests have no
// body, so the status code is the only reliable signal.
func wrapError(err error, path, msg string) error {
	var re *azcore.ResponseError
	if errors.As(err, &re) && re.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, path)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
