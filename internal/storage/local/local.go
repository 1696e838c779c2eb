// Package local implements the file store on a local or network-mounted filesystem,
// typically the processing cluster's output tree mounted read-only into the container.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"github.com/meertime/dataportal/internal/config"
	"github.com/meertime/dataportal/internal/storage"
)

func init() {
	storage.Register("local", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Local)
	})
}

// LocalStorage serves files below a base directory
type LocalStorage struct {
	basePath string
}

// New creates a local file store rooted at cfg.BasePath. The directory must exist.
func New(cfg *config.LocalStorageConfig) (*LocalStorage, error) {
	info, err := os.Stat(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage base path %s is not a directory", cfg.BasePath)
	}
	return &LocalStorage{basePath: cfg.BasePath}, nil
}

func (s *LocalStorage) fullPath(p string) (string, error) {
	clean, err := storage.CleanPath(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(clean)), nil
}

// Open opens a file for reading
func (s *LocalStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.fullPath(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Exists checks if a regular file exists at the specified path
func (s *LocalStorage) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.Stat(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Stat returns file metadata. Directories are reported as not found.
func (s *LocalStorage) Stat(ctx context.Context, path string) (*storage.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.fullPath(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, path)
	}

	return &storage.FileMetadata{
		Path:         path,
		Size:         info.Size(),
		ContentType:  mime.TypeByExtension(filepath.Ext(full)),
		LastModified: info.ModTime(),
	}, nil
}
