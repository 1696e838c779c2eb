// Package storage defines the read-only file store the portal serves data products
// from: observation archives, decimated archives and ToA files written by the
// processing pipeline.
//
// Backends register themselves with the factory from an init() function in their
// own package and are selected by storage.default_backend:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return New(&cfg.Storage.MyBackend)
//	    })
//	}
//
// cmd/server blank-imports every backend so registration happens before NewStorage.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned by Open and Stat when no object exists at the path
var ErrNotFound = errors.New("file not found")

// ErrInvalidPath is returned for paths that are absolute or escape the store root
var ErrInvalidPath = errors.New("invalid storage path")

// Storage is the portal's view of the file store. The portal never writes to it.
type Storage interface {
	// Open returns a reader for the object at path. The caller must close it.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists reports whether an object exists at path
	Exists(ctx context.Context, path string) (bool, error)

	// Stat returns the object's metadata without reading it
	Stat(ctx context.Context, path string) (*FileMetadata, error)
}

// FileMetadata describes a stored object
type FileMetadata struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// CleanPath validates a slash-separated store path and returns its clean form.
// Pulsar names and timestamps come from URLs, so every backend runs paths through
// here before touching the store.
func CleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidPath
	}
	return clean, nil
}
