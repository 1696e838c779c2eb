package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meertime/dataportal/internal/config"
	"github.com/meertime/dataportal/internal/storage"
)

// newTestStorage points a client at an httptest server imitating enough of the Blob
// REST API to serve a fixed set of blobs from "container".
func newTestStorage(t *testing.T, blobs map[string]string) *AzureStorage {
	t.Helper()

	modified := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/container/")
		data, ok := blobs[key]
		if !ok {
			w.Header().Set("x-ms-error-code", "BlobNotFound")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Last-Modified", modified.Format(http.TimeFormat))
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, data)
		case http.MethodHead:
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := azblob.NewClientWithNoCredential(srv.URL, nil)
	require.NoError(t, err)

	return &AzureStorage{client: client, containerName: "container"}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AzureStorageConfig
	}{
		{"missing account", config.AzureStorageConfig{AccountKey: "a2V5", ContainerName: "c"}},
		{"missing key", config.AzureStorageConfig{AccountName: "acct", ContainerName: "c"}},
		{"missing container", config.AzureStorageConfig{AccountName: "acct", AccountKey: "a2V5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(&tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNew_SharedKey(t *testing.T) {
	s, err := New(&config.AzureStorageConfig{
		AccountName:   "meertime",
		AccountKey:    "a2V5",
		ContainerName: "archives",
	})
	require.NoError(t, err)
	assert.Equal(t, "archives", s.containerName)
}

func TestOpenAndStat(t *testing.T) {
	path := "MeerTIME/J0437-4715/2023-01-01-00:00:00/2/full/J0437-4715_2023-01-01-00:00:00_2_zap.ar"
	s := newTestStorage(t, map[string]string{path: "archive bytes"})
	ctx := context.Background()

	rc, err := s.Open(ctx, path)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "archive bytes", string(body))

	meta, err := s.Stat(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, int64(len("archive bytes")), meta.Size)
	assert.Equal(t, "application/octet-stream", meta.ContentType)
	assert.False(t, meta.LastModified.IsZero())

	ok, err := s.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMissingBlob(t *testing.T) {
	s := newTestStorage(t, nil)
	ctx := context.Background()

	_, err := s.Open(ctx, "missing.ar")
	assert.True(t, errors.Is(err, storage.ErrNotFound), "Open error = %v", err)

	_, err = s.Stat(ctx, "missing.ar")
	assert.True(t, errors.Is(err, storage.ErrNotFound), "Stat error = %v", err)

	ok, err := s.Exists(ctx, "missing.ar")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidPath(t *testing.T) {
	s := newTestStorage(t, nil)
	_, err := s.Open(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, storage.ErrInvalidPath)
}
