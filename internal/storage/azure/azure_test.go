package azure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/orgspace/orgspace/internal/config"
	"github.com/orgspace/orgspace/internal/storage"
)

type storedBlob struct {
	content      []byte
	metadata     map[string]string
	lastModified time.Time
}

// newTestStorage points a client at a handler imitating enough of the Blob REST API.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	var mu sync.Mutex
	blobs := map[string]*storedBlob{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/")
		mu.Lock()
		defer mu.Unlock()

		switch r.Method {
		case http.MethodPut:
			data, _ := io.ReadAll(r.Body)
			meta := map[string]string{}
			for k, v := range r.Header {
				lk := strings.ToLower(k)
				if strings.HasPrefix(lk, "x-ms-meta-") && len(v) > 0 {
					meta[strings.TrimPrefix(lk, "x-ms-meta-")] = v[0]
				}
			}
			blobs[key] = &storedBlob{content: data, metadata: meta, lastModified: time.Now().UTC()}
			w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
			w.WriteHeader(http.StatusCreated)

		case http.MethodGet:
			b, ok := blobs[key]
			if !ok {
				w.Header().Set("x-ms-error-code", "BlobNotFound")
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(b.content)))
			w.WriteHeader(http.StatusOK)
			w.Write(b.content)

		case http.MethodHead:
			b, ok := blobs[key]
			if !ok {
				w.Header().Set("x-ms-error-code", "BlobNotFound")
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(b.content)))
			w.Header().Set("Last-Modified", b.lastModified.Format(http.TimeFormat))
			for k, v := range b.metadata {
				w.Header().Set("x-ms-meta-"+k, v)
			}
			w.WriteHeader(http.StatusOK)

		case http.MethodDelete:
			if _, ok := blobs[key]; !ok {
				w.Header().Set("x-ms-error-code", "BlobNotFound")
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(blobs, key)
			w.WriteHeader(http.StatusAccepted)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := azblob.NewClientWithNoCredential(srv.URL, nil)
	if err != nil {
		t.Fatalf("failed to create azblob client: %v", err)
	}
	return newWithClient(client, "archives")
}

func TestUploadDownloadDeleteAndExists(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	data := []byte(`{"namespace":"org_acme"}`)

	info, err := s.Upload(ctx, "org_acme/1.json", bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if info.Size != int64(len(data)) || len(info.Checksum) != 64 {
		t.Fatalf("unexpected upload info: %+v", info)
	}

	rc, err := s.Download(ctx, "org_acme/1.json")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(got, data) {
		t.Fatalf("download content mismatch: %q", got)
	}

	exists, err := s.Exists(ctx, "org_acme/1.json")
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v; want true, nil", exists, err)
	}

	if err := s.Delete(ctx, "org_acme/1.json"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err = s.Exists(ctx, "org_acme/1.json")
	if err != nil || exists {
		t.Fatalf("Exists after delete = %v, %v; want false, nil", exists, err)
	}
	if err := s.Delete(ctx, "org_acme/1.json"); err != nil {
		t.Fatalf("Delete of missing blob: %v", err)
	}
}

func TestGetMetadata(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	data := []byte("content-for-metadata")

	up, err := s.Upload(ctx, "meta.json", bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	meta, err := s.GetMetadata(ctx, "meta.json")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if meta.Size != int64(len(data)) {
		t.Errorf("metadata size mismatch: %d", meta.Size)
	}
	if meta.Checksum != up.Checksum {
		t.Errorf("checksum = %q, want %q", meta.Checksum, up.Checksum)
	}

	if _, err := s.GetMetadata(ctx, "missing.json"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetMetadata(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := s.Download(ctx, "missing.json"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Download(missing) error = %v, want ErrNotFound", err)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AzureStorageConfig
	}{
		{"missing account name", config.AzureStorageConfig{AccountKey: "k", ContainerName: "c"}},
		{"missing account key", config.AzureStorageConfig{AccountName: "a", ContainerName: "c"}},
		{"missing container", config.AzureStorageConfig{AccountName: "a", AccountKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(&tt.cfg); err == nil {
				t.Error("New() = nil error, want error")
			}
		})
	}
}
