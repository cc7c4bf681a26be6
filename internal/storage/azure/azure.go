// Package azure stores archives in Azure Blob Storage using shared key credentials.
package azure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/orgspace/orgspace/internal/config"
	"github.com/orgspace/orgspace/internal/storage"
	"github.com/orgspace/orgspace/pkg/checksum"
)

func init() {
	storage.Register("azure", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Archive.Azure)
	})
}

const checksumMetaKey = "sha256"

// Storage implements storage.Storage on one blob container.
type Storage struct {
	container *container.Client
}

var _ storage.Storage = (*Storage)(nil)

// New creates a shared-key client for the configured container.
func New(cfg *config.AzureStorageConfig) (*Storage, error) {
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

	return newWithClient(client, cfg.ContainerName), nil
}

func newWithClient(client *azblob.Client, containerName string) *Storage {
	return &Storage{container: client.ServiceClient().NewContainerClient(containerName)}
}

// Upload stores the archive as a block blob with its SHA256 in blob metadata.
func (s *Storage) Upload(ctx context.Context, key string, reader io.Reader, _ int64) (*storage.ObjectInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	sum := checksum.SumBytes(data)
	contentType := "application/json"

	resp, err := s.container.NewBlockBlobClient(key).Upload(ctx, streaming.NopCloser(bytes.NewReader(data)), &blockblob.UploadOptions{
		Metadata:    map[string]*string{checksumMetaKey: &sum},
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}

	info := &storage.ObjectInfo{Key: key, Size: int64(len(data)), Checksum: sum}
	if resp.LastModified != nil {
		info.LastModified = *resp.LastModified
	}
	return info, nil
}

// Download streams the blob.
func (s *Storage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.container.NewBlobClient(key).DownloadStream(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to download from Azure Blob: %w", err)
	}
	return resp.Body, nil
}

// Delete removes the blob; a missing blob is not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if _, err := s.container.NewBlobClient(key).Delete(ctx, nil); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete from Azure Blob: %w", err)
	}
	return nil
}

// Exists reads the blob's properties.
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.GetMetadata(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetMetadata returns the blob's size, modification time and stored checksum.
func (s *Storage) GetMetadata(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	props, err := s.container.NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get blob properties: %w", err)
	}

	info := &storage.ObjectInfo{Key: key}
	if props.ContentLength != nil {
		info.Size = *props.ContentLength
	}
	if props.LastModified != nil {
		info.LastModified = *props.LastModified
	}
	// Metadata keys come back with the casing the service chose.
	for k, v := range props.Metadata {
		if v != nil && strings.EqualFold(k, checksumMetaKey) {
			info.Checksum = *v
		}
	}
	return info, nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
