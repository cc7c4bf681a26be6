// Package gcs stores archives in Google Cloud Storage.
//
// Authentication methods:
//   - "default" or empty: Application Default Credentials
//   - "service_account": a key file or inline JSON key
//   - "workload_identity": ADC backed by Workload Identity Federation
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	appconfig "github.com/orgspace/orgspace/internal/config"
	appstorage "github.com/orgspace/orgspace/internal/storage"
	"github.com/orgspace/orgspace/pkg/checksum"
)

func init() {
	appstorage.Register("gcs", func(cfg *appconfig.Config) (appstorage.Storage, error) {
		return New(&cfg.Archive.GCS)
	})
}

const checksumMetaKey = "sha256"

// Storage implements storage.Storage on a GCS bucket.
type Storage struct {
	client *storage.Client
	bucket string
}

var _ appstorage.Storage = (*Storage)(nil)

// clientOptions translates cfg into client options.
func clientOptions(cfg *appconfig.GCSStorageConfig) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	authMethod := cfg.AuthMethod
	if authMethod == "" {
		if cfg.CredentialsFile != "" || cfg.CredentialsJSON != "" {
			authMethod = "service_account"
		} else {
			authMethod = "default"
		}
	}

	switch authMethod {
	case "service_account":
		switch {
		case cfg.CredentialsJSON != "":
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		case cfg.CredentialsFile != "":
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		default:
			return nil, fmt.Errorf("credentials_file or credentials_json is required for service_account auth")
		}
	case "workload_identity", "default":
	default:
		return nil, fmt.Errorf("unsupported auth_method: %s (must be 'default', 'service_account', or 'workload_identity')", authMethod)
	}
	return opts, nil
}

// New creates a GCS client for cfg.
func New(cfg *appconfig.GCSStorageConfig) (*Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &Storage{client: client, bucket: cfg.Bucket}, nil
}

// Close closes the GCS client
func (s *Storage) Close() error {
	return s.client.Close()
}

// Upload writes the archive with its SHA256 in object metadata.
func (s *Storage) Upload(ctx context.Context, key string, reader io.Reader, _ int64) (*appstorage.ObjectInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	sum := checksum.SumBytes(data)

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = map[string]string{checksumMetaKey: sum}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GCS writer: %w", err)
	}

	info := &appstorage.ObjectInfo{Key: key, Size: int64(len(data)), Checksum: sum}
	if attrs := w.Attrs(); attrs != nil {
		info.LastModified = attrs.Updated
	}
	return info, nil
}

// Download opens a reader on the object.
func (s *Storage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", appstorage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read from GCS: %w", err)
	}
	return r, nil
}

// Delete removes the object; a missing object is not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}
	return nil
}

// Exists checks the object's attributes.
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.GetMetadata(ctx, key)
	if errors.Is(err, appstorage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetMetadata reads the object's attributes.
func (s *Storage) GetMetadata(ctx context.Context, key string) (*appstorage.ObjectInfo, error) {
	attrs, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", appstorage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get object metadata: %w", err)
	}
	return &appstorage.ObjectInfo{
		Key:          key,
		Size:         attrs.Size,
		Checksum:     attrs.Metadata[checksumMetaKey],
		LastModified: attrs.Updated,
	}, nil
}
