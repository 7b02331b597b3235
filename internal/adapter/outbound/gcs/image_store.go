// Package gcs stores image files in a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/shini559/Gaming-advisor-sub000/internal/config"
)

// operationTimeout bounds single object operations so a stuck transfer
// cannot hold a worker slot indefinitely.
const operationTimeout = 50 * time.Second

// defaultSignedURLExpiry applies when the config leaves the expiry unset.
const defaultSignedURLExpiry = 15 * time.Minute

// ImageStore reads and writes image files in one bucket. Object paths
// are the caller's concern; the store treats them as opaque keys.
type ImageStore struct {
	client          *storage.Client
	bucket          string
	signedURLExpiry time.Duration
}

// NewImageStore creates a store over the configured bucket. Credentials
// come from the configured file when set, otherwise from the ambient
// application default credentials.
func NewImageStore(ctx context.Context, cfg config.StorageConfig) (*ImageStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	expiry := cfg.SignedURLExpiry
	if expiry <= 0 {
		expiry = defaultSignedURLExpiry
	}

	return &ImageStore{
		client:          client,
		bucket:          cfg.Bucket,
		signedURLExpiry: expiry,
	}, nil
}

// Upload writes data under path and returns the object's public URL.
func (s *ImageStore) Upload(ctx context.Context, path, contentType string, data []byte) (string, error) {
	if path == "" {
		return "", errors.New("object path is required")
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	wc := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := io.Copy(wc, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to write object %s: %w", path, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to finish upload of %s: %w", path, err)
	}

	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, path), nil
}

// Download reads the object stored under path.
func (s *ImageStore) Download(ctx context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("object path is required")
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	rc, err := s.client.Bucket(s.bucket).Object(path).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open object %s: %w", path, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", path, err)
	}

	return data, nil
}

// Delete removes the object stored under path. A missing object is not
// an error, so delete-based cleanup stays idempotent.
func (s *ImageStore) Delete(ctx context.Context, path string) error {
	if path == "" {
		return errors.New("object path is required")
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	err := s.client.Bucket(s.bucket).Object(path).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", path, err)
	}

	return nil
}

// SignedURL returns a V4 signed GET URL for the object stored under
// path, valid for the configured expiry.
func (s *ImageStore) SignedURL(path string) (string, error) {
	if path == "" {
		return "", errors.New("object path is required")
	}

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(s.signedURLExpiry),
	}

	url, err := s.client.Bucket(s.bucket).SignedURL(path, opts)
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for %s: %w", path, err)
	}

	return url, nil
}

// Close releases the underlying client.
func (s *ImageStore) Close() error {
	return s.client.Close()
}
