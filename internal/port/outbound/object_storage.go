package outbound

import "context"

// ObjectStorage defines the outbound port for stored image files.
type ObjectStorage interface {
	// Upload writes the file under path and returns its public URL.
	Upload(ctx context.Context, path, contentType string, data []byte) (string, error)

	// Download reads the file stored under path.
	Download(ctx context.Context, path string) ([]byte, error)

	// Delete removes the file stored under path. Deleting a missing
	// file is not an error.
	Delete(ctx context.Context, path string) error

	// SignedURL returns a time-limited retrieval URL for the file
	// stored under path. Signing is local, so no context is needed.
	SignedURL(path string) (string, error)
}
