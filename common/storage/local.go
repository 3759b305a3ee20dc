package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage implements StorageService on a local directory. Used for the
// DARF download dir and in tests; the bucket argument becomes a subdirectory.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a local-disk storage service rooted at dir.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", dir, err)
	}
	return &LocalStorage{root: dir}, nil
}

func (l *LocalStorage) path(bucket, objectName string) string {
	return filepath.Join(l.root, bucket, filepath.FromSlash(objectName))
}

// Upload writes content to the object path and returns the local path.
func (l *LocalStorage) Upload(ctx context.Context, bucket, objectName string, content []byte, contentType string) (string, error) {
	return l.StreamUpload(ctx, bucket, objectName, bytes.NewReader(content), contentType)
}

// Download reads an object's bytes from disk.
func (l *LocalStorage) Download(ctx context.Context, bucket, objectName string) ([]byte, error) {
	data, err := os.ReadFile(l.path(bucket, objectName))
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", objectName, err)
	}
	return data, nil
}

// Delete removes an object from disk.
func (l *LocalStorage) Delete(ctx context.Context, bucket, objectName string) error {
	if err := os.Remove(l.path(bucket, objectName)); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", objectName, err)
	}
	return nil
}

// GetSignedURL returns a file:// URL; local objects need no signing.
func (l *LocalStorage) GetSignedURL(ctx context.Context, bucket, objectName string, expires int64) (string, error) {
	return "file://" + l.path(bucket, objectName), nil
}

// StreamUpload writes a reader to the object path and returns the local path.
func (l *LocalStorage) StreamUpload(ctx context.Context, bucket, objectName string, reader io.Reader, contentType string) (string, error) {
	target := l.path(bucket, objectName)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create object dir: %w", err)
	}

	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create object file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return "", fmt.Errorf("failed to write object file: %w", err)
	}
	return target, nil
}
