package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	internalstorage "github.com/hireloop/interview-capture/internal/storage"
)

// LocalBackend writes artifacts under a root directory and serves them
// through the media file route.
type LocalBackend struct {
	root string
}

func NewLocalBackend(root string) (internalstorage.Backend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalBackend{root: root}, nil
}

func (b *LocalBackend) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	dst := filepath.Join(b.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create artifact file: %w", err)
	}
	written, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if size >= 0 && written != size {
		return "", fmt.Errorf("artifact size mismatch: wrote %d bytes, expected %d", written, size)
	}
	return b.URL(key), nil
}

func (b *LocalBackend) Exists(ctx context.Context, key string) (bool, error) {
	info, err := os.Stat(filepath.Join(b.root, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Size() > 0, nil
}

func (b *LocalBackend) URL(key string) string {
	return "/api/media/files/videos/" + key
}

func (b *LocalBackend) IsLocal() bool { return true }

// Path resolves a key to its location on disk.
func (b *LocalBackend) Path(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}
