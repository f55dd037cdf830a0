package chunkstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type LocalBackend struct {
	basePath    string
	externalURL string
}

func NewLocalBackend(config *BackendConfig) (*LocalBackend, error) {
	basePath := config.LocalPath
	if basePath == "" {
		basePath = "./storage"
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalBackend{
		basePath:    basePath,
		externalURL: config.ExternalURL,
	}, nil
}

// Store writes through a private staging file and renames it into place, so a
// crash mid-write never leaves a readable partial blob at the final path and
// concurrent writers of the same blob never interleave through a shared
// staging file.
func (b *LocalBackend) Store(ctx context.Context, path string, reader io.Reader) error {
	fullPath := filepath.Join(b.basePath, path)
	dir := filepath.Dir(fullPath)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file, err := os.CreateTemp(dir, filepath.Base(fullPath)+".tmp-*")
	if err != nil {
		return err
	}
	staging := file.Name()

	if err := file.Chmod(0644); err != nil {
		file.Close()
		os.Remove(staging)
		return err
	}
	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		os.Remove(staging)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(staging)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(staging)
		return err
	}

	if err := os.Rename(staging, fullPath); err != nil {
		os.Remove(staging)
		return err
	}
	return nil
}

// AdoptFile takes ownership of a file already on this filesystem and renames
// it into place at path. The rename is atomic, so readers never observe a
// partial blob; on failure the source file stays where it was.
func (b *LocalBackend) AdoptFile(ctx context.Context, srcPath, path string) error {
	fullPath := filepath.Join(b.basePath, path)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}

	return os.Rename(srcPath, fullPath)
}

func (b *LocalBackend) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	fullPath := filepath.Join(b.basePath, path)

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob not found: %s", path)
		}
		return nil, err
	}

	return file, nil
}

func (b *LocalBackend) Delete(ctx context.Context, path string) error {
	fullPath := filepath.Join(b.basePath, path)

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

func (b *LocalBackend) Exists(ctx context.Context, path string) (bool, error) {
	fullPath := filepath.Join(b.basePath, path)

	_, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (b *LocalBackend) GetURL(ctx context.Context, path string) (string, error) {
	return fmt.Sprintf("%s/files/%s", b.externalURL, path), nil
}
