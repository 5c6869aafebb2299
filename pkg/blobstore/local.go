package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Local stores blobs as files below a base directory. Compare-and-swap is
// serialized within the process only.
type Local struct {
	mu       sync.Mutex
	basePath string
}

func NewLocal(basePath string) (*Local, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("err creating blob directory: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("err resolving blob directory: %w", err)
	}
	return &Local{basePath: abs}, nil
}

func (l *Local) Get(_ context.Context, path string) (Blob, error) {
	full, err := l.resolve(path)
	if err != nil {
		return Blob{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	content, err := os.ReadFile(full)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Blob{}, ErrNotFound
	case err != nil:
		return Blob{}, fmt.Errorf("err reading %s: %w", path, err)
	}
	return Blob{Content: content, Version: Checksum(content)}, nil
}

func (l *Local) Put(_ context.Context, path string, content []byte, version string) (string, error) {
	full, err := l.resolve(path)
	if err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	current := ""
	stored, err := os.ReadFile(full)
	switch {
	case err == nil:
		current = Checksum(stored)
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("err reading %s: %w", path, err)
	}
	if current != version {
		return "", &ConflictError{Path: path, Expected: version, Actual: current}
	}

	if err = os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("err creating directory for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".blob-*")
	if err != nil {
		return "", fmt.Errorf("err creating temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err = tmp.Write(content); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("err writing %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("err writing %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), full); err != nil {
		return "", fmt.Errorf("err replacing %s: %w", path, err)
	}
	return Checksum(content), nil
}

func (l *Local) resolve(path string) (string, error) {
	full := filepath.Join(l.basePath, filepath.FromSlash(path))
	if full != l.basePath && !strings.HasPrefix(full, l.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob path %q: outside of %s", path, l.basePath)
	}
	return full, nil
}
