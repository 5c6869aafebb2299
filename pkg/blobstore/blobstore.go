// Package blobstore holds the remote homes of the database file. Every
// backend offers compare-and-swap writes keyed by an opaque version token.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/pershin-daniil/MeetingBoard/pkg/metrics"
)

var (
	ErrNotFound = errors.New("blob not found")
	ErrConflict = errors.New("blob was changed remotely")
)

// ConflictError reports a rejected write: the remote version no longer
// matches the one the caller read.
type ConflictError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *ConflictError) Error() string {
	if e.Actual == "" {
		return fmt.Sprintf("conflict writing %s: expected version %q", e.Path, e.Expected)
	}
	return fmt.Sprintf("conflict writing %s: expected version %q, found %q", e.Path, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

type Blob struct {
	Content []byte
	Version string
}

// Store is a remote file host.
//
// Get returns ErrNotFound when nothing is stored at path. Put writes content
// only when the stored version still equals version; an empty version means
// the blob must not exist yet. A rejected write returns an error matching
// ErrConflict.
type Store interface {
	Get(ctx context.Context, path string) (Blob, error)
	Put(ctx context.Context, path string, content []byte, version string) (string, error)
}

// Checksum is the content hash used as the version of local and in-memory blobs.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

type instrumented struct {
	backend string
	next    Store
}

// Instrument records the duration of every call on next under backend.
func Instrument(backend string, next Store) Store {
	return &instrumented{backend: backend, next: next}
}

func (s *instrumented) Get(ctx context.Context, path string) (Blob, error) {
	defer func(start time.Time) {
		metrics.BlobDuration.WithLabelValues(s.backend, "get").Observe(time.Since(start).Seconds())
	}(time.Now())
	return s.next.Get(ctx, path)
}

func (s *instrumented) Put(ctx context.Context, path string, content []byte, version string) (string, error) {
	defer func(start time.Time) {
		metrics.BlobDuration.WithLabelValues(s.backend, "put").Observe(time.Since(start).Seconds())
	}(time.Now())
	return s.next.Put(ctx, path, content, version)
}
