package blobstore

import (
	"context"
	"sync"
)

// Memory keeps blobs in process memory.
type Memory struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	puts      int
	beforePut func(path string)
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, path string) (Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.blobs[path]
	if !ok {
		return Blob{}, ErrNotFound
	}
	return Blob{Content: append([]byte(nil), content...), Version: Checksum(content)}, nil
}

// BeforePut installs fn to run ahead of every compare-and-swap with the lock
// released, so another writer can slip in. A nil fn removes the hook.
func (m *Memory) BeforePut(fn func(path string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beforePut = fn
}

func (m *Memory) Put(_ context.Context, path string, content []byte, version string) (string, error) {
	m.mu.Lock()
	hook := m.beforePut
	m.mu.Unlock()
	if hook != nil {
		hook(path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current := ""
	if stored, ok := m.blobs[path]; ok {
		current = Checksum(stored)
	}
	if current != version {
		return "", &ConflictError{Path: path, Expected: version, Actual: current}
	}
	m.blobs[path] = append([]byte(nil), content...)
	m.puts++
	return Checksum(content), nil
}

// Puts counts the successful writes.
func (m *Memory) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}
