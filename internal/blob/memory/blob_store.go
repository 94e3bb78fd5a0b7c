// Package memory provides an in-memory snapshot store for tests.
package memory

import (
	"context"
	"sync"
)

// BlobStore keeps snapshots in a map keyed by path.
type BlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// New returns an empty store.
func New() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

// Put stores a copy of data and returns a mem:// URI.
func (s *BlobStore) Put(_ context.Context, path, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[path] = append([]byte(nil), data...)
	return "mem://" + path, nil
}

// Get returns the stored bytes for path.
func (s *BlobStore) Get(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[path]
	return data, ok
}

// Len reports the number of stored snapshots.
func (s *BlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
