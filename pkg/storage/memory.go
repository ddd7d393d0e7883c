// ABOUTME: In-memory document store
// ABOUTME: Used by tests and embedders that already hold documents in memory

package storage

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// MemStore keeps documents in a map and counts how often they are opened
type MemStore struct {
	mu    sync.RWMutex
	docs  map[string][]byte
	opens int64
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[string][]byte)}
}

// Put stores a copy of content under id
func (ms *MemStore) Put(id string, content string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.docs[id] = []byte(content)
}

// Delete removes a document
func (ms *MemStore) Delete(id string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.docs, id)
}

// Opens returns how many sources have been opened
func (ms *MemStore) Opens() int64 {
	return atomic.LoadInt64(&ms.opens)
}

// Open returns a reader over the document's current bytes
func (ms *MemStore) Open(id string) (Source, error) {
	ms.mu.RLock()
	data, ok := ms.docs[id]
	ms.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	atomic.AddInt64(&ms.opens, 1)
	return &memSource{data: data}, nil
}

type memSource struct {
	data   []byte
	closed atomic.Bool
}

func (s *memSource) ReadAt(p []byte, off int64) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 || off > int64(len(s.data)) {
		return 0, fmt.Errorf("%w: offset %d", ErrTruncated, off)
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *memSource) Size() int64 {
	return int64(len(s.data))
}

func (s *memSource) Close() error {
	s.closed.Store(true)
	return nil
}
