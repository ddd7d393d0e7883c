// ABOUTME: Random-access backing store for query documents
// ABOUTME: Documents are opened per call and read by byte range, never written

package storage

import (
	"errors"
	"fmt"
	"io"
)

// Source is an open, read-only handle on one document
type Source interface {
	io.ReaderAt
	Size() int64
	Close() error
}

// Store resolves document ids to sources
type Store interface {
	Open(id string) (Source, error)
}

// Canonicalizer is implemented by stores that accept several ids for one
// document. CanonicalID maps each of them to a single id.
type Canonicalizer interface {
	CanonicalID(id string) (string, error)
}

// ReadRange reads exactly [off, off+n) from src
func ReadRange(src Source, off, n int64) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	if off < 0 || off+n > src.Size() {
		return nil, fmt.Errorf("%w: range [%d,%d) outside %d bytes", ErrTruncated, off, off+n, src.Size())
	}

	buf := make([]byte, n)
	read, err := src.ReadAt(buf, off)
	if int64(read) == n {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: got %d of %d bytes at %d", ErrTruncated, read, n, off)
	}
	return nil, fmt.Errorf("read at %d: %w", off, err)
}

// ReadAll reads a whole document in one call
func ReadAll(s Store, id string) ([]byte, error) {
	src, err := s.Open(id)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return ReadRange(src, 0, src.Size())
}
