// ABOUTME: Filesystem-backed document store
// ABOUTME: Document ids are paths, resolved under an optional root directory

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore opens documents from the local filesystem
type FileStore struct {
	Root string // Optional; relative ids are resolved under it
}

// NewFileStore creates a store rooted at root ("" means ids are plain paths)
func NewFileStore(root string) *FileStore {
	return &FileStore{Root: root}
}

// Path resolves a document id to a filesystem path
func (fs *FileStore) Path(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", ErrInvalidID
	}
	if fs.Root == "" {
		return filepath.Clean(id), nil
	}

	root := filepath.Clean(fs.Root)
	p := id
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s escapes %s", ErrInvalidID, id, root)
	}
	return p, nil
}

// ID maps a filesystem path back to the id the engine caches it under
func (fs *FileStore) ID(path string) string {
	if fs.Root == "" {
		return filepath.Clean(path)
	}
	rel, err := filepath.Rel(filepath.Clean(fs.Root), filepath.Clean(path))
	if err != nil {
		return filepath.Clean(path)
	}
	return rel
}

// CanonicalID resolves id and maps it back, so "hero.graphql",
// "./hero.graphql" and the absolute path under Root share one id
func (fs *FileStore) CanonicalID(id string) (string, error) {
	p, err := fs.Path(id)
	if err != nil {
		return "", err
	}
	return fs.ID(p), nil
}

// Open opens the document for byte-range reads
func (fs *FileStore) Open(id string) (Source, error) {
	p, err := fs.Path(id)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("open %s: %w", id, err)
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", id, err)
	}
	if stat.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, id)
	}

	return &fileSource{f: f, size: stat.Size()}, nil
}

type fileSource struct {
	f    *os.File
	size int64
}

func (s *fileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

func (s *fileSource) Size() int64 {
	return s.size
}

func (s *fileSource) Close() error {
	return s.f.Close()
}
