// Package blob stores message attachments on disk under generated names.
package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store writes attachment files into a single directory, each under a
// generated uuid name that keeps the uploader's extension.
type Store struct {
	dir string
}

// NewStore creates the uploads directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save streams the file to disk and returns the generated filename, its
// full path, and the number of bytes written.
func (s *Store) Save(r io.Reader, originalName string) (filename, path string, size int64, err error) {
	filename = uuid.New().String() + filepath.Ext(originalName)
	path = filepath.Join(s.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", "", 0, fmt.Errorf("create attachment file: %w", err)
	}
	defer f.Close()

	size, err = io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return "", "", 0, fmt.Errorf("write attachment file: %w", err)
	}
	return filename, path, size, nil
}

// Path returns the on-disk path for a stored filename. The name is reduced
// to its base so a crafted filename cannot escape the uploads directory.
func (s *Store) Path(filename string) string {
	return filepath.Join(s.dir, filepath.Base(filename))
}

// Open opens a stored file for reading.
func (s *Store) Open(filename string) (*os.File, error) {
	return os.Open(s.Path(filename))
}
