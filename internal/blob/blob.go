// Package blob stores attachment content on disk, addressed by the SHA-256
// of the bytes. Identical payloads referenced by any number of emails are
// written exactly once.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Store is a content-addressed file store rooted at a single directory.
type Store struct {
	dir string
}

// NewStore creates the blob directory if needed and returns a Store.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create blob dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes data under its content hash and returns the hash. Writing an
// already-stored payload is a no-op.
func (s *Store) Save(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	path := filepath.Join(s.dir, hash)
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write blob %s: %w", hash, err)
	}
	return hash, nil
}

// Path returns the on-disk path for a stored hash.
func (s *Store) Path(hash string) (string, error) {
	path := filepath.Join(s.dir, hash)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("blob %s not found: %w", hash, err)
	}
	return path, nil
}

// Read returns the content for a stored hash.
func (s *Store) Read(hash string) ([]byte, error) {
	path, err := s.Path(hash)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", hash, err)
	}
	return data, nil
}
