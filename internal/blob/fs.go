package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FSStore stores artifacts as files under a root directory, fanned out by
// the first two characters of the ref to keep directories small. Writes go
// to a temp file first and are renamed into place, so a ref never points at
// a partially written artifact.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed and returns an FSStore.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) Put(_ context.Context, data []byte) (string, error) {
	ref := uuid.New().String()
	dir := filepath.Join(s.root, ref[:2])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close blob: %w", err)
	}

	if err := os.Rename(tmpName, filepath.Join(dir, ref)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("publish blob: %w", err)
	}
	return ref, nil
}

func (s *FSStore) Get(_ context.Context, ref string) ([]byte, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", ref, err)
	}
	return data, nil
}

func (s *FSStore) Delete(_ context.Context, ref string) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %s: %w", ref, err)
	}
	return nil
}

// path validates the ref so that a crafted ref can never escape the root.
func (s *FSStore) path(ref string) (string, error) {
	if len(ref) < 2 || strings.ContainsAny(ref, "/\\.") {
		return "", ErrNotFound
	}
	return filepath.Join(s.root, ref[:2], ref), nil
}

var _ Store = (*FSStore)(nil)
