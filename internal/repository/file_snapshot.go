package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	domrepo "TradeDesk/internal/domain/repository"
)

// FileSnapshotStore keeps the snapshot in one JSON file. Saves go through a
// temp file in the same directory, are synced, then renamed over the target.
type FileSnapshotStore struct {
	path string
}

func NewFileSnapshotStore(path string) (*FileSnapshotStore, error) {
	if path == "" {
		return nil, errors.New("file snapshot: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file snapshot: create dir: %w", err)
	}
	return &FileSnapshotStore{path: path}, nil
}

func (s *FileSnapshotStore) Path() string { return s.path }

func (s *FileSnapshotStore) Load(_ context.Context) ([]byte, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domrepo.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("file snapshot: read: %w", err)
	}
	if len(b) == 0 {
		return nil, domrepo.ErrSnapshotNotFound
	}
	return b, nil
}

func (s *FileSnapshotStore) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("file snapshot: create temp: %w", err)
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("file snapshot: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("file snapshot: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("file snapshot: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("file snapshot: rename: %w", err)
	}
	return nil
}

func (s *FileSnapshotStore) Close() error { return nil }
