package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tatianab/hustle/internal/models"
)

const fileName = "current.yaml"

// FileStore keeps the snapshot as YAML under a save directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path() string {
	return filepath.Join(s.dir, fileName)
}

// Save writes to a temp file and renames it so a crash never leaves a
// half-written run.
func (s *FileStore) Save(_ context.Context, snap *models.Snapshot) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	data, err := models.MarshalSnapshot(snap)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, fileName+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path())
}

func (s *FileStore) Load(_ context.Context) (*models.Snapshot, error) {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return models.UnmarshalSnapshot(data)
}

func (s *FileStore) Clear(_ context.Context) error {
	err := os.Remove(s.path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
