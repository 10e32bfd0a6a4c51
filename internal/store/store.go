// Package store persists the single active run. Backends: YAML file
// (default for the terminal game), in-memory (tests), Redis and PostgreSQL
// (for the server).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tatianab/hustle/internal/models"
)

// Key is the fixed storage key of the active run.
const Key = "hustle:run"

// ErrNoSnapshot is returned by Load when nothing has been saved.
var ErrNoSnapshot = errors.New("no saved run")

// Store holds one snapshot, overwritten on every Save.
type Store interface {
	Save(ctx context.Context, s *models.Snapshot) error
	Load(ctx context.Context) (*models.Snapshot, error)
	Clear(ctx context.Context) error
}

func encodeJSON(s *models.Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

func decodeJSON(data []byte) (*models.Snapshot, error) {
	var s models.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version != models.SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	return &s, nil
}
