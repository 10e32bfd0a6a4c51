package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tatianab/hustle/internal/models"
)

const schema = `CREATE TABLE IF NOT EXISTS runs (
	key      TEXT PRIMARY KEY,
	snapshot JSONB NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore keeps the snapshot as one row of the runs table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the runs table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) Save(ctx context.Context, snap *models.Snapshot) error {
	data, err := encodeJSON(snap)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (key, snapshot, saved_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET snapshot = EXCLUDED.snapshot, saved_at = EXCLUDED.saved_at`,
		Key, data, snap.SavedAt)
	if err != nil {
		return fmt.Errorf("postgres save: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (*models.Snapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT snapshot FROM runs WHERE key = $1`, Key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("postgres load: %w", err)
	}
	return decodeJSON(data)
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM runs WHERE key = $1`, Key)
	return err
}
