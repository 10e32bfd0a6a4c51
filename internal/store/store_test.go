package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/tatianab/hustle/internal/models"
)

func sampleSnapshot() *models.Snapshot {
	stop := int64(250)
	return &models.Snapshot{
		Version: models.SnapshotVersion,
		RunID:   "run-1",
		SavedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Rules:   models.DefaultRules(),
		Phase:   models.PhasePlaying,
		State: models.PlayerState{
			Profile:     models.Profile{Name: "Ada", Job: "Nurse"},
			Income:      models.IncomeSalary,
			Cash:        42000,
			Savings:     1000,
			Happiness:   70,
			CurrentTurn: 5,
			Salary:      150000,
		},
		History: []models.LedgerEntry{{Turn: 4, Title: "Rent Day", NetCash: -5000, BalanceAfter: 42000}},
		Holdings: []models.Holding{
			{AssetID: "mtn-ng", Units: 3, AverageCost: decimal.RequireFromString("281.3333"), StopLoss: &stop},
		},
		Catalog: []models.Asset{{ID: "mtn-ng", Price: 290, History: []int64{280, 290}}},
	}
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot on empty store, got %v", err)
	}

	snap := sampleSnapshot()
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.RunID != "run-1" || got.State.Cash != 42000 || got.State.CurrentTurn != 5 {
		t.Fatalf("unexpected snapshot %+v", got.State)
	}
	if len(got.Holdings) != 1 || !got.Holdings[0].AverageCost.Equal(snap.Holdings[0].AverageCost) {
		t.Fatalf("holdings not preserved: %+v", got.Holdings)
	}
	if got.Holdings[0].StopLoss == nil || *got.Holdings[0].StopLoss != 250 {
		t.Fatalf("stop loss not preserved")
	}

	// overwrite
	snap.State.CurrentTurn = 6
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.State.CurrentTurn != 6 {
		t.Fatalf("save should overwrite, got turn %d", got.State.CurrentTurn)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot after clear, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "saves")
	testStore(t, NewFileStore(dir))
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	for i := 0; i < 3; i++ {
		if err := s.Save(context.Background(), sampleSnapshot()); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != fileName {
		t.Fatalf("unexpected files in save dir: %v", entries)
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	s := NewMemoryStore()
	snap := sampleSnapshot()
	if err := s.Save(context.Background(), snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap.State.Cash = -1
	got, _ := s.Load(context.Background())
	if got.State.Cash != 42000 {
		t.Fatalf("saved snapshot changed through caller's pointer")
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()
	testStore(t, NewRedisStore(rdb))
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()
	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	testStore(t, s)
}
