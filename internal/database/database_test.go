package database_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dinostats/internal/config"
	"dinostats/internal/database"
	"dinostats/internal/stats"
)

func setupDBManager(t *testing.T) *database.DBManager {
	t.Helper()

	cfg := &config.Config{
		Environment:  config.Test,
		DatabaseName: filepath.Join(t.TempDir(), "dinostats-test.db"),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dm := database.NewDBManager(cfg, logger)
	require.NoError(t, dm.Init())
	require.NoError(t, dm.MigrateDatabase())
	t.Cleanup(func() { dm.Close() })
	return dm
}

func TestDBManagerMigratesSnapshotTable(t *testing.T) {
	dm := setupDBManager(t)

	assert.True(t, dm.GetConnection().Migrator().HasTable(&stats.SnapshotRecord{}))

	// Migrations are repeatable.
	require.NoError(t, dm.MigrateDatabase())
}

func TestDBManagerStore(t *testing.T) {
	dm := setupDBManager(t)
	store := dm.Store()
	assert.Same(t, store, dm.Store())
	ctx := context.Background()

	_, err := store.Load(ctx, "2024-07-01")
	assert.True(t, errors.Is(err, stats.ErrNotFound))

	partial := stats.Empty("2024-07-01")
	partial.Users.New = 2
	partial.Users.Active = 4

	merged, err := stats.Ingest(ctx, store, "2024-07-01", partial)
	require.NoError(t, err)
	assert.Equal(t, stats.Number(2), merged.Users.New)

	loaded, err := store.Load(ctx, "2024-07-01")
	require.NoError(t, err)
	assert.Equal(t, merged, loaded)
}
