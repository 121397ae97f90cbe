package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dinostats/internal/config"
	"dinostats/internal/stats"
)

func testEnvironment(t *testing.T, store stats.Store) (*Environment, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	return &Environment{
		Config: &config.Config{Environment: config.Test},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:  store,
		Out:    out,
	}, out
}

func testStore(t *testing.T) stats.Store {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:cli_%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&stats.SnapshotRecord{}))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return stats.NewSQLStore(db)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFindCommand(t *testing.T) {
	for _, name := range []string{"migrate", "aggregate", "ingest", "show", "classify", "help"} {
		cmd := findCommand(name)
		require.NotNil(t, cmd, name)
		assert.Equal(t, name, cmd.Name())
		assert.NotEmpty(t, cmd.Description())
	}
	assert.Nil(t, findCommand("unknown"))
}

func TestHelpCommand(t *testing.T) {
	env, out := testEnvironment(t, nil)
	require.NoError(t, (&HelpCommand{}).Execute(context.Background(), env, nil))

	assert.Contains(t, out.String(), "Usage: statsctl")
	for _, cmd := range commands {
		assert.Contains(t, out.String(), cmd.Name()+": "+cmd.Description())
	}
}

func TestAggregateCommand(t *testing.T) {
	first := writeFile(t, "first.json", `[
		{"date": "2024-07-02", "users": {"new": 1}, "version": 3},
		{"date": "2024-07-01", "users": {"new": 2}, "games": {"new": 2, "completed": 1}, "version": 3}
	]`)
	second := writeFile(t, "second.json", `{"date": "2024-07-01", "users": {"new": 3}, "devices": {"total": 2, "systems": {"ios": {"total": 2}}}}`)

	env, out := testEnvironment(t, nil)
	require.NoError(t, (&AggregateCommand{}).Execute(context.Background(), env, []string{first, second}))

	var result []*stats.Snapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.Len(t, result, 2)

	assert.Equal(t, "2024-07-01", stats.KeyFor(result[0].Date.Time))
	assert.Equal(t, stats.Number(5), result[0].Users.New)
	assert.Equal(t, stats.Number(0.5), result[0].Games.Ratio)
	assert.Equal(t, stats.Number(1), result[0].Devices.Systems.Apple.Ratio)
	assert.Equal(t, "2024-07-02", stats.KeyFor(result[1].Date.Time))
}

func TestAggregateCommandErrors(t *testing.T) {
	env, _ := testEnvironment(t, nil)
	cmd := &AggregateCommand{}
	ctx := context.Background()

	assert.Error(t, cmd.Execute(ctx, env, nil))
	assert.Error(t, cmd.Execute(ctx, env, []string{filepath.Join(t.TempDir(), "missing.json")}))
	assert.Error(t, cmd.Execute(ctx, env, []string{writeFile(t, "undated.json", `{"users": {"new": 1}}`)}))
	assert.Error(t, cmd.Execute(ctx, env, []string{writeFile(t, "broken.json", `[{"users": `)}))

	err := cmd.Execute(ctx, env, []string{writeFile(t, "future.json", `{"date": "2024-07-01", "version": 4}`)})
	assert.True(t, errors.Is(err, stats.ErrUnsupportedVersion))
}

func TestIngestAndShowCommands(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	partials := writeFile(t, "partials.json", `[{"users": {"new": 2}}, {"users": {"new": 3}, "events": {"jump": 4}}]`)

	env, out := testEnvironment(t, store)
	require.NoError(t, (&IngestCommand{}).Execute(ctx, env, []string{"2024-07-01", partials}))

	var merged stats.Snapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &merged))
	assert.Equal(t, stats.Number(5), merged.Users.New)

	env, out = testEnvironment(t, store)
	require.NoError(t, (&ShowCommand{}).Execute(ctx, env, []string{"2024-07-01T08:00:00Z"}))

	var shown stats.Snapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &shown))
	assert.Equal(t, stats.Number(5), shown.Users.New)
	assert.Equal(t, stats.Number(4), shown.Events["jump"])

	err := (&ShowCommand{}).Execute(ctx, env, []string{"2024-07-09"})
	assert.True(t, errors.Is(err, stats.ErrNotFound))
}

func TestStoreCommandsWithoutStore(t *testing.T) {
	env, _ := testEnvironment(t, nil)
	ctx := context.Background()

	err := (&ShowCommand{}).Execute(ctx, env, []string{"2024-07-01"})
	assert.True(t, errors.Is(err, errNoStore))

	err = (&IngestCommand{}).Execute(ctx, env, []string{"2024-07-01", "partials.json"})
	assert.True(t, errors.Is(err, errNoStore))
}

func TestClassifyCommand(t *testing.T) {
	env, out := testEnvironment(t, nil)
	ua := "Mozilla/5.0 (Linux; Android 11; SM-G998B Build/RP1A.200720.012; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/91.0.4472.120 Mobile Safari/537.36"

	require.NoError(t, (&ClassifyCommand{}).Execute(context.Background(), env, []string{ua}))

	output := out.String()
	assert.Contains(t, output, "Browser: Chrome 91.0.4472.120")
	assert.Contains(t, output, "Context: WebView")
	assert.Contains(t, output, "OS:      Android 11")
	assert.Contains(t, output, "System:  Android")

	assert.Error(t, (&ClassifyCommand{}).Execute(context.Background(), env, nil))
}
