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
	"strconv"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dinostats/internal/database"
	"dinostats/internal/events"
	"dinostats/internal/pkg/async"
	"dinostats/internal/stats"
)

var errNoStore = errors.New("snapshot store unavailable")

const fileReaders = 4

// MigrateCommand prepares the configured storage backend
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, env *Environment, args []string) error {
	if env.Config.UsesMongo() {
		store, err := database.NewMongoStore(ctx, env.Config, env.Logger)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		defer store.Close(ctx)
		if err := store.Health(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Fprintln(env.Out, "MongoDB collection ready")
		return nil
	}

	dbManager := database.NewDBManager(env.Config, env.Logger)
	if err := dbManager.Init(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbManager.Close()

	if err := dbManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintln(env.Out, "Migrations completed successfully")
	return nil
}

// AggregateCommand merges snapshot files offline and prints the results
type AggregateCommand struct{}

func (c *AggregateCommand) Name() string { return "aggregate" }
func (c *AggregateCommand) Description() string {
	return "Merges snapshot files per day and prints the results as JSON"
}

func (c *AggregateCommand) Execute(ctx context.Context, env *Environment, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s <file> [file...]", c.Name())
	}

	files, err := readSnapshotFiles(ctx, args)
	if err != nil {
		return err
	}

	aggregator := stats.NewAggregator()
	for f, snapshots := range files {
		for i, s := range snapshots {
			if s.Date.IsZero() {
				return fmt.Errorf("%s: snapshot %d has no date", args[f], i)
			}
			aggregator.Add(stats.KeyFor(s.Date.Time), s)
		}
	}

	env.Logger.Debug("Aggregated snapshot files",
		slog.Int("files", len(args)),
		slog.Int("periods", len(aggregator.Keys())))
	return writeJSON(env.Out, aggregator.Finalize())
}

// IngestCommand merges snapshot files into the stored snapshot of a day
type IngestCommand struct{}

func (c *IngestCommand) Name() string { return "ingest" }
func (c *IngestCommand) Description() string {
	return "Merges snapshot files into the stored snapshot of a day"
}

func (c *IngestCommand) Execute(ctx context.Context, env *Environment, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s <key> <file> [file...]", c.Name())
	}
	if env.Store == nil {
		return errNoStore
	}

	t, err := stats.ParseKey(args[0])
	if err != nil {
		return err
	}
	key := stats.KeyFor(t)

	files, err := readSnapshotFiles(ctx, args[1:])
	if err != nil {
		return err
	}
	var partials []*stats.Snapshot
	for _, snapshots := range files {
		partials = append(partials, snapshots...)
	}

	merged, err := stats.Ingest(ctx, env.Store, key, partials...)
	if err != nil {
		return err
	}
	env.Logger.Info("Ingested snapshots", slog.String("key", key), slog.Int("count", len(partials)))
	return writeJSON(env.Out, merged)
}

// ShowCommand prints a stored snapshot
type ShowCommand struct{}

func (c *ShowCommand) Name() string        { return "show" }
func (c *ShowCommand) Description() string { return "Prints the stored snapshot of a day" }

func (c *ShowCommand) Execute(ctx context.Context, env *Environment, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <key>", c.Name())
	}
	if env.Store == nil {
		return errNoStore
	}

	t, err := stats.ParseKey(args[0])
	if err != nil {
		return err
	}

	snapshot, err := env.Store.Load(ctx, stats.KeyFor(t))
	if err != nil {
		return err
	}
	return writeJSON(env.Out, snapshot)
}

// ClassifyCommand prints the browser and operating system of a user agent
type ClassifyCommand struct{}

func (c *ClassifyCommand) Name() string { return "classify" }
func (c *ClassifyCommand) Description() string {
	return "Classifies a user agent string"
}

func (c *ClassifyCommand) Execute(ctx context.Context, env *Environment, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <user-agent>", c.Name())
	}

	analysis := events.AnalyzeGameInitPayload(&events.GameInitPayloadV1{UserAgent: args[0]})
	title := cases.Title(language.AmericanEnglish)

	fmt.Fprintf(env.Out, "Browser: %s %s\n", analysis.Browser.Name, analysis.Browser.Version)
	fmt.Fprintf(env.Out, "Engine:  %s\n", analysis.Browser.Engine)
	fmt.Fprintf(env.Out, "Context: %s\n", analysis.Browser.Context)
	fmt.Fprintf(env.Out, "OS:      %s %s\n", analysis.OperatingSystem.Name, analysis.OperatingSystem.Version)
	fmt.Fprintf(env.Out, "System:  %s\n", title.String(events.SystemBucket(analysis.OperatingSystem)))
	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, env *Environment, args []string) error {
	printUsage(env.Out)
	return nil
}

// readSnapshotFiles reads the files concurrently and returns their snapshots
// in argument order.
func readSnapshotFiles(ctx context.Context, paths []string) ([][]*stats.Snapshot, error) {
	tasks := make([]async.Task[[]*stats.Snapshot], len(paths))
	for i, path := range paths {
		tasks[i] = async.Task[[]*stats.Snapshot]{
			Name: strconv.Itoa(i),
			Execute: func(context.Context) ([]*stats.Snapshot, error) {
				return readSnapshots(path)
			},
		}
	}

	results := async.NewPool[[]*stats.Snapshot](fileReaders).Execute(ctx, tasks)

	files := make([][]*stats.Snapshot, len(paths))
	for i := range paths {
		result, ok := results[strconv.Itoa(i)]
		if !ok {
			return nil, ctx.Err()
		}
		if result.Err != nil {
			return nil, result.Err
		}
		files[i] = result.Data
	}
	return files, nil
}

// readSnapshots reads a file holding one snapshot or an array of them, in
// any schema version.
func readSnapshots(path string) ([]*stats.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	data = bytes.TrimSpace(data)
	items := []json.RawMessage{data}
	if len(data) > 0 && data[0] == '[' {
		items = nil
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	snapshots := make([]*stats.Snapshot, 0, len(items))
	for i, item := range items {
		s, err := stats.DecodeCurrent(item)
		if err != nil {
			return nil, fmt.Errorf("%s: snapshot %d: %w", path, i, err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, nil
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
