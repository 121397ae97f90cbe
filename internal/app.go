// Package internal contains core application functionality
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/oschwald/geoip2-golang"

	v1 "dinostats/api/v1"
	"dinostats/internal/config"
	"dinostats/internal/database"
	"dinostats/internal/events"
	"dinostats/internal/pkg/geoip"
	"dinostats/internal/stats"
)

// Application holds the configured store, enricher and HTTP server.
type Application struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    stats.Store
	Enricher *events.Enricher
	Server   *fiber.App

	geoDB   *geoip2.Reader
	closers []func(context.Context) error
}

// NewApp creates a new application instance with default settings
func NewApp(ctx context.Context) (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithConfig(ctx, cfg, cartridge.NewLogger(cfg, nil))
}

// NewAppWithConfig creates a new application with the provided config and logger.
func NewAppWithConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	app := &Application{Config: cfg, Logger: logger}

	store, closer, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.Store = store
	app.closers = append(app.closers, closer)

	app.geoDB = geoip.Open(cfg.GeoDBPath, logger)
	app.Enricher = events.NewEnricher(geoip.Resolver(app.geoDB), logger)

	app.Server = fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		BodyLimit:             cfg.BodyLimitBytes,
		DisableStartupMessage: true,
	})
	MountRoutes(app.Server, cfg, v1.NewHandler(app.Store, app.Enricher, logger))

	return app, nil
}

// OpenStore connects the configured snapshot backend. SQLite databases are
// migrated on open. The returned func releases the connection.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (stats.Store, func(context.Context) error, error) {
	if cfg.UsesMongo() {
		store, err := database.NewMongoStore(ctx, cfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize mongo store: %w", err)
		}
		return store, store.Close, nil
	}

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := dbManager.MigrateDatabase(); err != nil {
		dbManager.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return dbManager.Store(), func(context.Context) error { return dbManager.Close() }, nil
}

// Start serves the API on the configured port and blocks until the server stops.
func (a *Application) Start() error {
	a.Logger.Info("Starting HTTP server", slog.String("port", a.Config.GetPort()))
	return a.Server.Listen(":" + a.Config.GetPort())
}

// StartAsync serves the API in the background. Listen errors are logged.
func (a *Application) StartAsync() {
	go func() {
		if err := a.Start(); err != nil {
			a.Logger.Error("HTTP server stopped", slog.Any("error", err))
		}
	}()
}

// Shutdown stops the server and releases storage and the GeoIP database.
func (a *Application) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Server.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop server: %w", err))
	}
	for _, closer := range a.closers {
		if err := closer(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.geoDB != nil {
		if err := a.geoDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
