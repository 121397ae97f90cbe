package database

import (
	"log/slog"
	"sync"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"dinostats/internal/config"
	"dinostats/internal/stats"
)

// DBManager wraps cartridge's sqlite.Manager with the stats schema migrations.
type DBManager struct {
	*sqlite.Manager
	logger *slog.Logger

	storeOnce sync.Once
	store     *stats.SQLStore
}

// NewDBManager creates a new database manager using cartridge's sqlite.Manager.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	sqliteCfg := sqlite.Config{
		Path:         cfg.DatabaseName,
		MaxOpenConns: cfg.GetMaxOpenConns(),
		MaxIdleConns: cfg.GetMaxIdleConns(),
		Logger:       logger,
		EnableWAL:    true,
		TxImmediate:  true,
		BusyTimeout:  5000,
	}

	return &DBManager{
		Manager: sqlite.NewManager(sqliteCfg),
		logger:  logger,
	}
}

// Init initializes the database connection.
func (dm *DBManager) Init() error {
	_, err := dm.Manager.Connect()
	return err
}

// MigrateDatabase creates or updates the snapshot table.
func (dm *DBManager) MigrateDatabase() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(&stats.SnapshotRecord{})
	})
	if err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}

// Store returns the snapshot store backed by the managed connection. Every
// call returns the same store so updates share one lock.
func (dm *DBManager) Store() *stats.SQLStore {
	dm.storeOnce.Do(func() {
		dm.store = stats.NewSQLStore(dm.GetConnection())
	})
	return dm.store
}

// Close checkpoints the WAL and closes the underlying connection pool.
func (dm *DBManager) Close() error {
	db := dm.GetConnection()
	if db == nil {
		return nil
	}
	if err := dm.CheckpointWAL("TRUNCATE"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL before close", slog.Any("error", err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
