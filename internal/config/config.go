// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Storage backends for stats snapshots
const (
	SQLiteBackend = "sqlite"
	MongoBackend  = "mongo"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`

	// File paths
	DatabasePath string `mapstructure:"storagepath"`
	DatabaseName string `mapstructure:"-"` // Derived from other settings
	GeoDBPath    string `mapstructure:"geodbpath"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Storage settings
	StorageBackend       string `mapstructure:"storagebackend"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`
	MongoURI             string `mapstructure:"mongouri"`
	MongoDatabase        string `mapstructure:"mongodatabase"`
	MongoCollection      string `mapstructure:"mongocollection"`

	// Maximum request body accepted by the HTTP API
	BodyLimitBytes int `mapstructure:"bodylimitbytes"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		c, err := Load()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = c
	})
	return cfg
}

// Load reads the configuration from defaults and DINOSTATS_* environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("appname", "dinostats")
	v.SetDefault("appport", "3000")
	v.SetDefault("environment", Development)
	v.SetDefault("loglevel", string(LogLevelDebug))
	v.SetDefault("storagepath", "storage")
	v.SetDefault("geodbpath", "storage/GeoLite2-Country.mmdb")
	v.SetDefault("logsdir", "logs")
	v.SetDefault("logsmaxsizeinmb", 20)
	v.SetDefault("logsmaxbackups", 10)
	v.SetDefault("logsmaxageindays", 30)
	v.SetDefault("storagebackend", SQLiteBackend)
	v.SetDefault("dbmaxopenconns", 0)
	v.SetDefault("dbmaxidleconns", 0)
	v.SetDefault("mongouri", "mongodb://localhost:27017")
	v.SetDefault("mongodatabase", "dinostats")
	v.SetDefault("mongocollection", "stats_snapshots")
	v.SetDefault("bodylimitbytes", 4*1024*1024)

	v.BindEnv("appname", "DINOSTATS_APP_NAME")
	v.BindEnv("appport", "DINOSTATS_APP_PORT")
	v.BindEnv("environment", "DINOSTATS_ENV")
	v.BindEnv("loglevel", "DINOSTATS_LOG_LEVEL")
	v.BindEnv("storagepath", "DINOSTATS_STORAGE_PATH")
	v.BindEnv("geodbpath", "DINOSTATS_GEO_DB_PATH")
	v.BindEnv("logsdir", "DINOSTATS_LOGS_DIR")
	v.BindEnv("logsmaxsizeinmb", "DINOSTATS_LOGS_MAX_SIZE_IN_MB")
	v.BindEnv("logsmaxbackups", "DINOSTATS_LOGS_MAX_BACKUPS")
	v.BindEnv("logsmaxageindays", "DINOSTATS_LOGS_MAX_AGE_IN_DAYS")
	v.BindEnv("storagebackend", "DINOSTATS_STORAGE_BACKEND")
	v.BindEnv("dbmaxopenconns", "DINOSTATS_DB_MAX_OPEN_CONNS")
	v.BindEnv("dbmaxidleconns", "DINOSTATS_DB_MAX_IDLE_CONNS")
	v.BindEnv("mongouri", "DINOSTATS_MONGO_URI")
	v.BindEnv("mongodatabase", "DINOSTATS_MONGO_DATABASE")
	v.BindEnv("mongocollection", "DINOSTATS_MONGO_COLLECTION")
	v.BindEnv("bodylimitbytes", "DINOSTATS_BODY_LIMIT_BYTES")

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c.DatabaseName = c.GetDatabasePath()
	return c, nil
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validBackends := map[string]bool{
		SQLiteBackend: true,
		MongoBackend:  true,
	}
	if !validBackends[c.StorageBackend] {
		return fmt.Errorf("invalid storage backend: %s", c.StorageBackend)
	}

	if c.StorageBackend == MongoBackend && c.MongoURI == "" {
		return fmt.Errorf("mongo storage backend requires DINOSTATS_MONGO_URI")
	}

	if c.BodyLimitBytes <= 0 {
		return fmt.Errorf("invalid body limit: %d", c.BodyLimitBytes)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// UsesMongo reports whether snapshots are kept in MongoDB.
func (c *Config) UsesMongo() bool {
	return c.StorageBackend == MongoBackend
}

// GetPort returns the HTTP server port.
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetAppName returns the application name.
func (c *Config) GetAppName() string {
	return c.AppName
}

// GetPublicDirectory returns the public/static assets directory (implements cartridge.Config).
// The service serves no static assets.
func (c *Config) GetPublicDirectory() string {
	return ""
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config).
// The service serves no static assets.
func (c *Config) GetAssetsPrefix() string {
	return ""
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise 1 in test and 10 elsewhere.
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
