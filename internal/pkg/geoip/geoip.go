package geoip

import (
	"log/slog"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"

	"dinostats/internal/events"
)

// Open opens the GeoLite2 country database at path.
// Returns nil if the path is empty or the file does not exist (GeoIP is optional).
func Open(path string, logger *slog.Logger) *geoip2.Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		logger.Debug("GeoIP database path not configured - country lookups disabled")
		return nil
	}

	fileInfo, err := os.Stat(path)
	if os.IsNotExist(err) {
		logger.Info("GeoLite2 database not found - country lookups disabled",
			slog.String("path", path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return nil
	} else if err != nil {
		logger.Warn("Error checking GeoLite2 database file",
			slog.String("path", path),
			slog.Any("error", err))
		return nil
	}

	db, err := geoip2.Open(path)
	if err != nil {
		logger.Error("Failed to open GeoLite2 database",
			slog.String("path", path),
			slog.Any("error", err))
		return nil
	}

	testIP := net.ParseIP("8.8.8.8")
	if country, err := db.Country(testIP); err != nil {
		logger.Warn("Database opened but test lookup failed",
			slog.String("test_ip", "8.8.8.8"),
			slog.Any("error", err))
	} else {
		logger.Debug("Test lookup successful",
			slog.String("test_ip", "8.8.8.8"),
			slog.String("country", country.Country.IsoCode))
	}

	logger.Info("GeoLite2 database initialized successfully",
		slog.String("path", path),
		slog.Int64("size_bytes", fileInfo.Size()))
	return db
}

// Resolver returns db as a country resolver, or nil when db is nil.
func Resolver(db *geoip2.Reader) events.CountryResolver {
	if db == nil {
		return nil
	}
	return db
}
