// Package v1 contains the JSON API handlers.
package v1

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"dinostats/internal/events"
	"dinostats/internal/stats"
)

const (
	errInvalidRequest  = "Invalid request"
	errInvalidKey      = "Invalid period key"
	errSnapshotMissing = "Snapshot not found"
	errStorage         = "Failed to access snapshot storage"
	errConflict        = "Snapshot is being updated, retry later"
)

// Handler serves the stats and classification endpoints.
type Handler struct {
	store    stats.Store
	enricher *events.Enricher
	logger   *slog.Logger
}

func NewHandler(store stats.Store, enricher *events.Enricher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if enricher == nil {
		enricher = events.NewEnricher(nil, logger)
	}
	return &Handler{store: store, enricher: enricher, logger: logger}
}

// Health reports that the server is up.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func respondError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return respondError(c, http.StatusBadRequest, "INVALID_REQUEST", message)
}
