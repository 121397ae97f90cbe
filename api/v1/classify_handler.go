package v1

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"dinostats/internal/events"
)

// Classify analyzes a game-init payload. A payload without a user agent or IP
// address takes them from the request.
func (h *Handler) Classify(c *fiber.Ctx) error {
	payload, err := events.DecodeGameInitPayload(c.Body())
	if err != nil {
		h.logger.Debug("Failed to decode game-init payload", slog.Any("error", err))
		return badRequest(c, errInvalidRequest)
	}

	base := payload.Base()
	if base.UserAgent == "" {
		base.UserAgent = c.Get(fiber.HeaderUserAgent)
	}
	if base.IPAddress == "" {
		base.IPAddress = clientIP(c)
	}

	profile := h.enricher.Profile(payload)
	h.logger.Debug("Classified game client",
		slog.String("browser", string(profile.Browser.Name)),
		slog.String("os", string(profile.OperatingSystem.Name)),
		slog.String("system", profile.System),
		slog.String("country", profile.CountryCode))

	return c.JSON(profile)
}
