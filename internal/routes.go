package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "dinostats/api/v1"
	"dinostats/internal/config"
)

// publicCORSConfig is shared by every API endpoint; game clients call the
// classifier cross-origin.
var publicCORSConfig = cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, User-Agent, If-None-Match",
}

// MountRoutes registers the API on app.
func MountRoutes(app *fiber.App, cfg *config.Config, handler *v1.Handler) {
	// Rate limiting only applies in production; it would interfere with tests.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Game clients call classify once per session.
	classifyRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	app.Get("/health", handler.Health)

	api := app.Group("/api/v1", cors.New(publicCORSConfig))
	api.Post("/classify", classifyRateLimiter, handler.Classify)

	statsGroup := api.Group("/stats")
	statsGroup.Post("/aggregate", handler.Aggregate)
	statsGroup.Get("/", handler.List)
	statsGroup.Post("/:key/ingest", handler.Ingest)
	statsGroup.Get("/:key", handler.Show)
}
