package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"tasknest/internal/database"
	"tasknest/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	mongodb *database.MongoDB
	redis   *services.RedisService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(mongodb *database.MongoDB, redis *services.RedisService) *HealthHandler {
	return &HealthHandler{mongodb: mongodb, redis: redis}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"
	deps := fiber.Map{}

	if err := h.mongodb.Ping(c.Context()); err != nil {
		status = "degraded"
		deps["mongodb"] = err.Error()
	} else {
		deps["mongodb"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(c.Context()); err != nil {
			status = "degraded"
			deps["redis"] = err.Error()
		} else {
			deps["redis"] = "ok"
		}
	}

	return c.JSON(fiber.Map{
		"status":       status,
		"dependencies": deps,
		"timestamp":    time.Now().Format(time.RFC3339),
	})
}
