package middleware

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"

	"tasknest/pkg/auth"
)

// ServiceAuth verifies the service JWT the channel adapter attaches to every
// webhook call.
func ServiceAuth(jwtAuth *auth.ServiceJWTAuth) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if jwtAuth == nil {
			// Never allow auth bypass in production.
			if os.Getenv("ENVIRONMENT") == "production" {
				log.Fatal("❌ CRITICAL: service auth not configured in production")
			}
			log.Println("⚠️ Auth skipped: JWT not configured (development mode)")
			c.Locals("service", "dev")
			return c.Next()
		}

		token, err := auth.ExtractToken(c.Get("Authorization"))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid authorization token",
			})
		}

		service, err := jwtAuth.VerifyToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("service", service)
		return c.Next()
	}
}
