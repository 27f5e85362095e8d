package middleware

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

const (
	messageLimit  = 30
	messageWindow = time.Minute
)

// RateCounter counts requests against a fixed window, shared across
// instances.
type RateCounter interface {
	CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (int64, bool, error)
}

// MessageRateLimit bounds inbound webhook traffic per user. Chat channels
// retry aggressively; the dedup layer handles duplicates, this handles
// floods. With a Redis-backed counter the limit holds across instances;
// without one it falls back to an in-process limiter.
func MessageRateLimit(counter RateCounter) fiber.Handler {
	if counter == nil {
		return limiter.New(limiter.Config{
			Max:          messageLimit,
			Expiration:   messageWindow,
			KeyGenerator: messageRateKey,
			LimitReached: rateLimitReached,
		})
	}

	return func(c *fiber.Ctx) error {
		remaining, exceeded, err := counter.CheckRateLimit(c.Context(), "rl:msg:"+messageRateKey(c), messageLimit, messageWindow)
		if err != nil {
			// Counter outage must not take the webhook down with it.
			log.Printf("⚠️ [RATELIMIT] Counter unavailable, letting request through: %v", err)
			return c.Next()
		}
		if exceeded {
			return rateLimitReached(c)
		}
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		return c.Next()
	}
}

// messageRateKey rate-limits per user, not per adapter IP: one adapter
// fronts every user. The adapter mirrors the sender into this header.
func messageRateKey(c *fiber.Ctx) string {
	if userID := c.Get("X-User-Id"); userID != "" {
		return userID
	}
	return c.IP()
}

func rateLimitReached(c *fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error": "Too many messages, slow down",
	})
}

// GlobalRateLimit is a coarse per-IP ceiling across all endpoints.
func GlobalRateLimit() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        200,
		Expiration: time.Minute,
	})
}
