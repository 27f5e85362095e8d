package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

type fakeCounter struct {
	remaining int64
	exceeded  bool
	err       error
	lastKey   string
}

func (f *fakeCounter) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (int64, bool, error) {
	f.lastKey = key
	return f.remaining, f.exceeded, f.err
}

func newLimitedApp(counter RateCounter) *fiber.App {
	app := fiber.New()
	app.Post("/messages", MessageRateLimit(counter), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestMessageRateLimitAllowsUnderLimit(t *testing.T) {
	counter := &fakeCounter{remaining: 10}
	app := newLimitedApp(counter)

	req := httptest.NewRequest("POST", "/messages", nil)
	req.Header.Set("X-User-Id", "u1")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if counter.lastKey != "rl:msg:u1" {
		t.Errorf("counter keyed on %q, want per-user key", counter.lastKey)
	}
}

func TestMessageRateLimitRejectsWhenExceeded(t *testing.T) {
	app := newLimitedApp(&fakeCounter{exceeded: true})

	req := httptest.NewRequest("POST", "/messages", nil)
	req.Header.Set("X-User-Id", "u1")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
}

func TestMessageRateLimitFailsOpenOnCounterError(t *testing.T) {
	app := newLimitedApp(&fakeCounter{err: errors.New("redis down")})

	resp, err := app.Test(httptest.NewRequest("POST", "/messages", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("counter outage must fail open, status = %d", resp.StatusCode)
	}
}
