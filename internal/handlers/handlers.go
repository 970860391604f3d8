// Package handlers serves the local status endpoints of a running session.
package handlers

import (
	"context"
	"time"

	"feedsync/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// StatusReporter is the part of the session the handlers read.
type StatusReporter interface {
	Status() session.Status
}

// Handlers answers liveness, readiness and status probes.
type Handlers struct {
	Session StatusReporter
	// Redis is pinged by the readiness probe when set.
	Redis *redis.Client
}

// Live handles liveness probe requests
func (h *Handlers) Live(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// Ready reports whether the session is signed in, its realtime channel is
// not down and Redis answers.
func (h *Handlers) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	st := h.Session.Status()

	redisStatus := "disabled"
	if h.Redis != nil {
		redisStatus = "healthy"
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	healthy := st.SignedIn &&
		st.Realtime != "disconnected" &&
		redisStatus != "unhealthy"

	status := fiber.StatusOK
	overall := "healthy"
	if !healthy {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status":    overall,
		"signedIn":  st.SignedIn,
		"realtime":  st.Realtime,
		"redis":     redisStatus,
		"timestamp": time.Now(),
	})
}

// Status returns the session summary.
func (h *Handlers) Status(c *fiber.Ctx) error {
	return c.JSON(h.Session.Status())
}
