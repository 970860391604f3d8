// Package server exposes metrics and health probes of a running session.
package server

import (
	"context"
	"sync"

	"feedsync/internal/handlers"
	"feedsync/internal/observability"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
)

// fiberprometheus registers its collectors on the default registry, which
// accepts them only once per process.
var promMiddleware = sync.OnceValue(func() *fiberprometheus.FiberPrometheus {
	return fiberprometheus.New("feedsync")
})

// Server is the local status endpoint.
type Server struct {
	app  *fiber.App
	addr string
}

// NewServer builds the status app for h, listening on addr once started.
func NewServer(addr string, h *handlers.Handlers) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "feedsync",
		DisableStartupMessage: true,
	})

	prom := promMiddleware()
	app.Use(prom.Middleware)
	prom.RegisterAt(app, "/metrics")

	app.Get("/health/live", h.Live)
	app.Get("/health/ready", h.Ready)
	// Backwards-compatible alias for scripts that probe /health.
	app.Get("/health", h.Ready)
	app.Get("/status", h.Status)

	return &Server{app: app, addr: addr}
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Start serves in the background. Listen errors are logged.
func (s *Server) Start() {
	go func() {
		observability.GlobalLogger.Info("status server starting", "addr", s.addr)
		if err := s.app.Listen(s.addr); err != nil {
			observability.GlobalLogger.Error("status server stopped", "error", err)
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
