package http

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"brandlens/internal/cache"
	"brandlens/internal/config"
	"brandlens/internal/metrics"
	"brandlens/internal/safety"
	"brandlens/internal/scan"
)

type Server struct {
	app         *fiber.App
	config      *config.Config
	registry    *scan.Registry
	policy      *safety.Policy
	screenshots *cache.ScreenshotStore
	logger      *slog.Logger
}

func NewServer(cfg *config.Config, reg *scan.Registry, policy *safety.Policy, shots *cache.ScreenshotStore, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	s := &Server{
		app:         app,
		config:      cfg,
		registry:    reg,
		policy:      policy,
		screenshots: shots,
		logger:      logger,
	}

	// Request logging + metrics middleware.
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)

		err := c.Next()

		status := c.Response().StatusCode()
		metrics.RecordRequest(c.Method(), c.Route().Path, status)

		if logger != nil {
			logger.Info("request",
				"request_id", reqID,
				"method", c.Method(),
				"path", c.Path(),
				"status", status,
				"latency_ms", time.Since(start).Milliseconds(),
			)
		}
		return err
	})

	app.Get("/healthz", s.healthHandler)

	// Prometheus-style metrics endpoint.
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	app.Get("/screenshot/:id", s.screenshotHandler)

	v1 := app.Group("/v1")
	v1.Post("/scan", s.startScanHandler)
	v1.Get("/scan/:id", s.scanSnapshotHandler)
	v1.Get("/scan/:id/events", s.scanEventsHandler)

	return s
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error { return s.app.Shutdown() }

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) healthHandler(c *fiber.Ctx) error {
	// Shallow health: process is up.
	if c.Query("deep") != "true" {
		return c.JSON(fiber.Map{"status": "ok"})
	}

	// Deep health: verify the cache dir is writable and report the browser
	// fallback state. LLM reachability is probed lazily per scan.
	cacheStatus := "ok"
	probe := filepath.Join(s.config.Cache.Dir, ".healthz")
	if err := os.MkdirAll(s.config.Cache.Dir, 0o755); err != nil {
		cacheStatus = "error"
	} else if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		cacheStatus = "error"
	} else {
		_ = os.Remove(probe)
	}

	browserStatus := "disabled"
	if s.config.Fetcher.BrowserEnabled {
		browserStatus = "enabled"
	}

	status := "ok"
	if cacheStatus != "ok" {
		status = "error"
	}

	return c.JSON(fiber.Map{
		"status":  status,
		"cache":   cacheStatus,
		"browser": browserStatus,
	})
}
