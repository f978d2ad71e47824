// Package server exposes the alert engine over HTTP. Actor identity comes
// from trusted headers set by the surrounding tracker's proxy; the engine
// derives the access scope from them on every request.
package server

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/deptrack/deptrack/internal/alerting"
	"github.com/deptrack/deptrack/internal/config"
	"github.com/deptrack/deptrack/internal/sqlite"
	"github.com/deptrack/deptrack/pkg/models"
)

// Options holds the dependencies for the HTTP server.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *sqlite.DB
	Engine *alerting.Engine
}

// Server is the HTTP API for the alert engine.
type Server struct {
	app    *fiber.App
	config *config.Config
	log    *slog.Logger
	sqlite *sqlite.DB
	engine *alerting.Engine
}

// New creates the server and registers its routes.
func New(opts Options) *Server {
	s := &Server{
		config: opts.Config,
		log:    opts.Logger.With("component", "server"),
		sqlite: opts.DB,
		engine: opts.Engine,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "deptrack",
		IdleTimeout:           opts.Config.Server.IdleTimeout,
		DisableStartupMessage: true,
	})
	s.app.Use(recover.New())
	s.app.Use(requestid.New())

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/metrics", s.handleMetrics)

	api := s.app.Group("/api/v1")
	api.Get("/alerts", s.handleListAlerts)
	api.Get("/alerts/:courseID/:key", s.handleGetAlertState)
	api.Post("/alerts/:courseID/:key/ack", s.handleAcknowledgeAlert)
	api.Post("/alerts/:courseID/:key/snooze", s.handleSnoozeAlert)
	api.Post("/alerts/:courseID/:key/ignore", s.handleIgnoreAlert)
	api.Post("/alerts/:courseID/:key/reopen", s.handleReopenAlert)
}

// Start begins listening on the configured address. It blocks until the
// listener stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.log.Info("starting HTTP server", "address", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"status": "ok"})
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	var buf bytes.Buffer
	metrics.WritePrometheus(&buf, true)
	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	return c.Send(buf.Bytes())
}

// actorFromRequest builds the actor from the identity headers. Empty
// headers yield an actor that resolves to no scope.
func actorFromRequest(c *fiber.Ctx) models.Actor {
	return models.Actor{
		Name:       c.Get("X-Actor"),
		Role:       c.Get("X-Role"),
		Department: c.Get("X-Department"),
	}
}
