// Package api exposes the engine over HTTP for a local companion UI.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/dosewise-cli/internal/app"
	"github.com/gmsas95/dosewise-cli/internal/config"
)

// Server handles the HTTP API
type Server struct {
	app    *fiber.App
	core   *app.App
	config *config.Config
	logger *zap.Logger
}

// New creates a new API server
func New(core *app.App, cfg *config.Config, logger *zap.Logger) *Server {
	fiberApp := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	s := &Server{
		app:    fiberApp,
		core:   core,
		config: cfg,
		logger: logger,
	}

	s.setupRoutes()
	return s
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}

// Router exposes the fiber app, used by handler tests.
func (s *Server) Router() *fiber.App {
	return s.app
}
