package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000, http://127.0.0.1:3000",
		AllowHeaders: "Origin, Content-Type, Accept, X-Device-Pin",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.app.Group("/api")

	api.Get("/medications", s.handleListMedications)
	api.Post("/medications", s.handleAddMedication)
	api.Get("/medications/:id", s.handleGetMedication)
	api.Put("/medications/:id", s.handleUpdateMedication)
	api.Delete("/medications/:id", s.handleRemoveMedication)
	api.Post("/medications/:id/refill", s.handleRecordRefill)
	api.Get("/medications/:id/supply", s.handleSupplyStatus)
	api.Get("/medications/:id/status", s.handleDoseStatus)
	api.Get("/medications/:id/deliveries", s.handleListDeliveries)

	api.Post("/doses", s.handleRecordDose)
	api.Get("/doses", s.handleListDoses)

	api.Get("/progress", s.handleProgress)

	api.Post("/scan", s.handleScan)

	api.Post("/pin", s.handleSetPin)
	api.Post("/pin/verify", s.handleVerifyPin)

	api.Post("/reset", s.pinGuard(), s.handleReset)

	s.app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"name": "dosewise", "api": "/api"})
	})
}
