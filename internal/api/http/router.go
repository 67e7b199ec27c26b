package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ticketforge/ticket-bot/internal/api/http/handlers"
	"github.com/ticketforge/ticket-bot/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Panels  *handlers.PanelsHandler
	Metrics *observability.Metrics
}

// RegisterRoutes wires HTTP routes. End-user interaction happens through
// the chat platform; this server carries operational endpoints and the
// admin panel-configuration API.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", func(c *fiber.Ctx) error {
		return c.JSON(cfg.Metrics.Snapshot())
	})

	api := app.Group("/api/v1")
	api.Get("/panels", cfg.Panels.ListPanels)
	api.Post("/panels", cfg.Panels.CreatePanel)
	api.Get("/panels/:id", cfg.Panels.GetPanel)
	api.Delete("/panels/:id", cfg.Panels.DeletePanel)
	api.Post("/panels/:id/buttons", cfg.Panels.AddButton)
	api.Post("/panels/:id/menus", cfg.Panels.AddMenu)
	api.Post("/panels/:id/menus/:menuID/options", cfg.Panels.AddOption)
	api.Patch("/triggers/:kind/:id", cfg.Panels.UpdateTrigger)
}
