package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/resolvemeq/agent-service/internal/api/http/handlers"
	"github.com/resolvemeq/agent-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	KB             *handlers.KBHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireUser())
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/replies", cfg.Tickets.AddReply)
	tickets.Post("/:id/close", cfg.Tickets.CloseTicket)

	staff := app.Group("/staff/tickets", cfg.AuthMiddleware.Handle, auth.RequireStaff())
	staff.Get("", cfg.StaffTickets.ListTickets)
	staff.Get("/export", cfg.StaffTickets.ExportTickets)
	staff.Get("/:id", cfg.StaffTickets.GetTicket)
	staff.Post("/:id/close", cfg.StaffTickets.CloseTicket)

	kb := app.Group("/kb/articles", cfg.AuthMiddleware.Handle)
	kb.Get("", cfg.KB.ListArticles)
	kb.Get("/:id", cfg.KB.GetArticle)
	kb.Post("/:id/rate", cfg.KB.RateArticle)

	bot := app.Group("/integrations/bot", cfg.AuthMiddleware.HandleBot)
	bot.Post("/tickets", cfg.Tickets.IngestTicket)
	bot.Get("/tickets/:key", cfg.Tickets.LookupTicket)
}
