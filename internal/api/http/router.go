package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/parkwise/pcn-service/internal/api/http/handlers"
	"github.com/parkwise/pcn-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Challenges     *handlers.ChallengesHandler
	Reminders      *handlers.RemindersHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)

	// Cron-facing; authenticated by run token, not a user session.
	app.Post("/reminders/run", cfg.Reminders.Run)

	protected := app.Group("", cfg.AuthMiddleware.Handle)
	protected.Post("/vehicles", cfg.Tickets.RegisterVehicle)
	protected.Post("/tickets", cfg.Tickets.CreateTicket)
	protected.Get("/tickets", cfg.Tickets.ListTickets)
	protected.Get("/tickets/:id", cfg.Tickets.GetTicket)
	protected.Post("/tickets/:id/correspondence", cfg.Tickets.RecordCorrespondence)
	protected.Post("/tickets/:id/price-increases", cfg.Tickets.AddPriceIncrease)

	protected.Post("/challenges/:ticketId", cfg.Challenges.Create)
	protected.Post("/challenges/:jobId/dispatch", cfg.Challenges.Dispatch)
	protected.Get("/challenges/:jobId/status", cfg.Challenges.Status)
	protected.Post("/challenges/:jobId/cancel", cfg.Challenges.Cancel)
}
