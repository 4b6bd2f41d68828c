package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/spec-kit/marketplace-service/internal/api/http/handlers"
	"github.com/spec-kit/marketplace-service/internal/auth"
	"github.com/spec-kit/marketplace-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	Requests       *handlers.RequestsHandler
	Tickets        *handlers.TicketsHandler
	Chats          *handlers.ChatHandler
	Audit          *handlers.AuditHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/signup", cfg.Auth.Signup)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/refresh", cfg.Auth.Refresh)

	guard := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireAnyRole()}

	users := app.Group("/users", guard...)
	users.Get("/me", cfg.Users.Me)
	users.Put("/me", cfg.Users.UpdateMe)
	users.Get("/freelancers", cfg.Users.ListFreelancers)
	users.Get("/:id", cfg.Users.Get)
	users.Patch("/:id/ban", auth.RequireRole(domain.RoleSuperAdmin), cfg.Users.Ban)
	users.Delete("/:id", auth.RequireRole(domain.RoleSuperAdmin), cfg.Users.Delete)

	requests := app.Group("/requests", guard...)
	requests.Post("", cfg.Requests.Create)
	requests.Get("/sent", cfg.Requests.ListSent)
	requests.Get("/received", cfg.Requests.ListReceived)
	requests.Post("/:id/respond", cfg.Requests.Respond)
	requests.Post("/:id/cancel", cfg.Requests.Cancel)

	tickets := app.Group("/tickets", guard...)
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Put("/:id", cfg.Tickets.UpdateTicket)
	tickets.Patch("/:id/status", cfg.Tickets.UpdateStatus)
	tickets.Post("/:id/admin-respond", auth.RequireRole(domain.RoleSuperAdmin), cfg.Tickets.AdminRespond)

	chats := app.Group("/chats", guard...)
	chats.Post("", cfg.Chats.Open)
	chats.Get("", cfg.Chats.List)
	chats.Get("/:id/messages", cfg.Chats.Messages)
	chats.Post("/:id/messages", cfg.Chats.Send)
	chats.Post("/:id/seen", cfg.Chats.MarkSeen)
	chats.Get("/:id/unread", cfg.Chats.Unread)
	chats.Get("/:id/ws", cfg.Chats.Upgrade, websocket.New(cfg.Chats.Stream))

	app.Get("/audit", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleSuperAdmin), cfg.Audit.List)
}
