package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/support-desk/internal/api/http/handlers"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health          *handlers.HealthHandler
	Users           *handlers.UsersHandler
	Tickets         *handlers.TicketsHandler
	AuthMiddleware  *auth.AuthMiddleware
	Metrics         *observability.Metrics
	AnonymousIntake bool
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	requireAuth := cfg.AuthMiddleware.Handle

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Post("/forgot-password", cfg.Users.ForgotPassword)
	authGroup.Post("/verify-otp", cfg.Users.VerifyOTP)
	authGroup.Post("/reset-password", cfg.Users.ResetPassword)
	authGroup.Get("/me", requireAuth, cfg.Users.Me)

	profile := app.Group("/profile", requireAuth)
	profile.Put("/update", cfg.Users.UpdateProfile)
	profile.Put("/change-email", cfg.Users.ChangeEmail)
	profile.Put("/change-password", cfg.Users.ChangePassword)
	app.Patch("/users/:id/role", requireAuth, auth.RequireRole(domain.RoleAdmin), cfg.Users.ChangeRole)

	intakeAuth := requireAuth
	if cfg.AnonymousIntake {
		intakeAuth = cfg.AuthMiddleware.Optional
	}

	tickets := app.Group("/tickets")
	tickets.Post("/", intakeAuth, cfg.Tickets.CreateTicket)
	tickets.Get("/", requireAuth, cfg.Tickets.ListTickets)
	tickets.Get("/token/:token", requireAuth, cfg.Tickets.GetTicketByToken)
	tickets.Get("/:id", requireAuth, cfg.Tickets.GetTicket)
	tickets.Patch("/:id/status", requireAuth, auth.RequireRole(domain.RoleSupport, domain.RoleAdmin), cfg.Tickets.UpdateStatus)
	tickets.Delete("/:id", requireAuth, cfg.Tickets.DeleteTicket)
}
