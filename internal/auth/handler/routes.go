package handler

import (
	"github.com/Automobile-System/backend-sub001/internal/auth/domain"
	"github.com/Automobile-System/backend-sub001/internal/logging"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

// NewApp builds the fiber app with the shared error handler, panic recovery
// and request logging. Routing is case sensitive and strict so a path reaches a
// handler only in the exact form the access policy is written against.
func NewApp(logger logrus.FieldLogger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "automobile-auth",
		CaseSensitive:         true,
		StrictRouting:         true,
		ErrorHandler:          ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(logging.RequestLogger(logger))
	return app
}

type RouteConfig struct {
	Verifier TokenVerifier
	Limiter  Limiter
	Policy   AccessPolicy
	DB       Pinger
	Logger   logrus.FieldLogger
}

func RegisterRoutes(app *fiber.App, h *AuthHandler, rc RouteConfig) {
	if rc.DB != nil {
		app.Get("/healthz", Health(rc.DB))
	}

	limited := func(next fiber.Handler) []fiber.Handler {
		if rc.Limiter == nil {
			return []fiber.Handler{next}
		}
		return []fiber.Handler{RateLimit(rc.Limiter, rc.Logger), next}
	}

	// Credential endpoints sit ahead of the bearer check so a stale
	// Authorization header cannot block a login or refresh.
	public := app.Group("/api/v1/auth")
	public.Post("/register", limited(h.Register)...)
	public.Post("/login", limited(h.Login)...)
	public.Post("/refresh", limited(h.Refresh)...)
	public.Post("/logout", h.Logout)

	api := app.Group("/api/v1", Authenticate(rc.Verifier, rc.Logger), Authorize(rc.Policy))

	auth := api.Group("/auth")
	auth.Get("/me", h.Me)
	auth.Get("/sessions", h.Sessions)

	admin := api.Group("/admin", RequireRoles(domain.RoleAdmin))
	admin.Get("/users", h.GetAllUsers)
	admin.Patch("/users/:id/roles", h.UpdateUserRoles)
	admin.Post("/users/:id/unlock", h.UnlockUser)
	admin.Delete("/users/:id/sessions", h.ForceLogout)

	manage := api.Group("/manage", RequireRoles(domain.RoleManager, domain.RoleAdmin))
	manage.Get("/login-attempts", h.LoginAttempts)
}
