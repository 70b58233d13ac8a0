package routes

import (
	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/handlers"
	"github.com/BradenHooton/sentinel/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Handlers groups every HTTP handler the router mounts
type Handlers struct {
	Login   *handlers.LoginHandler
	Reset   *handlers.PasswordResetHandler
	Lockout *handlers.LockoutHandler
	Devices *handlers.DeviceHandler
	Audit   *handlers.AuditHandler
	Health  *handlers.HealthHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, h Handlers, publicLimit middleware.RateLimitConfig, adminKey string) {
	router.Get("/health", h.Health.Check)

	router.Route("/security", func(r chi.Router) {
		// One limiter shared by every public endpoint
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(publicLimit))

			r.Post("/login/evaluate", h.Login.Evaluate)
			r.Post("/reset/request", h.Reset.Request)
			r.Post("/reset/validate", h.Reset.Validate)
			r.Post("/reset/complete", h.Reset.Complete)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.AdminKeyMiddleware(adminKey))

			r.Route("/accounts/{accountID}", func(r chi.Router) {
				r.Get("/lockout", h.Lockout.GetStatus)
				r.Post("/lock", h.Lockout.Lock)
				r.Post("/unlock", h.Lockout.Unlock)

				r.Get("/devices", h.Devices.List)
				r.Post("/devices/trust", h.Devices.Trust)
			})
			r.Delete("/devices/{deviceID}", h.Devices.Revoke)

			r.Get("/audit/suspicious", h.Audit.Suspicious)
			r.Get("/audit/flagged", h.Audit.Flagged)
			r.Post("/audit/analyze", h.Audit.Analyze)
			r.Post("/audit/events/{eventID}/suspicious", h.Audit.MarkSuspicious)
		})
	})
}
