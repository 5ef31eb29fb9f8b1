package routes

import (
	"github.com/fairlines/authcore/internal/auth"
	"github.com/fairlines/authcore/internal/handlers"
	"github.com/fairlines/authcore/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	issuer *auth.TokenIssuer,
	authHandler *handlers.AuthHandler,
	twoFactorHandler *handlers.TwoFactorHandler,
	sessionHandler *handlers.SessionHandler,
	userHandler *handlers.UserHandler,
	auditHandler *handlers.AuditHandler,
) {
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Public routes. Login and refresh take credentials, so they sit
	// behind the per-IP rate limit.
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/refresh", authHandler.Refresh)

	// Protected routes. The access token is validated statelessly here;
	// revocation takes effect at the next refresh.
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(issuer))

		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/auth/logout-all", authHandler.LogoutAll)
		r.Get("/auth/profile", userHandler.Profile)

		r.Get("/auth/sessions", sessionHandler.List)
		r.Delete("/auth/sessions/{id}", sessionHandler.Revoke)

		r.Post("/auth/2fa/setup", twoFactorHandler.Setup)
		r.Post("/auth/2fa/enable", twoFactorHandler.Enable)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole("admin"))
			r.Get("/admin/audit", auditHandler.List)
		})
	})
}
