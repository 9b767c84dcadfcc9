package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-tour-booking/internal/config"
	"go-tour-booking/internal/handler"
	"go-tour-booking/internal/metrics"
	"go-tour-booking/internal/middleware"
	"go-tour-booking/internal/model"
)

type Handlers struct {
	Auth   *handler.AuthHandler
	User   *handler.UserHandler
	Health *handler.HealthHandler
}

// New builds the HTTP surface. metrics may be nil.
func New(cfg *config.Config, logger *slog.Logger, authMiddleware *middleware.AuthMiddleware, h Handlers, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	if m != nil {
		r.Use(m.Instrument)
	}
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", h.Health.Health)
	if m != nil && cfg.MetricsEnabled {
		r.Handle("/metrics", m.Handler())
	}

	protected := authMiddleware.Protect()
	adminOnly := protected.RestrictTo(model.RoleAdmin)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/users", func(users chi.Router) {
			users.Post("/signup", h.Auth.Signup)
			users.Post("/login", h.Auth.Login)
			users.Post("/logout", h.Auth.Logout)
			users.Post("/forgotPassword", h.Auth.ForgotPassword)
			users.Patch("/resetPassword/{token}", h.Auth.ResetPassword)

			users.Group(func(me chi.Router) {
				me.Use(protected.Handler)

				me.Patch("/updateMyPassword", h.Auth.UpdatePassword)
				me.Get("/me", h.User.Me)
				me.Patch("/updateMe", h.User.UpdateMe)
				me.Delete("/deleteMe", h.User.DeleteMe)
			})

			users.Group(func(admin chi.Router) {
				admin.Use(adminOnly.Handler)

				admin.Get("/", h.User.List)
				admin.Post("/", handler.CreateUser)
				admin.Get("/{id}", h.User.Get)
				admin.Patch("/{id}", h.User.Update)
				admin.Delete("/{id}", h.User.Delete)
			})
		})
	})

	return r
}
