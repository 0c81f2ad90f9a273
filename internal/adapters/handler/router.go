package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mashoras/activity-service/internal/adapters/middleware"
	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/metrics"
)

type Handlers struct {
	Auth         *AuthHandler
	Registration *RegistrationHandler
	Activities   *ActivityHandler
	Profile      *ProfileHandler
	Health       *HealthHandler
}

func NewRouter(h Handlers, auth *middleware.AuthMiddleware, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORSMiddleware(allowedOrigins))
	r.Use(metrics.Middleware)

	r.Get("/health", h.Health.Health)
	r.Get("/health/ready", h.Health.Ready)
	r.Get("/health/live", h.Health.Live)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/careers", h.Registration.Careers)
	r.Post("/auth/register", h.Registration.Register)
	r.Post("/auth/login", h.Auth.Login)

	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Post("/auth/logout", h.Auth.Logout)

		r.Get("/profile", h.Profile.Get)
		r.With(auth.RequireRole(domain.RoleStudent)).Put("/profile/goal", h.Profile.UpdateGoal)

		r.Route("/activities", func(r chi.Router) {
			r.Get("/", h.Activities.List)
			r.Get("/history", h.Activities.History)
			r.Get("/stream", h.Activities.Stream)

			r.With(auth.RequireRole(domain.RoleTeacher)).Post("/", h.Activities.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.With(auth.RequireRole(domain.RoleStudent)).Post("/enroll", h.Activities.Enroll)
				r.With(auth.RequireRole(domain.RoleStudent)).Delete("/enroll", h.Activities.Unenroll)

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireRole(domain.RoleTeacher))
					r.Put("/", h.Activities.Update)
					r.Post("/finalize", h.Activities.Finalize)
					r.Delete("/", h.Activities.Delete)
				})
			})
		})
	})

	return r
}
