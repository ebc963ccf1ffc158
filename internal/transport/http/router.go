package http

import (
	"context"
	"net/http"

	"github.com/care-notify/internal/config"
	"github.com/care-notify/internal/domain"
	"github.com/care-notify/internal/transport/http/handler"
	appmiddleware "github.com/care-notify/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewRouter builds the application router. ctx bounds background helpers such
// as the rate limiter's eviction loop.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(appmiddleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10, for endpoints that start work on the backend.
	sensitiveRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10)

	healthH := handler.NewHealthHandler(deps.Checks)
	feedH := handler.NewFeedHandler(deps.Sessions)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Auth(deps.Verifier))
			r.Use(appmiddleware.RequireRole(string(domain.SectionPatient), string(domain.SectionSpecialist)))

			r.With(sensitiveRL.Limit).Post("/feed/session", feedH.SignIn)
			r.Delete("/feed/session", feedH.SignOut)
			r.Get("/feed", feedH.Get)
			r.Get("/feed/events", feedH.Events)
			r.With(sensitiveRL.Limit).Post("/feed/load-more", feedH.LoadMore)
			r.With(sensitiveRL.Limit).Post("/feed/refresh", feedH.Refresh)
			r.With(sensitiveRL.Limit).Post("/feed/retry", feedH.Retry)
			r.Put("/feed/read-all", feedH.MarkAllAsRead)
			r.Put("/feed/notifications/{id}/read", feedH.MarkAsRead)
			r.Delete("/feed/notifications/{id}", feedH.Delete)
			r.With(sensitiveRL.Limit).Post("/feed/notifications/{id}/press", feedH.Press)
		})
	})

	return r
}
