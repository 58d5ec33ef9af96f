package handler

import (
	"net/http"
	"time"

	"github.com/Shivanand-hulikatti/community-events/internal/repository"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig carries what NewRouter needs to assemble the API.
type RouterConfig struct {
	Store          repository.Store
	Events         *EventHandler
	Users          *UserHandler
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter builds the chi router with the global middleware stack and all routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger)
	r.Use(CORS(cfg.AllowedOrigins))
	if cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", HealthCheck(cfg.Store))

	r.Route("/users", func(r chi.Router) {
		r.Post("/", cfg.Users.CreateUser)
		r.Get("/{id}", cfg.Users.GetUser)
		r.Get("/{id}/notifications", cfg.Users.ListNotifications)
	})

	r.Route("/events", func(r chi.Router) {
		r.Post("/", cfg.Events.CreateEvent)
		r.Get("/", cfg.Events.ListEvents)
		r.Get("/{id}", cfg.Events.GetEvent)
		r.Post("/{id}/register", cfg.Events.Register)
		r.Post("/{id}/unregister", cfg.Events.Unregister)
		r.Get("/{id}/registrations", cfg.Events.ListRegistrations)
	})

	r.Patch("/registrations/{id}/attendance", cfg.Events.UpdateAttendance)

	return r
}
