package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/appointment-engine/internal/availability"
	"github.com/clinicdesk/appointment-engine/internal/booking"
)

type RouterConfig struct {
	Booking      *booking.Service
	Availability *availability.Store
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Log          zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(ActorMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Booking))
		r.Get("/", listAppointmentsHandler(cfg.Booking))
		r.Get("/{id}", getAppointmentHandler(cfg.Booking))
		r.Post("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Booking))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Booking))
		r.Post("/{id}/complete", completeAppointmentHandler(cfg.Booking))
		r.Delete("/{id}", deleteAppointmentHandler(cfg.Booking))
	})

	r.Get("/patients/{id}/dashboard", patientDashboardHandler(cfg.Booking))

	r.Route("/doctors/{id}", func(r chi.Router) {
		r.Put("/availability", setAvailabilityHandler(cfg.Availability))
		r.Delete("/availability", clearAvailabilityHandler(cfg.Availability))
		r.Get("/availability", listAvailabilityHandler(cfg.Availability))
		r.Get("/dashboard", doctorDashboardHandler(cfg.Booking))
	})

	return r
}
