package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/healthlink/appointment-lifecycle/internal/appointment"
	"github.com/healthlink/appointment-lifecycle/internal/prescription"
)

type RouterConfig struct {
	Appointments  *appointment.Service
	Prescriptions *prescription.Service
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Appointment lifecycle
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments, cfg.Prescriptions))
	r.Post("/appointments/{id}/start", startAppointmentHandler(cfg.Appointments))
	r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Appointments))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))
	r.Post("/appointments/{id}/no-show", markNoShowHandler(cfg.Appointments))

	// Prescriptions
	r.Post("/prescriptions", createPrescriptionHandler(cfg.Prescriptions))
	r.Get("/prescriptions/by-appointment/{id}", getPrescriptionByAppointmentHandler(cfg.Prescriptions))
	r.Post("/prescriptions/check-interactions", checkInteractionsHandler(cfg.Prescriptions))

	return r
}
