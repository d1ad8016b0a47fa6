package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bloomcare/midwife-scheduling/internal/visit"
)

type RouterConfig struct {
	Service *visit.Service
	PgPool  *pgxpool.Pool // nil when running on the in-memory store
	Redis   *redis.Client // nil when using the in-process lock
	Logger  *zap.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	svc := cfg.Service

	r.Route("/visits", func(r chi.Router) {
		r.Post("/", createVisitHandler(svc))
		r.Get("/", listVisitsHandler(svc))
		r.Get("/{id}", getVisitHandler(svc))
		r.Patch("/{id}", updateVisitHandler(svc))
		r.Post("/{id}/cancel", cancelVisitHandler(svc))
		r.Post("/{id}/reschedule", rescheduleVisitHandler(svc))
		r.Post("/{id}/confirm", transitionHandler(func(req *http.Request, id uuid.UUID) (*visit.Visit, error) {
			return svc.ConfirmVisit(req.Context(), id)
		}))
		r.Post("/{id}/start", transitionHandler(func(req *http.Request, id uuid.UUID) (*visit.Visit, error) {
			return svc.StartVisit(req.Context(), id)
		}))
		r.Post("/{id}/complete", transitionHandler(func(req *http.Request, id uuid.UUID) (*visit.Visit, error) {
			return svc.CompleteVisit(req.Context(), id)
		}))
		r.Get("/{id}/calendar", exportCalendarHandler(svc))
	})

	r.Route("/availability", func(r chi.Router) {
		r.Get("/", listSlotsHandler(svc))
		r.Post("/", addSlotHandler(svc))
	})

	r.Get("/conflicts", checkConflictsHandler(svc))

	return r
}
