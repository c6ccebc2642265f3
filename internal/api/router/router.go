package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ubva/crm-scheduler/internal/appointments"
	httpmiddleware "github.com/ubva/crm-scheduler/internal/http/middleware"
	"github.com/ubva/crm-scheduler/internal/reports"
	"github.com/ubva/crm-scheduler/internal/settings"
	"github.com/ubva/crm-scheduler/pkg/logging"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	AppointmentsHandler *appointments.Handler
	SettingsHandler     *settings.Handler
	StatsHandler        *reports.StatsHandler
	// Realtime serves the websocket endpoint.
	Realtime           http.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	AutomationAPIKey   string
	RateLimiter        *httpmiddleware.RateLimiter
	HealthChecks       map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.Realtime != nil {
		r.Handle("/ws/agendamento", cfg.Realtime)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.RateLimiter != nil {
			api.Use(cfg.RateLimiter.Middleware)
		}
		api.Use(middleware.Timeout(30 * time.Second))

		if cfg.AppointmentsHandler != nil {
			routes := cfg.AppointmentsHandler.Routes(httpmiddleware.APIKey(cfg.AutomationAPIKey, cfg.Logger))
			if cfg.StatsHandler != nil {
				routes.Get("/resumo", cfg.StatsHandler.GetSummary)
			}
			api.Mount("/agendamento", routes)
		}
		if cfg.SettingsHandler != nil {
			api.Get("/settings/agendamento", cfg.SettingsHandler.Get)
			api.Put("/settings/agendamento", cfg.SettingsHandler.Put)
		}
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		body := map[string]any{"status": "ok", "checks": results}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
