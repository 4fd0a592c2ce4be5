package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/appointment-notify/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/appointment-notify/internal/http/middleware"
	"github.com/wolfman30/appointment-notify/internal/tenancy"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger   *logging.Logger
	Webhooks *handlers.WebhookHandler
	Operator *handlers.OperatorHandler

	// Tenants gates /webhooks/{tenantKey}/events; Verifier checks Telnyx
	// signatures for centers without an API key.
	Tenants  tenancy.Resolver
	Verifier httpmiddleware.SignatureVerifier

	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	OperatorRateLimit  float64
	OperatorRateBurst  int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhooks != nil {
			public.With(httpmiddleware.TenantAuth(cfg.Tenants, cfg.Verifier, cfg.Logger)).
				Post("/webhooks/{tenantKey}/events", cfg.Webhooks.HandleEvents)
		}
	})

	if cfg.Operator != nil && cfg.AdminAuthSecret != "" {
		r.Route("/api/v1", func(api chi.Router) {
			if len(cfg.CORSAllowedOrigins) > 0 {
				api.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
			}
			if cfg.OperatorRateLimit > 0 {
				api.Use(httpmiddleware.RateLimit(cfg.OperatorRateLimit, cfg.OperatorRateBurst))
			}
			api.Use(httpmiddleware.OperatorJWT(cfg.AdminAuthSecret))

			api.Route("/tenants/{tenantKey}", func(t chi.Router) {
				t.Post("/messages/text", cfg.Operator.SendText)
				t.Post("/messages/template", cfg.Operator.SendTemplate)
				t.Post("/calls", cfg.Operator.InitiateCall)
			})
			api.Get("/messages/{id}", cfg.Operator.GetMessage)
			api.Get("/calls/{id}", cfg.Operator.GetCall)
			api.Get("/appointments/{id}/messages", cfg.Operator.AppointmentMessages)
			api.Get("/appointments/{id}/calls", cfg.Operator.AppointmentCalls)
			api.Get("/flows", cfg.Operator.ListFlows)
			api.Post("/flows/{flowId}/trigger", cfg.Operator.TriggerFlow)
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
