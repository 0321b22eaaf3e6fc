package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/autoflowlabs/consultancy-crm/internal/appointments"
	"github.com/autoflowlabs/consultancy-crm/internal/auth"
	"github.com/autoflowlabs/consultancy-crm/internal/billing"
	"github.com/autoflowlabs/consultancy-crm/internal/chat"
	"github.com/autoflowlabs/consultancy-crm/internal/customers"
	"github.com/autoflowlabs/consultancy-crm/internal/dashboard"
	"github.com/autoflowlabs/consultancy-crm/internal/http/httputil"
	httpmiddleware "github.com/autoflowlabs/consultancy-crm/internal/http/middleware"
	"github.com/autoflowlabs/consultancy-crm/internal/observability/metrics"
	"github.com/autoflowlabs/consultancy-crm/internal/scheduling"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Tokens             *auth.Tokens
	AuthHandler        *auth.Handler
	CustomersHandler   *customers.Handler
	AppointmentHandler *appointments.Handler
	SettingsHandler    *scheduling.SettingsHandler
	ChatHandler        *chat.Handler
	BillingHandler     *billing.Handler
	StripeWebhook      *billing.WebhookHandler
	FakeCheckout       *billing.FakeCheckoutHandler
	DashboardHandler   *dashboard.Handler
	MetricsHandler     http.Handler
	HTTPMetrics        *metrics.HTTPMetrics
	HealthChecks       map[string]HealthCheck
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.Metrics(cfg.HTTPMetrics))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", health(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.StripeWebhook != nil {
		r.Post("/webhooks/stripe", cfg.StripeWebhook.Handle)
	}
	if cfg.FakeCheckout != nil {
		r.Mount("/billing/fake-checkout", cfg.FakeCheckout.Routes())
	}

	r.Route("/api", func(api chi.Router) {
		// Anonymous endpoints are the ones worth throttling.
		api.Group(func(public chi.Router) {
			public.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
			if cfg.CustomersHandler != nil {
				public.Post("/contact", cfg.CustomersHandler.Contact)
			}
			if cfg.AuthHandler != nil {
				public.Post("/auth/login", cfg.AuthHandler.Login)
				public.Post("/auth/register", cfg.AuthHandler.Register)
			}
			if cfg.BillingHandler != nil {
				public.Get("/billing/packages", cfg.BillingHandler.Packages)
			}
			if cfg.ChatHandler != nil {
				public.Route("/chat/sessions", func(r chi.Router) {
					r.Post("/", cfg.ChatHandler.Start)
					r.Get("/{sessionID}", cfg.ChatHandler.Get)
					r.Post("/{sessionID}/messages", cfg.ChatHandler.SendMessage)
					r.Get("/{sessionID}/ws", cfg.ChatHandler.Websocket)
				})
			}
		})

		if cfg.Tokens == nil {
			return
		}

		api.Group(func(authed chi.Router) {
			authed.Use(auth.Authenticate(cfg.Tokens))

			if cfg.AuthHandler != nil {
				authed.Get("/auth/me", cfg.AuthHandler.Me)
			}
			if cfg.AppointmentHandler != nil {
				authed.Get("/appointments/recommendations", cfg.AppointmentHandler.Recommendations)
				authed.Post("/appointments", cfg.AppointmentHandler.Book)
			}

			authed.Route("/portal", func(portal chi.Router) {
				portal.Use(auth.RequireRole(auth.RoleCustomer))
				if cfg.CustomersHandler != nil {
					portal.Get("/me", cfg.CustomersHandler.Me)
				}
				if cfg.AppointmentHandler != nil {
					portal.Get("/appointments", cfg.AppointmentHandler.Mine)
					portal.Post("/appointments/{appointmentID}/cancel", cfg.AppointmentHandler.CancelOwn)
				}
				if cfg.BillingHandler != nil {
					portal.Post("/billing/checkout", cfg.BillingHandler.Checkout)
					portal.Get("/billing/payments", cfg.BillingHandler.MyPayments)
				}
			})

			authed.Route("/admin", func(admin chi.Router) {
				admin.Use(auth.RequireRole(auth.RoleAdmin))
				if cfg.DashboardHandler != nil {
					admin.Get("/dashboard", cfg.DashboardHandler.Overview)
				}
				if cfg.CustomersHandler != nil {
					admin.Route("/customers", func(r chi.Router) {
						r.Get("/", cfg.CustomersHandler.List)
						r.Post("/", cfg.CustomersHandler.Create)
						r.Get("/{customerID}", cfg.CustomersHandler.Get)
						r.Patch("/{customerID}", cfg.CustomersHandler.Update)
						r.Delete("/{customerID}", cfg.CustomersHandler.Delete)
					})
				}
				if cfg.AppointmentHandler != nil {
					admin.Get("/schedule", cfg.AppointmentHandler.Schedule)
					admin.Route("/appointments", func(r chi.Router) {
						r.Get("/", cfg.AppointmentHandler.List)
						r.Get("/{appointmentID}", cfg.AppointmentHandler.Get)
						r.Patch("/{appointmentID}", cfg.AppointmentHandler.Update)
						r.Patch("/{appointmentID}/status", cfg.AppointmentHandler.UpdateStatus)
						r.Post("/{appointmentID}/reschedule", cfg.AppointmentHandler.Reschedule)
						r.Post("/{appointmentID}/cancel", cfg.AppointmentHandler.Cancel)
					})
				}
				if cfg.SettingsHandler != nil {
					admin.Mount("/scheduling", cfg.SettingsHandler.Routes())
				}
				if cfg.ChatHandler != nil {
					admin.Route("/chat/sessions", func(r chi.Router) {
						r.Get("/", cfg.ChatHandler.List)
						r.Get("/{sessionID}", cfg.ChatHandler.Get)
						r.Post("/{sessionID}/close", cfg.ChatHandler.Close)
					})
				}
				if cfg.BillingHandler != nil {
					admin.Get("/payments", cfg.BillingHandler.List)
				}
			})
		})
	})

	return r
}

func health(checks map[string]HealthCheck) http.HandlerFunc {
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
		body := map[string]any{"status": "ok"}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		if len(results) > 0 {
			body["checks"] = results
		}
		httputil.WriteJSON(w, status, body)
	}
}
