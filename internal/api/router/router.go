package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/telehealth-bff/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/telehealth-bff/internal/http/middleware"
	"github.com/wolfman30/telehealth-bff/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger   *logging.Logger
	Resolver httpmiddleware.CredentialResolver

	Health   *handlers.HealthHandler
	Auth     *handlers.AuthHandler
	Doctors  *handlers.DoctorsHandler
	Patient  *handlers.PatientHandler
	Social   *handlers.SocialHandler
	Video    *handlers.VideoHandler
	Payments *handlers.PaymentsHandler

	// Operator endpoints (optional, require AdminAuthSecret)
	AdminPayments   *handlers.AdminPaymentsHandler
	AdminAuthSecret string

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Resolver != nil {
		r.Use(httpmiddleware.ResolveCredentials(cfg.Resolver))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Get("/health", cfg.Health.Health)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/api", func(api chi.Router) {
		if cfg.RateLimitRPS > 0 {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		}
		if cfg.Auth != nil {
			api.Mount("/auth", cfg.Auth.Routes())
		}
		// The PhonePe callback is public; the rest of the group enforces auth itself.
		if cfg.Payments != nil {
			api.Mount("/payments/phonepe", cfg.Payments.Routes())
		}

		api.Group(func(authed chi.Router) {
			authed.Use(httpmiddleware.RequireAuth)
			if cfg.Doctors != nil {
				authed.Mount("/doctors", cfg.Doctors.Routes())
			}
			if cfg.Social != nil {
				authed.Mount("/social", cfg.Social.Routes())
			}
			if cfg.Video != nil {
				authed.Mount("/video", cfg.Video.Routes())
			}
			if cfg.Patient != nil {
				cfg.Patient.Register(authed)
			}
		})
	})

	if cfg.AdminPayments != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Mount("/payments", cfg.AdminPayments.Routes())
		})
	}

	return r
}
