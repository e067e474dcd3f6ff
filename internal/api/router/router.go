package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Config holds the handlers and options the router mounts.
type Config struct {
	Logger             *logging.Logger
	Metrics            *metrics.BookingMetrics
	MetricsHandler     http.Handler
	MetricsToken       string
	Health             *handlers.HealthHandler
	Booking            *handlers.BookingHandler
	Appointments       *appointments.Handler
	CORSAllowedOrigins []string
	RateLimiter        *httpmiddleware.RateLimiter
}

// New builds the HTTP handler for the booking API.
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	health := cfg.Health
	if health == nil {
		health = handlers.NewHealthHandler(logger, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(logger, cfg.Metrics))

	r.Get("/health", health.Live)
	r.Get("/health/ready", health.Ready)
	if cfg.MetricsHandler != nil {
		r.With(requireBearerToken(cfg.MetricsToken)).Handle("/metrics", cfg.MetricsHandler)
	}

	r.Group(func(api chi.Router) {
		if cfg.RateLimiter != nil {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}
		if cfg.Booking != nil {
			api.Route("/booking", cfg.Booking.Routes)
		}
		if cfg.Appointments != nil {
			api.Route("/appointments", cfg.Appointments.Routes)
		}
	})

	return r
}
