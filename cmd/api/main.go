package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking/internal/api/router"
	"github.com/wolfman30/clinic-booking/internal/app/bootstrap"
	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/bookingapi"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/sessions"
	"github.com/wolfman30/clinic-booking/internal/wizard"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"session_store", cfg.SessionStore,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsHandler, bookingMetrics := setupMetrics()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, cfg.SessionStore == bootstrap.StoreRedis)
	if redisClient != nil {
		defer redisClient.Close()
	}
	repo, err := bootstrap.BuildSessionRepository(ctx, cfg, redisClient, logger)
	if err != nil {
		logger.Error("failed to build session store", "error", err)
		os.Exit(1)
	}

	pool, auditDB, err := bootstrap.OpenAuditDB(ctx, cfg)
	if err != nil {
		logger.Error("failed to open audit database", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
		defer auditDB.Close()
	}

	api := bookingapi.NewClient(cfg.BookingAPIBaseURL, logger,
		bookingapi.WithAPIKey(cfg.BookingAPIKey),
		bookingapi.WithTimeout(cfg.BookingAPITimeout),
		bookingapi.WithMetrics(bookingMetrics),
	)

	var storeOpts []wizard.StoreOption
	storeOpts = append(storeOpts, wizard.WithDefaultTimezone(cfg.DefaultTimezone))
	if cfg.ServiceStepOptional {
		storeOpts = append(storeOpts, wizard.WithOptionalService())
	}
	manager := sessions.NewManager(repo, logger, storeOpts...)

	booking := handlers.NewBookingHandler(handlers.BookingHandlerConfig{
		Sessions: manager,
		Submitter: wizard.NewSubmitter(api, logger,
			wizard.WithAuditRecorder(bootstrap.BuildAuditRecorder(auditDB, logger)),
			wizard.WithSubmitMetrics(bookingMetrics),
			wizard.WithSubmitTimeout(cfg.BookingSubmitTimeout),
		),
		Schedule: wizard.NewSchedule(api, logger,
			wizard.WithHorizonDays(cfg.AvailabilityHorizonDays),
			wizard.WithScheduleMetrics(bookingMetrics),
		),
		Metrics:       bookingMetrics,
		Logger:        logger,
		SubmitTimeout: cfg.BookingSubmitTimeout,
		SessionTTL:    cfg.SessionTTL,
		SecureCookie:  cfg.IsProduction(),
		Tokens:        sessions.NewTokenSigner(cfg.SessionSecret, cfg.SessionTTL),
	})
	if cfg.SessionSecret == "" {
		logger.Warn("SESSION_SECRET not set; session cookies are unsigned")
	}

	var velocity *appointments.VelocityChecker
	if redisClient != nil {
		velocity = appointments.NewVelocityChecker(redisClient, appointments.VelocityConfig{
			MaxLookups: cfg.LookupMaxPerHour,
			Window:     time.Hour,
		}, logger)
	} else {
		logger.Warn("appointment lookup velocity limit disabled; redis not configured")
	}
	appts := appointments.NewHandler(appointments.NewService(api, velocity, logger), logger)

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Run(ctx)

	r := router.New(&router.Config{
		Logger:             logger,
		Metrics:            bookingMetrics,
		MetricsHandler:     metricsHandler,
		MetricsToken:       cfg.MetricsToken,
		Health:             handlers.NewHealthHandler(logger, healthChecks(redisClient, pool)),
		Booking:            booking,
		Appointments:       appts,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
	})

	// WriteTimeout leaves room for a slow submission.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.BookingSubmitTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// setupMetrics registers the booking collectors on a private registry
// alongside the Go runtime and process collectors.
func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewBookingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

// healthChecks checks the optional backing stores for /health/ready.
func healthChecks(redisClient *redis.Client, pool *pgxpool.Pool) map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	return checks
}
