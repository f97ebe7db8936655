package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/telehealth-bff/internal/api/router"
	"github.com/wolfman30/telehealth-bff/internal/app/bootstrap"
	"github.com/wolfman30/telehealth-bff/internal/auth"
	"github.com/wolfman30/telehealth-bff/internal/compliance"
	appconfig "github.com/wolfman30/telehealth-bff/internal/config"
	"github.com/wolfman30/telehealth-bff/internal/gateway"
	"github.com/wolfman30/telehealth-bff/internal/http/handlers"
	"github.com/wolfman30/telehealth-bff/internal/observability/metrics"
	"github.com/wolfman30/telehealth-bff/internal/payments"
	"github.com/wolfman30/telehealth-bff/internal/profiles"
	"github.com/wolfman30/telehealth-bff/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting telehealth BFF",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	metricsHandler, gatewayMetrics := setupMetrics()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	db, err := bootstrap.OpenDatabase(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Warn("audit database unavailable, payment audit disabled", "error", err)
		db = nil
	}

	handler, err := buildRouter(cfg, logger, redisClient, db, gatewayMetrics, metricsHandler)
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.UpstreamTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (http.Handler, *metrics.GatewayMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), metrics.NewGatewayMetrics(registry)
}

// buildRouter wires every handler. redisClient and db may be nil; the features
// backed by them degrade instead of failing startup.
func buildRouter(cfg *appconfig.Config, logger *logging.Logger, redisClient *redis.Client, db *sql.DB, gatewayMetrics *metrics.GatewayMetrics, metricsHandler http.Handler) (http.Handler, error) {
	var (
		sessions   auth.SessionReader
		sessionEnd handlers.SessionEnder
		health     = map[string]handlers.Pinger{}
	)
	if redisClient != nil {
		store := auth.NewRedisSessionStore(redisClient, cfg.IDPSessionCookieName)
		sessions, sessionEnd = store, store
		health["redis"] = handlers.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	} else {
		logger.Warn("redis not configured; identity-provider sessions and payment velocity disabled")
	}

	resolver := auth.NewResolver(logger,
		auth.DefaultStrategies(cfg.SessionCookieName, sessions, logger),
		auth.WithObserver(gatewayMetrics),
	)

	gw, err := gateway.New(map[gateway.Backend]string{
		gateway.BackendAPI:    cfg.APIBaseURL,
		gateway.BackendSocial: cfg.SocialServiceURL,
		gateway.BackendVideo:  cfg.VideoServiceURL,
	}, cfg.UpstreamTimeout, logger, gateway.WithRecorder(gatewayMetrics))
	if err != nil {
		return nil, err
	}
	proxy := handlers.NewProxy(gw, logger)

	phonepe := payments.NewPhonePeClient(payments.PhonePeConfig{
		MerchantID:  cfg.PhonePeMerchantID,
		SaltKey:     cfg.PhonePeSaltKey,
		SaltIndex:   cfg.PhonePeSaltIndex,
		Env:         cfg.PhonePeEnv,
		BaseURL:     cfg.PhonePeBaseURL,
		RedirectURL: cfg.PhonePeRedirectURL,
		CallbackURL: cfg.PhonePeCallbackURL,
	}, logger)
	if !phonepe.Configured() {
		logger.Warn("phonepe credentials missing; payment routes will fail")
	}

	velocityCfg := payments.DefaultVelocityConfig()
	velocityCfg.MaxInitiationsPerUser = cfg.PaymentMaxInitiations
	velocityCfg.InitiationWindow = cfg.PaymentWindow
	velocityCfg.MaxRefundsPerTxn = cfg.PaymentMaxRefunds
	velocity := payments.NewVelocityChecker(redisClient, velocityCfg, logger).WithBlockObserver(gatewayMetrics)

	var (
		auditor handlers.PaymentAuditor
		querier handlers.AuditQuerier
	)
	if db != nil {
		audit := compliance.NewAuditService(db)
		auditor, querier = audit, audit
		health["postgres"] = handlers.PingFunc(db.PingContext)
	}

	cookie := auth.CookieOptions{
		Name:   cfg.SessionCookieName,
		Secure: cfg.SessionCookieSecure,
		TTL:    cfg.SessionCookieTTL,
	}

	paymentsHandler := handlers.NewPaymentsHandler(phonepe, handlers.NewBackendVerifier(proxy), velocity, auditor, logger)

	var adminPayments *handlers.AdminPaymentsHandler
	if cfg.AdminJWTSecret != "" {
		adminPayments = handlers.NewAdminPaymentsHandler(velocity, querier, logger).WithRefunds(paymentsHandler)
	} else {
		logger.Warn("admin jwt secret not configured; payment refunds disabled")
	}

	return router.New(&router.Config{
		Logger:             logger,
		Resolver:           resolver,
		Health:             handlers.NewHealthHandler(health),
		Auth:               handlers.NewAuthHandler(proxy, cookie, sessionEnd, logger),
		Doctors:            handlers.NewDoctorsHandler(proxy, profiles.NewNormalizer(cfg.DefaultConsultationFee)),
		Patient:            handlers.NewPatientHandler(proxy),
		Social:             handlers.NewSocialHandler(proxy),
		Video:              handlers.NewVideoHandler(proxy),
		Payments:           paymentsHandler,
		AdminPayments:      adminPayments,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	}), nil
}
