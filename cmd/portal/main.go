package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zenohealth/salus/internal/accounts"
	"github.com/zenohealth/salus/internal/api/router"
	"github.com/zenohealth/salus/internal/app/bootstrap"
	"github.com/zenohealth/salus/internal/auth"
	appconfig "github.com/zenohealth/salus/internal/config"
	"github.com/zenohealth/salus/internal/endotools"
	"github.com/zenohealth/salus/internal/http/handlers"
	"github.com/zenohealth/salus/internal/notify"
	"github.com/zenohealth/salus/internal/observability/metrics"
	"github.com/zenohealth/salus/internal/patient"
	"github.com/zenohealth/salus/internal/registration"
	"github.com/zenohealth/salus/pkg/logging"
	"github.com/zenohealth/salus/web"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting patient portal",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := bootstrap.BuildDBPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	repo := accounts.NewPostgresRepository(pool)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("redis is required for password-reset sessions")
		os.Exit(1)
	}
	defer redisClient.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	clinical, err := endotools.New(endotools.Config{
		BaseURL: cfg.EndotoolsBaseURL,
		AuthKey: cfg.EndotoolsAuthKey,
		Timeout: cfg.EndotoolsTimeout,
	}, logger, metrics.NewUpstreamMetrics(registry))
	if err != nil {
		logger.Error("failed to build clinical API client", "error", err)
		os.Exit(1)
	}

	sessions, err := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionMaxAge, cfg.SecureCookies)
	if err != nil {
		logger.Error("failed to build session manager", "error", err)
		os.Exit(1)
	}
	resets := auth.NewResetSessionStore(redisClient, cfg.ResetSessionTTL, cfg.SecureCookies)

	mailer := notify.NewMailer(bootstrap.BuildEmailSender(cfg, logger), cfg.PublicBaseURL, logger)

	patients := patient.NewService(clinical, logger)
	register := registration.NewService(repo, clinical, mailer, logger)
	login := auth.NewLoginService(repo, logger)

	templates, err := web.ParseTemplates()
	if err != nil {
		logger.Error("failed to parse templates", "error", err)
		os.Exit(1)
	}
	renderer := handlers.NewRenderer(templates, logger)

	routerCfg := &router.Config{
		Logger:         logger,
		Sessions:       sessions,
		Accounts:       repo,
		Auth:           handlers.NewAuthHandler(login, sessions, resets, repo, mailer, renderer, logger),
		Portal:         handlers.NewPortalHandler(patients, repo, renderer, logger),
		Registration:   handlers.NewRegistrationHandler(register, patients, renderer, logger),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

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

	logger.Info("server stopped")
}
