package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/radiusdt/storefront-notify/internal/config"
	"github.com/radiusdt/storefront-notify/internal/database"
	"github.com/radiusdt/storefront-notify/internal/geo"
	"github.com/radiusdt/storefront-notify/internal/httpserver"
	"github.com/radiusdt/storefront-notify/internal/metrics"
	"github.com/radiusdt/storefront-notify/internal/middleware"
	"github.com/radiusdt/storefront-notify/internal/notify"
	"github.com/radiusdt/storefront-notify/internal/storage"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting notification service",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.String("event_backend", cfg.Analytics.EventBackend),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(cfg.Metrics.Namespace, prometheus.DefaultRegisterer)
	}

	deps := &httpserver.Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
	}

	// Without Postgres the service runs on in-memory stores, which is only
	// useful for local development.
	if cfg.Database.Enabled {
		db, err := database.NewPostgresDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Error("PostgreSQL unavailable, using in-memory stores", zap.Error(err))
		} else {
			defer db.Close()
			if cfg.Database.Migrate {
				if err := storage.Migrate(ctx, db.Pool); err != nil {
					logger.Fatal("failed to migrate schema", zap.Error(err))
				}
			}
			deps.DB = db
		}
	}

	if cfg.Redis.Enabled {
		rdb, err := database.NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis unavailable, analytics cache disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			deps.Redis = rdb
		}
	}

	if cfg.Analytics.EventBackend == "clickhouse" {
		ch, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, logger)
		if err != nil {
			logger.Fatal("failed to connect to ClickHouse", zap.Error(err))
		}
		defer ch.Close()
		if err := storage.NewClickHouseEventStore(ch.Conn).InitSchema(ctx); err != nil {
			logger.Fatal("failed to create ClickHouse schema", zap.Error(err))
		}
		deps.ClickHouse = ch
	}

	if cfg.Geo.Enabled {
		provider, err := geo.NewMaxMindProvider(cfg.Geo.DatabasePath)
		if err != nil {
			logger.Warn("failed to open GeoIP database, events will not be geo-tagged", zap.Error(err))
		} else {
			defer provider.Close()
			deps.Geo = geo.NewResolver(provider, cfg.Geo.CacheSize, cfg.Geo.CacheTTL, m)
		}
	}

	if cfg.Mail.SESEnabled() {
		mailer, err := notify.NewSESMailer(ctx, cfg.Mail)
		if err != nil {
			logger.Fatal("failed to configure SES", zap.Error(err))
		}
		deps.Mailer = mailer
		logger.Info("email delivery via SES", zap.String("region", cfg.Mail.Region))
	} else {
		deps.Mailer = notify.NewLogMailer(logger)
		logger.Warn("SES not configured, emails will only be logged")
	}

	rateLimit := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger, m)
	deps.RateLimit = rateLimit

	handler, err := httpserver.NewServer(deps)
	if err != nil {
		logger.Fatal("failed to build server", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("HTTP server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.RateLimit.CleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rateLimit.CleanupIPLimiters()
			case <-ctx.Done():
				return
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	cancel()

	logger.Info("server stopped")
}
