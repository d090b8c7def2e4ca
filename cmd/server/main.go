// @title           Noticeboard API
// @version         1.0
// @description     Candidate noticeboard backend: employer contact credits, contact gating, checkout and payment reconciliation.
// @license.name    MIT
// @license.url     https://opensource.org/licenses/MIT
// @BasePath        /api/v1
//
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/noticeboard-backend/docs"
	"github.com/tbourn/noticeboard-backend/internal/config"
	httpapi "github.com/tbourn/noticeboard-backend/internal/http"
	"github.com/tbourn/noticeboard-backend/internal/observability"
	"github.com/tbourn/noticeboard-backend/internal/payments"
	"github.com/tbourn/noticeboard-backend/internal/repo"
	"github.com/tbourn/noticeboard-backend/internal/sysutil"
)

// version is set at build time via -ldflags "-X main.version=...".
var version string

const purgeInterval = time.Hour

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	ver := sysutil.Version(version)
	logger := sysutil.ConfigureLogging(cfg.LogLevel, cfg.LogPretty, os.Stderr, "noticeboard-backend", ver)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(cfg.DB)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("db open failed")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			logger.Fatal().Err(err).Msg("gorm tracing plugin failed")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}

	// An untyped nil keeps the interface comparable to nil downstream.
	var gw payments.Gateway
	if cfg.Payments.SecretKey != "" {
		gw = payments.NewStripeGateway(cfg.Payments.SecretKey, cfg.Payments.SuccessURL, cfg.Payments.CancelURL)
	} else {
		logger.Warn().Msg("STRIPE_SECRET_KEY unset; checkout endpoints will answer 502")
	}

	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = ver

	r := gin.New()
	httpapi.RegisterRoutes(r, db, gw, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return logger.WithContext(context.Background()) },
	}

	go purgeIdempotency(ctx, db, purgeInterval)

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("db", cfg.DB.Driver).Bool("payments", gw != nil).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(sctx); err != nil {
		logger.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// purgeIdempotency drops expired idempotency records every interval until ctx ends.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("rows", n).Msg("idempotency purged")
			}
		}
	}
}
