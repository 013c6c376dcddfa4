package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"attendclient/internal/app"
	"attendclient/internal/config"
	"attendclient/internal/console"
	"attendclient/internal/httpmiddleware"
	"attendclient/internal/logging"
)

func main() {
	cfg := config.Load()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("console failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, prometheus.DefaultRegisterer, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// The course list is the first thing the capture page shows.
	if err := a.Controller.LoadCourses(ctx); err != nil {
		logger.Warn("initial course load failed", "err", err)
	}

	hub := console.NewHub(a.Metrics, logger.With("component", "feed"))
	go hub.Run(ctx)
	go func() {
		if err := hub.Pump(ctx, a.Events); err != nil {
			logger.Error("feed pump stopped", "err", err)
		}
	}()

	r := console.NewRouter(console.Deps{
		API:        a.API,
		Auth:       a.Auth,
		Attendance: a.Controller,
		Locator:    a.Locator,
		Journal:    a.Journal,
		Hub:        hub,
		Limiter:    httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		Gatherer:   prometheus.DefaultGatherer,
		Health:     a.Health(),
		Location:   cfg.Location(),
		Origins:    cfg.CORSOrigins,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SubmitTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("console listening", "addr", srv.Addr, "api", cfg.APIBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down console")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forced shutdown", "err", err)
	}
	return nil
}
