package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/bootstrap"
	apphttp "github.com/renandiiias/build-automated-outreach/internal/http"
	"github.com/renandiiias/build-automated-outreach/internal/http/router"
	"github.com/renandiiias/build-automated-outreach/internal/outreach"
	"github.com/renandiiias/build-automated-outreach/platform/config"
	"github.com/renandiiias/build-automated-outreach/platform/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr, "store", cfg.StoreBackend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure and domain services
	// ========================================================================

	components, err := bootstrap.Build(ctx, cfg, log, bootstrap.Options{Migrate: true})
	if err != nil {
		log.Error("failed to initialize application", "error", err)
		panic("failed to initialize application: " + err.Error())
	}
	defer components.Close()

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   components.Store,
		EventBus: components.Bus,
		Modules: []apphttp.Module{
			outreach.NewModule(components.Outreach),
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}
