package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/renandiiias/build-automated-outreach/internal/bootstrap"
	"github.com/renandiiias/build-automated-outreach/internal/scheduler"
	"github.com/renandiiias/build-automated-outreach/platform/config"
	"github.com/renandiiias/build-automated-outreach/platform/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "run_interval", cfg.OutreachRunInterval, "sweep_interval", cfg.DomainSweepInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Build(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		log.Error("failed to initialize application", "error", err)
		panic("failed to initialize application: " + err.Error())
	}
	defer components.Close()

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	worker, err := scheduler.NewWorker(cfg, &scheduler.Handlers{
		Runner:  components.Cadence,
		Sweeper: components.DomainJobs,
		Relayer: components.Relayer,
		Log:     log,
	}, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	periodic := scheduler.NewPeriodic(client, cfg.GetOutreachRunInterval(), cfg.GetDomainSweepInterval(), log)
	relay := scheduler.NewEventRelayDispatcher(client, components.EventLog, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return periodic.Run(gctx) })
	g.Go(func() error { return relay.Run(gctx) })

	if err := g.Wait(); err != nil {
		log.Error("scheduler stopped with error", "error", err)
		panic("scheduler stopped with error: " + err.Error())
	}
	log.Info("scheduler stopped")
}
