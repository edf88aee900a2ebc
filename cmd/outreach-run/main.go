// Command outreach-run executes one cadence run (and optionally a domain
// sweep) in the foreground, for cron hosts and manual operation.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/bootstrap"
	"github.com/renandiiias/build-automated-outreach/internal/cadence"
	"github.com/renandiiias/build-automated-outreach/platform/config"
	"github.com/renandiiias/build-automated-outreach/platform/logger"
)

func main() {
	runID := flag.String("run-id", "", "run identifier (default: generated from the start time)")
	sweep := flag.Bool("sweep", false, "also sweep domain jobs for expiry alerts")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Build(ctx, cfg, log, bootstrap.Options{Migrate: true})
	if err != nil {
		log.Error("failed to initialize application", "error", err)
		panic("failed to initialize application: " + err.Error())
	}
	defer components.Close()

	if *runID == "" {
		*runID = cadence.NewRunID(time.Now())
	}
	ctx = logger.ContextWithRunID(ctx, *runID)

	summary, err := components.Cadence.Run(ctx, *runID)
	if err != nil {
		log.Error("outreach run failed", "run_id", *runID, "error", err)
		panic("outreach run failed: " + err.Error())
	}

	out := map[string]any{"run": summary}
	if *sweep {
		res, err := components.DomainJobs.Sweep(ctx, time.Now())
		if err != nil {
			log.Error("domain job sweep failed", "error", err)
			panic("domain job sweep failed: " + err.Error())
		}
		out["sweep"] = res
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
