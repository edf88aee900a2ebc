// Package bootstrap wires the outreach components from configuration. Every
// binary builds the same graph so the API, the scheduler and one-shot runs
// share one set of rules.
package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/cadence"
	"github.com/renandiiias/build-automated-outreach/internal/domainjobs"
	"github.com/renandiiias/build-automated-outreach/internal/email"
	"github.com/renandiiias/build-automated-outreach/internal/eventlog"
	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/internal/health"
	enrichclient "github.com/renandiiias/build-automated-outreach/internal/leadenrichment/client"
	enrichment "github.com/renandiiias/build-automated-outreach/internal/leadenrichment/service"
	"github.com/renandiiias/build-automated-outreach/internal/lock"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository/memory"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository/postgres"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/service"
	"github.com/renandiiias/build-automated-outreach/internal/pricing"
	"github.com/renandiiias/build-automated-outreach/internal/review"
	"github.com/renandiiias/build-automated-outreach/internal/throttle"
	"github.com/renandiiias/build-automated-outreach/internal/transport"
	"github.com/renandiiias/build-automated-outreach/internal/whatsapp"
	"github.com/renandiiias/build-automated-outreach/migrations"
	"github.com/renandiiias/build-automated-outreach/platform/config"
	"github.com/renandiiias/build-automated-outreach/platform/db"
	"github.com/renandiiias/build-automated-outreach/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Options tunes Build per binary.
type Options struct {
	// Migrate applies pending goose migrations before the pool is handed out.
	Migrate bool
}

// Components is the wired application graph.
type Components struct {
	Store      repository.Store
	EventLog   eventlog.Store
	Bus        *events.InMemoryBus
	Health     *health.Monitor
	Review     *review.Gate
	Pricing    *pricing.Ladder
	DomainJobs *domainjobs.Service
	Throttle   *throttle.Throttle
	Links      *transport.UnsubscribeLinks
	Cadence    *cadence.Engine
	Relayer    *eventlog.Relayer
	Outreach   *service.Service

	closers []func()
}

// Close releases pools and clients in reverse order of creation.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build connects the stores and wires every service. The returned Components
// must be closed.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	if err := c.openStores(ctx, cfg, log, opts); err != nil {
		return nil, err
	}

	locker, err := c.newLocker(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	c.Bus = events.NewInMemoryBus(log)
	eventlog.NewRecorder(c.EventLog, log).Subscribe(c.Bus)
	c.closers = append(c.closers, c.Bus.Wait)

	var sink eventlog.Sink = eventlog.NopSink{}
	if ws := eventlog.NewWebhookSink(cfg, log); ws != nil {
		sink = ws
	} else {
		log.Warn("EVENT_SINK_URL not configured; events are stored but not relayed")
	}
	c.Relayer = eventlog.NewRelayer(c.EventLog, sink, eventlog.DefaultMaxAttempts, log)

	links, err := transport.NewUnsubscribeLinks(cfg)
	if err != nil {
		return nil, fmt.Errorf("unsubscribe links: %w", err)
	}
	c.Links = links

	emailSender, err := email.NewSender(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("email sender: %w", err)
	}
	var waSender whatsapp.Sender = whatsapp.NoopSender{Log: log}
	if client := whatsapp.NewClient(cfg, log); client != nil {
		waSender = client
	} else {
		log.Warn("WHATSAPP_URL not configured; whatsapp messages are logged only")
	}
	dispatcher := transport.NewRouter(emailSender, waSender, links, cfg.GetSendTimeout(), log)

	policy := cfg.GetPolicy()
	c.Health = health.New(c.Store, c.Bus, log, policy.Health, health.WithLocker(locker))
	c.Review = review.New(c.Store, c.Bus, locker, log)
	c.Pricing = pricing.New(c.Store, c.Bus, log, policy.Pricing)
	c.DomainJobs = domainjobs.New(c.Store, c.Bus, log, policy.DomainJobs)
	c.Throttle = throttle.New(policy.Throttle, c.Health, c.Bus, log)
	c.Cadence = cadence.New(cadence.Deps{
		Store:      c.Store,
		Health:     c.Health,
		Review:     c.Review,
		Pricing:    c.Pricing,
		Dispatcher: dispatcher,
		Locker:     locker,
		Bus:        c.Bus,
		Log:        log,
		Policy:     policy.Cadence,
	})
	var enricher service.Enricher
	if cfg.GetWebsiteEnrichment() {
		enricher = enrichment.New(enrichclient.New(log), log)
	}
	c.Outreach = service.New(service.Deps{
		Store:      c.Store,
		Health:     c.Health,
		Review:     c.Review,
		Pricing:    c.Pricing,
		DomainJobs: c.DomainJobs,
		Throttle:   c.Throttle,
		Links:      links,
		Enricher:   enricher,
		Locker:     locker,
		Bus:        c.Bus,
		Log:        log,
	})

	ok = true
	return c, nil
}

func (c *Components) openStores(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) error {
	if cfg.GetStoreBackend() == "memory" {
		log.Warn("using the in-memory store; state is lost on restart")
		c.Store = memory.New()
		c.EventLog = eventlog.NewMemoryStore()
		return nil
	}

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	c.closers = append(c.closers, pool.Close)
	log.Info("database connection established")

	if opts.Migrate {
		if err := withRetry(ctx, log, "database migrations", 3, 2*time.Second, func() error {
			return db.RunMigrations(ctx, pool, migrations.FS)
		}); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		log.Info("database migrations complete")
	}

	c.Store = postgres.New(pool)
	c.EventLog = eventlog.NewRepository(pool)
	return nil
}

// newLocker serializes per-lead work in-process, and across processes when
// Redis is configured.
func (c *Components) newLocker(ctx context.Context, cfg *config.Config, log *logger.Logger) (lock.Locker, error) {
	local := lock.NewKeyedMutex(cfg.GetLockWait())
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; per-lead locks are process-local")
		return local, nil
	}

	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}
	client := redis.NewClient(opt)
	c.closers = append(c.closers, func() { _ = client.Close() })

	if err := withRetry(ctx, log, "redis connection", 5, time.Second, func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return lock.Chain{local, lock.NewRedisLocker(client, cfg.GetLockTTL(), cfg.GetLockWait())}, nil
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
