package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/renandiiias/build-automated-outreach/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const defaultQueue = "default"

// Enqueuer is the part of asynq.Client the producers use.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := clientOpt(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, task, append([]asynq.Option{asynq.Queue(c.queue)}, opts...)...)
}

// EnqueueOutreachRun schedules one cadence run. An empty runID lets the worker
// name the run.
func (c *Client) EnqueueOutreachRun(ctx context.Context, runID string) error {
	return enqueueOutreachRun(ctx, c, runID, 0)
}

// EnqueueEventRelay schedules delivery of one stored event.
func (c *Client) EnqueueEventRelay(ctx context.Context, eventID uuid.UUID) error {
	task, err := NewEventRelayTask(EventRelayPayload{EventID: eventID.String()})
	if err != nil {
		return err
	}
	_, err = c.EnqueueContext(ctx, task, asynq.MaxRetry(0))
	return err
}

func enqueueOutreachRun(ctx context.Context, q Enqueuer, runID string, unique time.Duration) error {
	task, err := NewOutreachRunTask(OutreachRunPayload{RunID: runID})
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.MaxRetry(0)}
	if unique > 0 {
		opts = append(opts, asynq.Unique(unique))
	}
	_, err = q.EnqueueContext(ctx, task, opts...)
	return ignoreDuplicate(err)
}

// ignoreDuplicate treats a still-held uniqueness lock as success: the same
// periodic task is already queued.
func ignoreDuplicate(err error) error {
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func clientOpt(cfg config.SchedulerConfig) (asynq.RedisClientOpt, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return asynq.RedisClientOpt{}, fmt.Errorf("redis url not configured")
	}
	return redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
}

func queueName(cfg config.SchedulerConfig) string {
	if q := cfg.GetAsynqQueueName(); q != "" {
		return q
	}
	return defaultQueue
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
