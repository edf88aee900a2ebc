package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"

	"github.com/jackc/pgx/v5"
)

const channelColumns = `channel, paused, pause_reason, cooldown_until, error_streak, unstable_streak,
	window_sent, window_bounces, window_complaints, window_failures, updated_at`

func scanChannel(row pgx.Row) (domain.ChannelStatus, error) {
	var s domain.ChannelStatus
	err := row.Scan(
		&s.Channel, &s.Paused, &s.PauseReason, &s.CooldownUntil, &s.ErrorStreak, &s.UnstableStreak,
		&s.WindowSent, &s.WindowBounces, &s.WindowComplaints, &s.WindowFailures, &s.UpdatedAt,
	)
	return s, err
}

func (r *Repository) GetChannelStatus(ctx context.Context, channel domain.Channel) (domain.ChannelStatus, error) {
	s, err := scanChannel(r.pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channel_status WHERE channel = $1`, channel))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewChannelStatus(channel), nil
	}
	return s, err
}

func (r *Repository) SaveChannelStatus(ctx context.Context, s domain.ChannelStatus) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO channel_status (
			channel, paused, pause_reason, cooldown_until, error_streak, unstable_streak,
			window_sent, window_bounces, window_complaints, window_failures, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (channel) DO UPDATE SET
			paused = EXCLUDED.paused,
			pause_reason = EXCLUDED.pause_reason,
			cooldown_until = EXCLUDED.cooldown_until,
			error_streak = EXCLUDED.error_streak,
			unstable_streak = EXCLUDED.unstable_streak,
			window_sent = EXCLUDED.window_sent,
			window_bounces = EXCLUDED.window_bounces,
			window_complaints = EXCLUDED.window_complaints,
			window_failures = EXCLUDED.window_failures,
			updated_at = now()
	`, s.Channel, s.Paused, s.PauseReason, s.CooldownUntil, s.ErrorStreak, s.UnstableStreak,
		s.WindowSent, s.WindowBounces, s.WindowComplaints, s.WindowFailures)
	return err
}

func (r *Repository) ListChannelStatuses(ctx context.Context) ([]domain.ChannelStatus, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+channelColumns+` FROM channel_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stored := make(map[domain.Channel]domain.ChannelStatus)
	for rows.Next() {
		s, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		stored[s.Channel] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items := make([]domain.ChannelStatus, 0, len(domain.MonitoredChannels))
	for _, c := range domain.MonitoredChannels {
		if s, ok := stored[c]; ok {
			items = append(items, s)
			continue
		}
		items = append(items, domain.NewChannelStatus(c))
	}
	return items, nil
}

func (r *Repository) GetFlag(ctx context.Context, name string) (bool, error) {
	var enabled bool
	err := r.pool.QueryRow(ctx, `SELECT enabled FROM flags WHERE name = $1`, name).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return enabled, err
}

func (r *Repository) SetFlag(ctx context.Context, name string, enabled bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO flags (name, enabled, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = now()
	`, name, enabled)
	return err
}

func (r *Repository) IncrementDaily(ctx context.Context, d domain.DailyMetric) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO channel_daily_metrics (day, channel, sent, failed, bounces, complaints)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (day, channel) DO UPDATE SET
			sent = channel_daily_metrics.sent + EXCLUDED.sent,
			failed = channel_daily_metrics.failed + EXCLUDED.failed,
			bounces = channel_daily_metrics.bounces + EXCLUDED.bounces,
			complaints = channel_daily_metrics.complaints + EXCLUDED.complaints
	`, domain.DayOf(d.Day), d.Channel, d.Sent, d.Failed, d.Bounces, d.Complaints)
	return err
}

func (r *Repository) GetDaily(ctx context.Context, day time.Time, channel domain.Channel) (domain.DailyMetric, error) {
	m := domain.DailyMetric{Day: domain.DayOf(day), Channel: channel}
	err := r.pool.QueryRow(ctx, `
		SELECT sent, failed, bounces, complaints
		FROM channel_daily_metrics
		WHERE day = $1 AND channel = $2
	`, m.Day, channel).Scan(&m.Sent, &m.Failed, &m.Bounces, &m.Complaints)
	if errors.Is(err, pgx.ErrNoRows) {
		return m, nil
	}
	return m, err
}

func (r *Repository) ClaimSend(ctx context.Context, key domain.SendGuardKey) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO send_guard (contact_hash, channel, message_kind, sequence_step)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, key.ContactHash, key.Channel, key.MessageKind, key.SequenceStep)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) ReleaseSend(ctx context.Context, key domain.SendGuardKey) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM send_guard
		WHERE contact_hash = $1 AND channel = $2 AND message_kind = $3 AND sequence_step = $4
	`, key.ContactHash, key.Channel, key.MessageKind, key.SequenceStep)
	return err
}
