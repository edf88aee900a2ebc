// Package postgres implements the outreach Store on pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Repository)(nil)

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const leadColumns = `id, contact_hash, business_name, source_url, email, phone, website, address,
	audience, country_code, state, last_touch_at, offer_sent_at, channel_used, attempts, halted,
	version, created_at, updated_at`

func scanLead(row pgx.Row) (domain.Lead, error) {
	var l domain.Lead
	err := row.Scan(
		&l.ID, &l.ContactHash, &l.BusinessName, &l.SourceURL, &l.Email, &l.Phone, &l.Website, &l.Address,
		&l.Audience, &l.CountryCode, &l.State, &l.LastTouchAt, &l.OfferSentAt, &l.ChannelUsed, &l.Attempts, &l.Halted,
		&l.Version, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, repository.ErrNotFound
	}
	return l, err
}

func (r *Repository) GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
}

func (r *Repository) GetLeadBySourceURL(ctx context.Context, sourceURL string) (domain.Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE source_url = $1`, sourceURL))
}

func (r *Repository) ListLeadsAfter(ctx context.Context, after uuid.UUID, states []domain.LeadState, limit int) ([]domain.Lead, error) {
	raw := make([]string, len(states))
	for i, s := range states {
		raw[i] = string(s)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE id > $1 AND state = ANY($2) AND halted = false
		ORDER BY id
		LIMIT $3
	`, after, raw, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Lead, 0, limit)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, lead)
	}
	return items, rows.Err()
}

// CreateLead relies on the source_url unique index; a conflicting insert
// returns no row and the stored lead is read back.
func (r *Repository) CreateLead(ctx context.Context, lead domain.Lead) (domain.Lead, bool, error) {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	created, err := scanLead(r.pool.QueryRow(ctx, `
		INSERT INTO leads (
			id, contact_hash, business_name, source_url, email, phone, website, address,
			audience, country_code, state, channel_used, attempts, halted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (source_url) DO NOTHING
		RETURNING `+leadColumns,
		lead.ID, lead.ContactHash, lead.BusinessName, lead.SourceURL, lead.Email, lead.Phone, lead.Website, lead.Address,
		lead.Audience, lead.CountryCode, lead.State, lead.ChannelUsed, lead.Attempts, lead.Halted,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return domain.Lead{}, false, err
	}
	existing, err := r.GetLeadBySourceURL(ctx, lead.SourceURL)
	if err != nil {
		return domain.Lead{}, false, fmt.Errorf("read back conflicting lead: %w", err)
	}
	return existing, false, nil
}

func (r *Repository) UpdateLead(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	updated, err := scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads SET
			contact_hash = $3, business_name = $4, email = $5, phone = $6, website = $7, address = $8,
			audience = $9, country_code = $10, state = $11, last_touch_at = $12, offer_sent_at = $13,
			channel_used = $14, attempts = $15, halted = $16,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+leadColumns,
		lead.ID, lead.Version,
		lead.ContactHash, lead.BusinessName, lead.Email, lead.Phone, lead.Website, lead.Address,
		lead.Audience, lead.CountryCode, lead.State, lead.LastTouchAt, lead.OfferSentAt,
		lead.ChannelUsed, lead.Attempts, lead.Halted,
	))
	if !errors.Is(err, repository.ErrNotFound) {
		return updated, err
	}
	if _, getErr := r.GetLead(ctx, lead.ID); getErr != nil {
		return domain.Lead{}, getErr
	}
	return domain.Lead{}, repository.ErrVersionConflict
}

func (r *Repository) AppendTouch(ctx context.Context, touch domain.Touch) error {
	if touch.ID == uuid.Nil {
		touch.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO touches (id, lead_id, channel, message_kind, provider_message_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, touch.ID, touch.LeadID, touch.Channel, touch.MessageKind, touch.ProviderMessageID, touch.SentAt)
	return err
}

func (r *Repository) ListTouches(ctx context.Context, leadID uuid.UUID) ([]domain.Touch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, channel, message_kind, provider_message_id, sent_at
		FROM touches
		WHERE lead_id = $1
		ORDER BY sent_at ASC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Touch, 0)
	for rows.Next() {
		var t domain.Touch
		if err := rows.Scan(&t.ID, &t.LeadID, &t.Channel, &t.MessageKind, &t.ProviderMessageID, &t.SentAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *Repository) InsertOptOut(ctx context.Context, o domain.OptOut) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO opt_outs (contact_hash, channel, source)
		VALUES ($1, $2, $3)
		ON CONFLICT (contact_hash, channel) DO NOTHING
	`, o.ContactHash, o.Channel, o.Source)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) HasOptOut(ctx context.Context, contactHash string, channel domain.Channel) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM opt_outs WHERE contact_hash = $1 AND channel IN ($2, $3)
		)
	`, contactHash, channel, domain.ChannelAll).Scan(&exists)
	return exists, err
}
