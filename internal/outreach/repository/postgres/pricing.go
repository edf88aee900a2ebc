package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (r *Repository) GetPriceLevel(ctx context.Context, plan domain.Plan) (domain.PriceLevel, error) {
	var (
		p      domain.PriceLevel
		window []byte
		sales  []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT plan, level, price, window_outcomes, since_evaluation, baseline_conversion, recent_sales, updated_at
		FROM price_levels
		WHERE plan = $1
	`, plan).Scan(&p.Plan, &p.Level, &p.Price, &window, &p.SinceEvaluation, &p.BaselineConversion, &sales, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PriceLevel{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.PriceLevel{}, err
	}
	if err := json.Unmarshal(window, &p.Window); err != nil {
		return domain.PriceLevel{}, fmt.Errorf("decode price window for %s: %w", plan, err)
	}
	if err := json.Unmarshal(sales, &p.RecentSales); err != nil {
		return domain.PriceLevel{}, fmt.Errorf("decode recent sales for %s: %w", plan, err)
	}
	return p, nil
}

func (r *Repository) SavePriceLevel(ctx context.Context, p domain.PriceLevel) error {
	window := p.Window
	if window == nil {
		window = []bool{}
	}
	encoded, err := json.Marshal(window)
	if err != nil {
		return err
	}
	sales := p.RecentSales
	if sales == nil {
		sales = []uuid.UUID{}
	}
	encodedSales, err := json.Marshal(sales)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO price_levels (plan, level, price, window_outcomes, since_evaluation, baseline_conversion, recent_sales, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (plan) DO UPDATE SET
			level = EXCLUDED.level,
			price = EXCLUDED.price,
			window_outcomes = EXCLUDED.window_outcomes,
			since_evaluation = EXCLUDED.since_evaluation,
			baseline_conversion = EXCLUDED.baseline_conversion,
			recent_sales = EXCLUDED.recent_sales,
			updated_at = now()
	`, p.Plan, p.Level, p.Price, encoded, p.SinceEvaluation, p.BaselineConversion, encodedSales)
	return err
}

const offerColumns = `id, lead_id, plan, level, price, outcome, created_at, resolved_at`

func scanOffer(row pgx.Row) (domain.Offer, error) {
	var o domain.Offer
	err := row.Scan(&o.ID, &o.LeadID, &o.Plan, &o.Level, &o.Price, &o.Outcome, &o.CreatedAt, &o.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Offer{}, repository.ErrNotFound
	}
	return o, err
}

func (r *Repository) InsertOffer(ctx context.Context, o domain.Offer) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO offers (id, lead_id, plan, level, price, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, o.ID, o.LeadID, o.Plan, o.Level, o.Price, domain.OfferPending, o.CreatedAt)
	return err
}

func (r *Repository) GetOffer(ctx context.Context, id uuid.UUID) (domain.Offer, error) {
	return scanOffer(r.pool.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id))
}

func (r *Repository) LatestPendingOffer(ctx context.Context, leadID uuid.UUID) (domain.Offer, error) {
	return scanOffer(r.pool.QueryRow(ctx, `
		SELECT `+offerColumns+`
		FROM offers
		WHERE lead_id = $1 AND outcome = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, leadID, domain.OfferPending))
}

func (r *Repository) ResolveOffer(ctx context.Context, id uuid.UUID, outcome domain.OfferOutcome, at time.Time) (domain.Offer, error) {
	resolved, err := scanOffer(r.pool.QueryRow(ctx, `
		UPDATE offers SET outcome = $2, resolved_at = $3
		WHERE id = $1 AND outcome = $4
		RETURNING `+offerColumns,
		id, outcome, at, domain.OfferPending,
	))
	if !errors.Is(err, repository.ErrNotFound) {
		return resolved, err
	}
	current, err := r.GetOffer(ctx, id)
	if err != nil {
		return domain.Offer{}, err
	}
	return current, repository.ErrAlreadyResolved
}
