package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const replyColumns = `id, lead_id, channel, raw_text, classification, intent, confidence,
	review_status, decision, decided_by, decided_at, received_at`

func scanReply(row pgx.Row) (domain.Reply, error) {
	var rp domain.Reply
	err := row.Scan(
		&rp.ID, &rp.LeadID, &rp.Channel, &rp.RawText, &rp.Classification, &rp.Intent, &rp.Confidence,
		&rp.ReviewStatus, &rp.Decision, &rp.DecidedBy, &rp.DecidedAt, &rp.ReceivedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reply{}, repository.ErrNotFound
	}
	return rp, err
}

func (r *Repository) InsertReply(ctx context.Context, reply domain.Reply) error {
	if reply.ID == uuid.Nil {
		reply.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO replies (id, lead_id, channel, raw_text, classification, intent, confidence, review_status, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, reply.ID, reply.LeadID, reply.Channel, reply.RawText, reply.Classification, reply.Intent, reply.Confidence,
		domain.ReviewPending, reply.ReceivedAt)
	return err
}

func (r *Repository) GetReply(ctx context.Context, id uuid.UUID) (domain.Reply, error) {
	return scanReply(r.pool.QueryRow(ctx, `SELECT `+replyColumns+` FROM replies WHERE id = $1`, id))
}

func (r *Repository) LatestReply(ctx context.Context, leadID uuid.UUID) (domain.Reply, error) {
	return scanReply(r.pool.QueryRow(ctx, `
		SELECT `+replyColumns+`
		FROM replies
		WHERE lead_id = $1
		ORDER BY received_at DESC
		LIMIT 1
	`, leadID))
}

// DecideReply is a conditional update so two reviewers racing on the same
// reply leave exactly one decision.
func (r *Repository) DecideReply(ctx context.Context, id uuid.UUID, decision domain.Decision, decidedBy string, at time.Time) (domain.Reply, error) {
	decided, err := scanReply(r.pool.QueryRow(ctx, `
		UPDATE replies
		SET review_status = $2, decision = $3, decided_by = $4, decided_at = $5
		WHERE id = $1 AND review_status = $6
		RETURNING `+replyColumns,
		id, domain.ReviewDecided, decision, decidedBy, at, domain.ReviewPending,
	))
	if !errors.Is(err, repository.ErrNotFound) {
		return decided, err
	}
	current, err := r.GetReply(ctx, id)
	if err != nil {
		return domain.Reply{}, err
	}
	return current, repository.ErrAlreadyDecided
}

func (r *Repository) ListPendingReplies(ctx context.Context, limit int) ([]domain.Reply, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+replyColumns+`
		FROM replies
		WHERE review_status = $1
		ORDER BY received_at ASC
		LIMIT $2
	`, domain.ReviewPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Reply, 0)
	for rows.Next() {
		rp, err := scanReply(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rp)
	}
	return items, rows.Err()
}
