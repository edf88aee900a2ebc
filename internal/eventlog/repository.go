package eventlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const errRepoNotConfigured = "event log repository not configured"

// Repository stores the event log in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) Append(ctx context.Context, rec Record) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	if rec.Name == "" {
		return fmt.Errorf("event name is required")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO event_log (id, name, fingerprint, payload, occurred_at, status)
		 VALUES ($1, $2, $3, $4, $5, 'pending')
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Name, rec.Fingerprint, []byte(rec.Payload), rec.OccurredAt,
	)
	return err
}

const selectColumns = `id, name, fingerprint, payload, occurred_at, status, attempts, last_error`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var status string
	err := row.Scan(&rec.ID, &rec.Name, &rec.Fingerprint, &rec.Payload, &rec.OccurredAt, &status, &rec.Attempts, &rec.LastError)
	rec.Status = Status(status)
	return rec, err
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	if r == nil || r.pool == nil {
		return Record{}, errors.New(errRepoNotConfigured)
	}
	rec, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM event_log WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (r *Repository) ClaimPending(ctx context.Context, limit int) ([]Record, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM event_log
		WHERE status = 'pending'
		ORDER BY occurred_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE event_log e
	SET status = 'enqueued', updated_at = now()
	FROM cte
	WHERE e.id = cte.id
	RETURNING e.id, e.name, e.fingerprint, e.payload, e.occurred_at, e.status, e.attempts, e.last_error`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx,
		`UPDATE event_log
		 SET status = 'processing', attempts = attempts + 1, updated_at = now()
		 WHERE id = $1`, id)
}

func (r *Repository) MarkRelayed(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx,
		`UPDATE event_log
		 SET status = 'relayed', last_error = NULL, updated_at = now()
		 WHERE id = $1`, id)
}

func (r *Repository) MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error {
	return r.exec(ctx,
		`UPDATE event_log
		 SET status = 'pending', last_error = $2, updated_at = now()
		 WHERE id = $1`, id, lastError)
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.exec(ctx,
		`UPDATE event_log
		 SET status = 'failed', last_error = $2, updated_at = now()
		 WHERE id = $1`, id, lastError)
}

func (r *Repository) exec(ctx context.Context, sql string, args ...any) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx, sql, args...)
	return err
}
