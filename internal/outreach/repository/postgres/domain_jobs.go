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

const domainJobSelect = `
	SELECT j.id, j.lead_id, j.plan, j.status, j.checklist, j.expires_at, j.created_at, j.updated_at,
		COALESCE(array_agg(a.days_before ORDER BY a.days_before) FILTER (WHERE a.days_before IS NOT NULL), '{}')
	FROM domain_jobs j
	LEFT JOIN domain_job_alerts a ON a.job_id = j.id`

func scanDomainJob(row pgx.Row) (domain.DomainJob, error) {
	var (
		job       domain.DomainJob
		checklist []byte
		alerts    []int32
	)
	err := row.Scan(&job.ID, &job.LeadID, &job.Plan, &job.Status, &checklist, &job.ExpiresAt, &job.CreatedAt, &job.UpdatedAt, &alerts)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DomainJob{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.DomainJob{}, err
	}
	if err := json.Unmarshal(checklist, &job.Checklist); err != nil {
		return domain.DomainJob{}, fmt.Errorf("decode checklist for job %s: %w", job.ID, err)
	}
	for _, d := range alerts {
		job.AlertsSent = append(job.AlertsSent, int(d))
	}
	return job, nil
}

func (r *Repository) CreateDomainJob(ctx context.Context, job domain.DomainJob) (domain.DomainJob, bool, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	checklist, err := json.Marshal(job.Checklist)
	if err != nil {
		return domain.DomainJob{}, false, err
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO domain_jobs (id, lead_id, plan, status, checklist, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (lead_id) DO NOTHING
	`, job.ID, job.LeadID, job.Plan, job.Status, checklist, job.ExpiresAt)
	if err != nil {
		return domain.DomainJob{}, false, err
	}
	created := tag.RowsAffected() == 1

	stored, err := scanDomainJob(r.pool.QueryRow(ctx, domainJobSelect+`
		WHERE j.lead_id = $1
		GROUP BY j.id
	`, job.LeadID))
	if err != nil {
		return domain.DomainJob{}, false, err
	}
	return stored, created, nil
}

func (r *Repository) GetDomainJob(ctx context.Context, id uuid.UUID) (domain.DomainJob, error) {
	return scanDomainJob(r.pool.QueryRow(ctx, domainJobSelect+`
		WHERE j.id = $1
		GROUP BY j.id
	`, id))
}

func (r *Repository) SaveDomainJob(ctx context.Context, job domain.DomainJob) error {
	checklist, err := json.Marshal(job.Checklist)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE domain_jobs SET status = $2, checklist = $3, expires_at = $4, updated_at = now()
		WHERE id = $1
	`, job.ID, job.Status, checklist, job.ExpiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *Repository) ListExpiringDomainJobs(ctx context.Context, before time.Time) ([]domain.DomainJob, error) {
	rows, err := r.pool.Query(ctx, domainJobSelect+`
		WHERE j.expires_at <= $1
		GROUP BY j.id
		ORDER BY j.expires_at ASC
	`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.DomainJob, 0)
	for rows.Next() {
		job, err := scanDomainJob(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, job)
	}
	return items, rows.Err()
}

func (r *Repository) MarkAlertSent(ctx context.Context, jobID uuid.UUID, daysBefore int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO domain_job_alerts (job_id, days_before) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, jobID, daysBefore)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
