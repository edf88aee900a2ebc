// Package eventlog persists every domain event as an append-only stream and
// relays it to an external sink.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusEnqueued   Status = "enqueued"
	StatusProcessing Status = "processing"
	StatusRelayed    Status = "relayed"
	StatusFailed     Status = "failed"
)

var ErrNotFound = errors.New("event not found")

// Record is one stored event.
type Record struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Fingerprint string          `json:"fingerprint"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   *string         `json:"lastError,omitempty"`
}

// Store is the event log persistence.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Get(ctx context.Context, id uuid.UUID) (Record, error)
	// ClaimPending moves up to limit pending records to enqueued, oldest first.
	ClaimPending(ctx context.Context, limit int) ([]Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkRelayed(ctx context.Context, id uuid.UUID) error
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}
