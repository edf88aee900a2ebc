package eventlog

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps the log in process. Used with STORE=memory and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]Record
	order   []uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]Record)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Append(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if _, ok := m.records[rec.ID]; ok {
		return nil
	}
	rec.Status = StatusPending
	m.records[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// All returns every record in append order.
func (m *MemoryStore) All() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.records[id])
	}
	return out
}

func (m *MemoryStore) ClaimPending(_ context.Context, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit < 1 {
		limit = 50
	}
	pending := make([]Record, 0)
	for _, id := range m.order {
		if rec := m.records[id]; rec.Status == StatusPending {
			pending = append(pending, rec)
		}
	}
	slices.SortStableFunc(pending, func(a, b Record) int { return a.OccurredAt.Compare(b.OccurredAt) })
	if len(pending) > limit {
		pending = pending[:limit]
	}
	for i := range pending {
		pending[i].Status = StatusEnqueued
		m.records[pending[i].ID] = pending[i]
	}
	return pending, nil
}

func (m *MemoryStore) update(id uuid.UUID, fn func(*Record)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	fn(&rec)
	m.records[id] = rec
	return nil
}

func (m *MemoryStore) MarkProcessing(_ context.Context, id uuid.UUID) error {
	return m.update(id, func(r *Record) {
		r.Status = StatusProcessing
		r.Attempts++
	})
}

func (m *MemoryStore) MarkRelayed(_ context.Context, id uuid.UUID) error {
	return m.update(id, func(r *Record) {
		r.Status = StatusRelayed
		r.LastError = nil
	})
}

func (m *MemoryStore) MarkPending(_ context.Context, id uuid.UUID, lastError *string) error {
	return m.update(id, func(r *Record) {
		r.Status = StatusPending
		r.LastError = lastError
	})
}

func (m *MemoryStore) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	return m.update(id, func(r *Record) {
		r.Status = StatusFailed
		r.LastError = &lastError
	})
}
