// Package memory is a process-local Store used by tests and STORE_BACKEND=memory.
package memory

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository"

	"github.com/google/uuid"
)

type optOutKey struct {
	hash    string
	channel domain.Channel
}

type metricKey struct {
	day     time.Time
	channel domain.Channel
}

type alertKey struct {
	job  uuid.UUID
	days int
}

// Store keeps every entity in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	leads      map[uuid.UUID]domain.Lead
	leadsBySrc map[string]uuid.UUID
	touches    map[uuid.UUID][]domain.Touch
	replies    map[uuid.UUID]domain.Reply
	replyOrder []uuid.UUID
	optOuts    map[optOutKey]domain.OptOut
	channels   map[domain.Channel]domain.ChannelStatus
	flags      map[string]bool
	metrics    map[metricKey]domain.DailyMetric
	guards     map[domain.SendGuardKey]struct{}
	levels     map[domain.Plan]domain.PriceLevel
	offers     map[uuid.UUID]domain.Offer
	offerOrder []uuid.UUID
	jobs       map[uuid.UUID]domain.DomainJob
	jobsByLead map[uuid.UUID]uuid.UUID
	alerts     map[alertKey]struct{}
	now        func() time.Time
}

var _ repository.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		leads:      make(map[uuid.UUID]domain.Lead),
		leadsBySrc: make(map[string]uuid.UUID),
		touches:    make(map[uuid.UUID][]domain.Touch),
		replies:    make(map[uuid.UUID]domain.Reply),
		optOuts:    make(map[optOutKey]domain.OptOut),
		channels:   make(map[domain.Channel]domain.ChannelStatus),
		flags:      make(map[string]bool),
		metrics:    make(map[metricKey]domain.DailyMetric),
		guards:     make(map[domain.SendGuardKey]struct{}),
		levels:     make(map[domain.Plan]domain.PriceLevel),
		offers:     make(map[uuid.UUID]domain.Offer),
		jobs:       make(map[uuid.UUID]domain.DomainJob),
		jobsByLead: make(map[uuid.UUID]uuid.UUID),
		alerts:     make(map[alertKey]struct{}),
		now:        time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }

// PutLead overwrites a lead as-is, bypassing version checks. Tests use it to
// seed arbitrary (including corrupted) records.
func (s *Store) PutLead(lead domain.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[lead.ID] = lead
	if lead.SourceURL != "" {
		s.leadsBySrc[lead.SourceURL] = lead.ID
	}
}

// ---- leads ----

func (s *Store) GetLead(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	return lead, nil
}

func (s *Store) GetLeadBySourceURL(_ context.Context, sourceURL string) (domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.leadsBySrc[sourceURL]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	return s.leads[id], nil
}

func (s *Store) ListLeadsAfter(_ context.Context, after uuid.UUID, states []domain.LeadState, limit int) ([]domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Lead, 0)
	for _, lead := range s.leads {
		if lead.Halted || !slices.Contains(states, lead.State) {
			continue
		}
		if bytes.Compare(lead.ID[:], after[:]) <= 0 {
			continue
		}
		out = append(out, lead)
	}
	slices.SortFunc(out, func(a, b domain.Lead) int { return bytes.Compare(a.ID[:], b.ID[:]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateLead(_ context.Context, lead domain.Lead) (domain.Lead, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.leadsBySrc[lead.SourceURL]; ok {
		return s.leads[id], false, nil
	}
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	now := s.now()
	lead.CreatedAt, lead.UpdatedAt = now, now
	lead.Version = 1
	s.leads[lead.ID] = lead
	s.leadsBySrc[lead.SourceURL] = lead.ID
	return lead, true, nil
}

func (s *Store) UpdateLead(_ context.Context, lead domain.Lead) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.leads[lead.ID]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	if current.Version != lead.Version {
		return domain.Lead{}, repository.ErrVersionConflict
	}
	lead.Version++
	lead.CreatedAt = current.CreatedAt
	lead.UpdatedAt = s.now()
	s.leads[lead.ID] = lead
	return lead, nil
}

// ---- touches ----

func (s *Store) AppendTouch(_ context.Context, touch domain.Touch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if touch.ID == uuid.Nil {
		touch.ID = uuid.New()
	}
	s.touches[touch.LeadID] = append(s.touches[touch.LeadID], touch)
	return nil
}

func (s *Store) ListTouches(_ context.Context, leadID uuid.UUID) ([]domain.Touch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.touches[leadID]), nil
}

// ---- replies ----

func (s *Store) InsertReply(_ context.Context, reply domain.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reply.ID == uuid.Nil {
		reply.ID = uuid.New()
	}
	if _, ok := s.replies[reply.ID]; !ok {
		s.replyOrder = append(s.replyOrder, reply.ID)
	}
	s.replies[reply.ID] = reply
	return nil
}

func (s *Store) GetReply(_ context.Context, id uuid.UUID) (domain.Reply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.replies[id]
	if !ok {
		return domain.Reply{}, repository.ErrNotFound
	}
	return r, nil
}

func (s *Store) LatestReply(_ context.Context, leadID uuid.UUID) (domain.Reply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.replyOrder) - 1; i >= 0; i-- {
		if r := s.replies[s.replyOrder[i]]; r.LeadID == leadID {
			return r, nil
		}
	}
	return domain.Reply{}, repository.ErrNotFound
}

func (s *Store) DecideReply(_ context.Context, id uuid.UUID, decision domain.Decision, decidedBy string, at time.Time) (domain.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.replies[id]
	if !ok {
		return domain.Reply{}, repository.ErrNotFound
	}
	if r.Decided() {
		return r, repository.ErrAlreadyDecided
	}
	r.ReviewStatus = domain.ReviewDecided
	r.Decision = decision
	r.DecidedBy = decidedBy
	r.DecidedAt = &at
	s.replies[id] = r
	return r, nil
}

func (s *Store) ListPendingReplies(_ context.Context, limit int) ([]domain.Reply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Reply, 0)
	for _, id := range s.replyOrder {
		if r := s.replies[id]; !r.Decided() {
			out = append(out, r)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// ---- opt-outs ----

func (s *Store) InsertOptOut(_ context.Context, o domain.OptOut) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := optOutKey{o.ContactHash, o.Channel}
	if _, ok := s.optOuts[key]; ok {
		return false, nil
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	s.optOuts[key] = o
	return true, nil
}

func (s *Store) HasOptOut(_ context.Context, contactHash string, channel domain.Channel) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exact := s.optOuts[optOutKey{contactHash, channel}]
	_, all := s.optOuts[optOutKey{contactHash, domain.ChannelAll}]
	return exact || all, nil
}

// ---- channels and flags ----

func (s *Store) GetChannelStatus(_ context.Context, channel domain.Channel) (domain.ChannelStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.channels[channel]; ok {
		return st, nil
	}
	return domain.NewChannelStatus(channel), nil
}

func (s *Store) SaveChannelStatus(_ context.Context, status domain.ChannelStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	status.UpdatedAt = s.now()
	s.channels[status.Channel] = status
	return nil
}

func (s *Store) ListChannelStatuses(ctx context.Context) ([]domain.ChannelStatus, error) {
	out := make([]domain.ChannelStatus, 0, len(domain.MonitoredChannels))
	for _, c := range domain.MonitoredChannels {
		st, _ := s.GetChannelStatus(ctx, c)
		out = append(out, st)
	}
	return out, nil
}

func (s *Store) GetFlag(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[name], nil
}

func (s *Store) SetFlag(_ context.Context, name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[name] = enabled
	return nil
}

// ---- metrics and send guard ----

func (s *Store) IncrementDaily(_ context.Context, delta domain.DailyMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := metricKey{domain.DayOf(delta.Day), delta.Channel}
	m := s.metrics[key]
	m.Day, m.Channel = key.day, key.channel
	m.Sent += delta.Sent
	m.Failed += delta.Failed
	m.Bounces += delta.Bounces
	m.Complaints += delta.Complaints
	s.metrics[key] = m
	return nil
}

func (s *Store) GetDaily(_ context.Context, day time.Time, channel domain.Channel) (domain.DailyMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := metricKey{domain.DayOf(day), channel}
	if m, ok := s.metrics[key]; ok {
		return m, nil
	}
	return domain.DailyMetric{Day: key.day, Channel: channel}, nil
}

func (s *Store) ClaimSend(_ context.Context, key domain.SendGuardKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.guards[key]; ok {
		return false, nil
	}
	s.guards[key] = struct{}{}
	return true, nil
}

func (s *Store) ReleaseSend(_ context.Context, key domain.SendGuardKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guards, key)
	return nil
}

// ---- pricing ----

func (s *Store) GetPriceLevel(_ context.Context, plan domain.Plan) (domain.PriceLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.levels[plan]
	if !ok {
		return domain.PriceLevel{}, repository.ErrNotFound
	}
	p.Window = slices.Clone(p.Window)
	p.RecentSales = slices.Clone(p.RecentSales)
	return p, nil
}

func (s *Store) SavePriceLevel(_ context.Context, level domain.PriceLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	level.Window = slices.Clone(level.Window)
	level.RecentSales = slices.Clone(level.RecentSales)
	level.UpdatedAt = s.now()
	s.levels[level.Plan] = level
	return nil
}

func (s *Store) InsertOffer(_ context.Context, offer domain.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}
	if _, ok := s.offers[offer.ID]; !ok {
		s.offerOrder = append(s.offerOrder, offer.ID)
	}
	s.offers[offer.ID] = offer
	return nil
}

func (s *Store) GetOffer(_ context.Context, id uuid.UUID) (domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.offers[id]
	if !ok {
		return domain.Offer{}, repository.ErrNotFound
	}
	return o, nil
}

func (s *Store) LatestPendingOffer(_ context.Context, leadID uuid.UUID) (domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.offerOrder) - 1; i >= 0; i-- {
		o := s.offers[s.offerOrder[i]]
		if o.LeadID == leadID && o.Outcome == domain.OfferPending {
			return o, nil
		}
	}
	return domain.Offer{}, repository.ErrNotFound
}

func (s *Store) ResolveOffer(_ context.Context, id uuid.UUID, outcome domain.OfferOutcome, at time.Time) (domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	if !ok {
		return domain.Offer{}, repository.ErrNotFound
	}
	if o.Outcome != domain.OfferPending {
		return o, repository.ErrAlreadyResolved
	}
	o.Outcome = outcome
	o.ResolvedAt = &at
	s.offers[id] = o
	return o, nil
}

// ---- domain jobs ----

func (s *Store) CreateDomainJob(_ context.Context, job domain.DomainJob) (domain.DomainJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.jobsByLead[job.LeadID]; ok {
		return s.withAlerts(s.jobs[id]), false, nil
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := s.now()
	job.CreatedAt, job.UpdatedAt = now, now
	job.Checklist = slices.Clone(job.Checklist)
	s.jobs[job.ID] = job
	s.jobsByLead[job.LeadID] = job.ID
	return s.withAlerts(job), true, nil
}

func (s *Store) GetDomainJob(_ context.Context, id uuid.UUID) (domain.DomainJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.DomainJob{}, repository.ErrNotFound
	}
	return s.withAlerts(job), nil
}

func (s *Store) SaveDomainJob(_ context.Context, job domain.DomainJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return repository.ErrNotFound
	}
	job.Checklist = slices.Clone(job.Checklist)
	job.AlertsSent = nil
	job.UpdatedAt = s.now()
	s.jobs[job.ID] = job
	return nil
}

func (s *Store) ListExpiringDomainJobs(_ context.Context, before time.Time) ([]domain.DomainJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DomainJob, 0)
	for _, job := range s.jobs {
		if !job.ExpiresAt.After(before) {
			out = append(out, s.withAlerts(job))
		}
	}
	slices.SortFunc(out, func(a, b domain.DomainJob) int { return a.ExpiresAt.Compare(b.ExpiresAt) })
	return out, nil
}

func (s *Store) MarkAlertSent(_ context.Context, jobID uuid.UUID, daysBefore int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := alertKey{jobID, daysBefore}
	if _, ok := s.alerts[key]; ok {
		return false, nil
	}
	s.alerts[key] = struct{}{}
	return true, nil
}

// withAlerts must be called with mu held.
func (s *Store) withAlerts(job domain.DomainJob) domain.DomainJob {
	job.Checklist = slices.Clone(job.Checklist)
	job.AlertsSent = nil
	for key := range s.alerts {
		if key.job == job.ID {
			job.AlertsSent = append(job.AlertsSent, key.days)
		}
	}
	slices.Sort(job.AlertsSent)
	return job
}
