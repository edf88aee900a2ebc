package review

import (
	"context"
	"testing"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository/memory"
	"github.com/renandiiias/build-automated-outreach/platform/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGate(t *testing.T) (*Gate, *memory.Store, *events.Recording) {
	t.Helper()
	store := memory.New()
	bus := events.NewRecording()
	return New(store, bus, nil, nil), store, bus
}

func touchedLead(t *testing.T, store *memory.Store) domain.Lead {
	t.Helper()
	touched := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	lead, _, err := store.CreateLead(context.Background(), domain.Lead{
		SourceURL:   "https://maps.example/" + uuid.NewString(),
		Email:       "dono@padaria.com.br",
		ContactHash: domain.ContactHash("dono@padaria.com.br", ""),
		State:       domain.LeadWaitingReply,
		LastTouchAt: &touched,
		ChannelUsed: domain.ChannelEmail,
		Attempts:    1,
	})
	require.NoError(t, err)
	return lead
}

func TestClassify(t *testing.T) {
	cases := []struct {
		text   string
		label  domain.Decision
		intent string
	}{
		{"STOP", domain.DecisionOptOut, ""},
		{" parar. ", domain.DecisionOptOut, ""},
		{"please stop sending me these offers", domain.DecisionOther, ""},
		{"Sim, pode mandar", domain.DecisionPositive, ""},
		{"sounds good to me", domain.DecisionPositive, ""},
		{"I am looking at it", domain.DecisionOther, ""},
		{"muito caro pra mim", domain.DecisionOther, IntentObjectionPrice},
		{"talvez depois", domain.DecisionOther, IntentNotNow},
		{"tem garantia?", domain.DecisionOther, IntentObjectionTrust},
		{"who is this", domain.DecisionOther, ""},
	}
	for _, tc := range cases {
		got := Classify(tc.text)
		assert.Equal(t, tc.label, got.Label, tc.text)
		assert.Equal(t, tc.intent, got.Intent, tc.text)
	}
	assert.InDelta(t, 0.99, Classify("stop").Confidence, 1e-9)
	assert.InDelta(t, 0.5, Classify("who is this").Confidence, 1e-9)
}

func TestDetectPlan(t *testing.T) {
	assert.Equal(t, domain.PlanSimples, DetectPlan("quero o plano simples"))
	assert.Equal(t, domain.PlanCompleto, DetectPlan("vamos de completo"))
	assert.Equal(t, domain.PlanCompleto, DetectPlan("ok"))
}

func TestRecordReplySanitizesAndQueues(t *testing.T) {
	ctx := context.Background()
	g, store, bus := newGate(t)
	lead := touchedLead(t, store)

	reply, err := g.RecordReply(ctx, lead.ID, domain.ChannelEmail,
		`<div><p>Sim, quero ver!</p><blockquote>old thread</blockquote></div>`)
	require.NoError(t, err)
	assert.Equal(t, "Sim, quero ver!", reply.RawText)
	assert.Equal(t, domain.DecisionPositive, reply.Classification)
	assert.Equal(t, domain.ReviewPending, reply.ReviewStatus)
	assert.Equal(t, 1, bus.Count(events.NameReplyReceived))

	got, err := store.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadWaitingReply, got.State, "classification alone never moves the lead")

	pending, err := g.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, reply.ID, pending[0].ID)
}

func TestRecordReplyRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	g, store, bus := newGate(t)
	lead := touchedLead(t, store)

	_, err := g.RecordReply(ctx, lead.ID, domain.ChannelEmail, "  <p> </p> ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = g.RecordReply(ctx, lead.ID, domain.ChannelScrape, "oi")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = g.RecordReply(ctx, uuid.New(), domain.ChannelEmail, "oi")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Empty(t, bus.Events())
}

func TestCommercialActionRequiresDecision(t *testing.T) {
	ctx := context.Background()
	g, store, _ := newGate(t)
	lead := touchedLead(t, store)

	err := g.RequireDecision(ctx, lead.ID)
	assert.Equal(t, domain.ReasonNoConsent, apperr.ReasonOf(err))

	reply, err := g.RecordReply(ctx, lead.ID, domain.ChannelEmail, "sim")
	require.NoError(t, err)
	err = g.RequireDecision(ctx, lead.ID)
	assert.True(t, apperr.Is(err, apperr.KindPolicyViolation))
	assert.Equal(t, domain.ReasonReviewPending, apperr.ReasonOf(err))
	waiting, err := g.AwaitingReview(ctx, lead.ID)
	require.NoError(t, err)
	assert.True(t, waiting)

	_, err = g.SubmitDecision(ctx, reply.ID, domain.DecisionPositive, "ana")
	require.NoError(t, err)
	assert.NoError(t, g.RequireDecision(ctx, lead.ID))

	got, err := store.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadConsented, got.State)

	_, err = g.RecordReply(ctx, lead.ID, domain.ChannelEmail, "mais uma pergunta")
	require.NoError(t, err)
	err = g.RequireDecision(ctx, lead.ID)
	assert.Equal(t, domain.ReasonReviewPending, apperr.ReasonOf(err), "a newer reply needs its own decision")
}

func TestOptOutDecisionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	g, store, bus := newGate(t)
	lead := touchedLead(t, store)
	reply, err := g.RecordReply(ctx, lead.ID, domain.ChannelEmail, "parar")
	require.NoError(t, err)

	first, err := g.SubmitDecision(ctx, reply.ID, domain.DecisionOptOut, "ana")
	require.NoError(t, err)
	again, err := g.SubmitDecision(ctx, reply.ID, domain.DecisionOptOut, "bruno")
	require.NoError(t, err)
	assert.Equal(t, first.DecidedBy, again.DecidedBy, "the first decision record is kept")

	got, err := store.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadUnsubscribed, got.State)
	opted, err := store.HasOptOut(ctx, lead.ContactHash, domain.ChannelWhatsApp)
	require.NoError(t, err)
	assert.True(t, opted, "reply opt-out covers every channel")
	assert.Equal(t, 1, bus.Count(events.NameOptOutRegistered))

	_, err = g.SubmitDecision(ctx, reply.ID, domain.DecisionPositive, "ana")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestUnsubscribedLeadIsNeverResurrected(t *testing.T) {
	ctx := context.Background()
	g, store, _ := newGate(t)
	lead := touchedLead(t, store)

	_, err := g.OptOut(ctx, lead.ID, SourceUnsubscribe)
	require.NoError(t, err)

	reply, err := g.RecordReply(ctx, lead.ID, domain.ChannelEmail, "sim, quero")
	require.NoError(t, err)
	decided, err := g.SubmitDecision(ctx, reply.ID, domain.DecisionPositive, "ana")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionPositive, decided.Decision)

	got, err := store.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadUnsubscribed, got.State)
}

func TestOtherDecisionReturnsLeadToWaiting(t *testing.T) {
	ctx := context.Background()
	g, store, _ := newGate(t)
	lead := touchedLead(t, store)

	first, err := g.RecordReply(ctx, lead.ID, domain.ChannelEmail, "sim")
	require.NoError(t, err)
	_, err = g.SubmitDecision(ctx, first.ID, domain.DecisionPositive, "ana")
	require.NoError(t, err)

	second, err := g.RecordReply(ctx, lead.ID, domain.ChannelEmail, "muito caro")
	require.NoError(t, err)
	_, err = g.SubmitDecision(ctx, second.ID, domain.DecisionOther, "ana")
	require.NoError(t, err)

	got, err := store.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadWaitingReply, got.State)
	assert.Equal(t, 1, got.Attempts, "counters untouched")

	_, err = g.SubmitDecision(ctx, first.ID, domain.DecisionPositive, "ana")
	require.NoError(t, err)
	got, err = store.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadWaitingReply, got.State, "a repeat on an older reply does not override")
}

func TestSubmitDecisionValidates(t *testing.T) {
	ctx := context.Background()
	g, store, _ := newGate(t)
	lead := touchedLead(t, store)
	reply, err := g.RecordReply(ctx, lead.ID, domain.ChannelEmail, "sim")
	require.NoError(t, err)

	_, err = g.SubmitDecision(ctx, reply.ID, "maybe", "ana")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = g.SubmitDecision(ctx, reply.ID, domain.DecisionPositive, " ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = g.SubmitDecision(ctx, uuid.New(), domain.DecisionPositive, "ana")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
