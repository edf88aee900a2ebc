package domainjobs

import (
	"context"
	"testing"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository/memory"
	"github.com/renandiiias/build-automated-outreach/platform/apperr"
	"github.com/renandiiias/build-automated-outreach/platform/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *events.Recording) {
	t.Helper()
	bus := events.NewRecording()
	svc := New(memory.New(), bus, nil, config.DefaultPolicy().DomainJobs)
	svc.SetClock(func() time.Time { return created })
	return svc, bus
}

func TestCreateForSaleIsIdempotentPerLead(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	lead := uuid.New()

	first, err := svc.CreateForSale(ctx, lead, domain.PlanCompleto)
	require.NoError(t, err)
	assert.Equal(t, domain.JobDomainSelected, first.Status)
	assert.Len(t, first.Checklist, 5)
	assert.Equal(t, created.Add(365*24*time.Hour), first.ExpiresAt)

	second, err := svc.CreateForSale(ctx, lead, domain.PlanCompleto)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCompleteStepDerivesStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	job, err := svc.CreateForSale(ctx, uuid.New(), domain.PlanSimples)
	require.NoError(t, err)

	job, err = svc.CompleteStep(ctx, job.ID, domain.StepSelectDomain)
	require.NoError(t, err)
	assert.Equal(t, domain.JobInProgress, job.Status)

	for _, step := range []string{domain.StepRegisterDomain, domain.StepConfigureDNS, domain.StepPublishSite, domain.StepConfirmRenewalContact} {
		job, err = svc.CompleteStep(ctx, job.ID, step)
		require.NoError(t, err)
	}
	assert.Equal(t, domain.JobDone, job.Status)

	_, err = svc.CompleteStep(ctx, job.ID, "renew_domain")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = svc.CompleteStep(ctx, uuid.New(), domain.StepPublishSite)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSweepAlertsOncePerOffset(t *testing.T) {
	ctx := context.Background()
	svc, bus := newService(t)
	job, err := svc.CreateForSale(ctx, uuid.New(), domain.PlanCompleto)
	require.NoError(t, err)

	res, err := svc.Sweep(ctx, job.ExpiresAt.Add(-31*day))
	require.NoError(t, err)
	assert.Zero(t, res.Alerted)

	res, err = svc.Sweep(ctx, job.ExpiresAt.Add(-30*day))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Alerted)

	res, err = svc.Sweep(ctx, job.ExpiresAt.Add(-29*day))
	require.NoError(t, err)
	assert.Zero(t, res.Alerted, "the 30 day alert fires once")

	res, err = svc.Sweep(ctx, job.ExpiresAt.Add(-15*day))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Alerted)

	var days []int
	for _, e := range bus.Events() {
		if a, ok := e.(events.DomainExpiryAlert); ok {
			days = append(days, a.DaysBefore)
		}
	}
	assert.ElementsMatch(t, []int{30, 15}, days)
}

func TestSweepAnnouncesOnlyClosestWhenSeveralCrossed(t *testing.T) {
	ctx := context.Background()
	svc, bus := newService(t)
	job, err := svc.CreateForSale(ctx, uuid.New(), domain.PlanCompleto)
	require.NoError(t, err)

	res, err := svc.Sweep(ctx, job.ExpiresAt.Add(-6*day))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Alerted)

	evts := bus.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, 7, evts[0].(events.DomainExpiryAlert).DaysBefore)

	res, err = svc.Sweep(ctx, job.ExpiresAt.Add(-5*day))
	require.NoError(t, err)
	assert.Zero(t, res.Alerted)

	res, err = svc.Sweep(ctx, job.ExpiresAt.Add(day))
	require.NoError(t, err)
	assert.Zero(t, res.Scanned, "expired jobs are not renewed or alerted")
}
