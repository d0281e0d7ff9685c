package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"outreach/internal/application/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enroll(t *testing.T, env *testEnv, campaign *entity.Campaign, lead *entity.Lead) *entity.CampaignEnrollment {
	t.Helper()
	e := &entity.CampaignEnrollment{
		ID:          mustUUID(t),
		CampaignID:  campaign.ID,
		LeadID:      lead.ID,
		Status:      entity.EnrollmentActive,
		CurrentStep: 1,
		NextSendAt:  testNow,
		StartedAt:   testNow,
	}
	env.repo.enrollments[e.ID] = e
	return e
}

func TestOutreachQueueSendsAndAdvances(t *testing.T) {
	env := newTestEnv(t)
	lead := env.seedLead(t, entity.StageUnaware)
	campaign := env.seedCampaign(t,
		entity.CampaignStep{Order: 1, Subject: "Hello {first_name}", Body: "From {company}"},
		entity.CampaignStep{Order: 2, Subject: "Following up", Body: "Still here", Delay: 1440 * time.Minute},
	)
	e := enroll(t, env, campaign, lead)

	res, err := env.svc.ProcessOutreachQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 0, res.Errors)

	got := env.repo.enrollments[e.ID]
	assert.Equal(t, 2, got.CurrentStep)
	assert.Equal(t, entity.EnrollmentActive, got.Status)
	assert.Equal(t, testNow.Add(1440*time.Minute), got.NextSendAt)
	assert.Equal(t, 0, got.Attempts)

	require.Len(t, env.mailer.sent, 1)
	assert.Equal(t, "Hello Pat", env.mailer.sent[0].Subject)
	assert.Equal(t, "From Acme Accounting", env.mailer.sent[0].HTML)
	assert.Equal(t, "pat@example.com", env.mailer.sent[0].To)
	assert.Equal(t, "dana@firm.example", env.mailer.sent[0].FromEmail)

	require.Len(t, env.repo.outreach, 1)
	assert.Equal(t, entity.OutreachSent, env.repo.outreach[0].Type)

	// The delivery row carries the provider message id for later
	// engagement attribution.
	d, err := env.repo.GetDeliveryByProviderID(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.Equal(t, lead.ID, d.LeadID)
	assert.Equal(t, campaign.ID, d.CampaignID)
}

func TestOutreachQueueCompletesAfterLastStep(t *testing.T) {
	env := newTestEnv(t)
	lead := env.seedLead(t, entity.StageUnaware)
	campaign := env.seedCampaign(t,
		entity.CampaignStep{Order: 1, Subject: "Only step", Body: "Body"},
	)
	e := enroll(t, env, campaign, lead)

	res, err := env.svc.ProcessOutreachQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	got := env.repo.enrollments[e.ID]
	assert.Equal(t, entity.EnrollmentCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, testNow, *got.CompletedAt)

	// No further sends for a completed enrollment.
	res, err = env.svc.ProcessOutreachQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Len(t, env.mailer.sent, 1)
}

func TestOutreachQueueSkipsNonRunningCampaigns(t *testing.T) {
	env := newTestEnv(t)
	lead := env.seedLead(t, entity.StageUnaware)
	campaign := env.seedCampaign(t,
		entity.CampaignStep{Order: 1, Subject: "s", Body: "b"},
	)
	env.repo.campaigns[campaign.ID].Status = entity.CampaignPaused
	enroll(t, env, campaign, lead)

	res, err := env.svc.ProcessOutreachQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Empty(t, env.mailer.sent)
}

func TestOutreachQueueRetriesWithBackoffOnSendFailure(t *testing.T) {
	env := newTestEnv(t)
	lead := env.seedLead(t, entity.StageUnaware)
	campaign := env.seedCampaign(t,
		entity.CampaignStep{Order: 1, Subject: "s", Body: "b"},
	)
	e := enroll(t, env, campaign, lead)

	env.mailer.failNext(errors.New("provider unavailable"))

	res, err := env.svc.ProcessOutreachQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 1, res.Errors)

	got := env.repo.enrollments[e.ID]
	assert.Equal(t, entity.EnrollmentActive, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, 1, got.CurrentStep)
	assert.True(t, got.NextSendAt.After(testNow), "retry must be pushed into the future")

	// The failure is recorded as a bounce with the score penalty.
	require.Len(t, env.repo.outreach, 1)
	assert.Equal(t, entity.OutreachBounced, env.repo.outreach[0].Type)
	assert.Equal(t, -10, env.repo.leads[lead.ID].Score)
}

func TestOutreachQueueGivesUpAfterMaxAttempts(t *testing.T) {
	env := newTestEnv(t)
	lead := env.seedLead(t, entity.StageUnaware)
	campaign := env.seedCampaign(t,
		entity.CampaignStep{Order: 1, Subject: "s", Body: "b"},
	)
	e := enroll(t, env, campaign, lead)
	env.repo.enrollments[e.ID].Attempts = 2 // one failure away from the ceiling of 3

	env.mailer.failNext(errors.New("provider unavailable"))

	res, err := env.svc.ProcessOutreachQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)

	got := env.repo.enrollments[e.ID]
	assert.Equal(t, entity.EnrollmentNeedsAttention, got.Status)
	assert.Equal(t, 3, got.Attempts)

	// NEEDS_ATTENTION enrollments stay out of the queue.
	res, err = env.svc.ProcessOutreachQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed+res.Errors)
}

func TestOutreachQueueSuccessResetsAttempts(t *testing.T) {
	env := newTestEnv(t)
	lead := env.seedLead(t, entity.StageUnaware)
	campaign := env.seedCampaign(t,
		entity.CampaignStep{Order: 1, Subject: "s", Body: "b"},
		entity.CampaignStep{Order: 2, Subject: "s2", Body: "b2", Delay: time.Hour},
	)
	e := enroll(t, env, campaign, lead)
	env.repo.enrollments[e.ID].Attempts = 2

	res, err := env.svc.ProcessOutreachQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	got := env.repo.enrollments[e.ID]
	assert.Equal(t, 0, got.Attempts)
	assert.Equal(t, 2, got.CurrentStep)
}

func TestOutreachQueueRepairsPastEndEnrollment(t *testing.T) {
	env := newTestEnv(t)
	lead := env.seedLead(t, entity.StageUnaware)
	campaign := env.seedCampaign(t,
		entity.CampaignStep{Order: 1, Subject: "s", Body: "b"},
	)
	e := enroll(t, env, campaign, lead)
	// An update shrank the step list under this enrollment.
	env.repo.enrollments[e.ID].CurrentStep = 2

	res, err := env.svc.ProcessOutreachQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	assert.Equal(t, entity.EnrollmentCompleted, env.repo.enrollments[e.ID].Status)
	assert.Empty(t, env.mailer.sent)
}

func TestRenderTemplate(t *testing.T) {
	fields := map[string]string{"first_name": "Pat", "company": "Acme"}

	assert.Equal(t, "Hi Pat from Acme", RenderTemplate("Hi {first_name} from {company}", fields))
	assert.Equal(t, "no placeholders", RenderTemplate("no placeholders", fields))
	// Unknown placeholders stay visible instead of disappearing.
	assert.Equal(t, "{unknown}", RenderTemplate("{unknown}", fields))
}
