package service

import (
	"context"
	"fmt"
	"outreach/internal/appers"
	"outreach/internal/application/entity"
	"outreach/internal/application/repo"
	"outreach/internal/transport/mailer"
	"outreach/pkg/config"
	"outreach/pkg/metrics"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeRepo is an in-memory repo.Repo. It is deliberately dumb: no
// leases, no locking semantics beyond a mutex, claim methods live on
// fakeTx where the production code calls them.
type fakeRepo struct {
	mu sync.Mutex

	events      map[uuid.UUID]*entity.Event
	eventOrder  []uuid.UUID
	deliveries  map[string]*entity.EmailDelivery
	outreach    []entity.OutreachEvent
	leads       map[uuid.UUID]*entity.Lead
	stages      map[string]*entity.PipelineStage
	campaigns   map[uuid.UUID]*entity.Campaign
	steps       map[uuid.UUID][]entity.CampaignStep
	senders     map[uuid.UUID]*entity.Sender
	enrollments map[uuid.UUID]*entity.CampaignEnrollment
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		events:      make(map[uuid.UUID]*entity.Event),
		deliveries:  make(map[string]*entity.EmailDelivery),
		leads:       make(map[uuid.UUID]*entity.Lead),
		stages:      make(map[string]*entity.PipelineStage),
		campaigns:   make(map[uuid.UUID]*entity.Campaign),
		steps:       make(map[uuid.UUID][]entity.CampaignStep),
		senders:     make(map[uuid.UUID]*entity.Sender),
		enrollments: make(map[uuid.UUID]*entity.CampaignEnrollment),
	}
}

func stageKey(workspaceID uuid.UUID, name string) string {
	return workspaceID.String() + "/" + name
}

func (f *fakeRepo) InsertEvent(_ context.Context, e *entity.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	cp.CreatedAt = testNow
	f.events[e.ID] = &cp
	f.eventOrder = append(f.eventOrder, e.ID)
	return nil
}

func (f *fakeRepo) ClaimEventBatch(_ context.Context, _ time.Duration, limit int) ([]entity.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []entity.Event
	for _, id := range f.eventOrder {
		if len(res) >= limit {
			break
		}
		e := f.events[id]
		if e.Status != entity.EventPending {
			continue
		}
		e.Status = entity.EventProcessing
		e.Attempts++
		res = append(res, *e)
	}
	return res, nil
}

func (f *fakeRepo) MarkEventProcessed(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return fmt.Errorf("event %s not found", id)
	}
	e.Status = entity.EventProcessed
	return nil
}

func (f *fakeRepo) MarkEventFailed(_ context.Context, id uuid.UUID, lastErr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return fmt.Errorf("event %s not found", id)
	}
	e.Status = entity.EventFailed
	e.LastError = lastErr
	return nil
}

func (f *fakeRepo) ReclaimExpiredLeases(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, e := range f.events {
		if e.Status == entity.EventProcessing {
			e.Status = entity.EventPending
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) InsertDelivery(_ context.Context, d *entity.EmailDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	f.deliveries[d.ProviderMessageID] = &cp
	return nil
}

func (f *fakeRepo) GetDeliveryByProviderID(_ context.Context, providerMessageID string) (*entity.EmailDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deliveries[providerMessageID]
	if !ok {
		return nil, appers.ErrDeliveryNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeRepo) UpdateDeliveryStatus(_ context.Context, id uuid.UUID, status entity.DeliveryStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deliveries {
		if d.ID == id {
			d.Status = status
			return nil
		}
	}
	return fmt.Errorf("delivery %s not found", id)
}

func (f *fakeRepo) InsertOutreachEvent(_ context.Context, e *entity.OutreachEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outreach = append(f.outreach, *e)
	return nil
}

func (f *fakeRepo) CountOutreachEventsByType(_ context.Context, campaignID uuid.UUID) (map[entity.OutreachEventType]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[entity.OutreachEventType]int)
	for _, e := range f.outreach {
		if e.CampaignID == campaignID {
			counts[e.Type]++
		}
	}
	return counts, nil
}

func (f *fakeRepo) GetLead(_ context.Context, id uuid.UUID) (*entity.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[id]
	if !ok {
		return nil, appers.ErrLeadNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeRepo) ApplyScoreDelta(_ context.Context, leadID uuid.UUID, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[leadID]
	if !ok {
		return appers.ErrLeadNotFound
	}
	l.Score += delta
	return nil
}

func (f *fakeRepo) UpdateLeadStage(_ context.Context, leadID uuid.UUID, stage entity.AwarenessStage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[leadID]
	if !ok {
		return appers.ErrLeadNotFound
	}
	l.AwarenessStage = stage
	return nil
}

func (f *fakeRepo) FindPipelineStage(_ context.Context, workspaceID uuid.UUID, name string) (*entity.PipelineStage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stages[stageKey(workspaceID, name)]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRepo) AssignPipelineStage(_ context.Context, leadID, stageID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[leadID]
	if !ok {
		return appers.ErrLeadNotFound
	}
	l.PipelineStageID = &stageID
	return nil
}

func (f *fakeRepo) InsertCampaign(_ context.Context, c *entity.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.campaigns[c.ID] = &cp
	return nil
}

func (f *fakeRepo) GetCampaign(_ context.Context, id uuid.UUID) (*entity.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, appers.ErrCampaignNotFound
	}
	cp := *c
	cp.Steps = append([]entity.CampaignStep(nil), f.steps[id]...)
	return &cp, nil
}

func (f *fakeRepo) UpdateCampaign(_ context.Context, id uuid.UUID, name string, status entity.CampaignStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return appers.ErrCampaignNotFound
	}
	if name != "" {
		c.Name = name
	}
	if status != "" {
		c.Status = status
	}
	return nil
}

func (f *fakeRepo) InsertSteps(_ context.Context, steps []entity.CampaignStep) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range steps {
		f.steps[s.CampaignID] = append(f.steps[s.CampaignID], s)
	}
	return nil
}

func (f *fakeRepo) DeleteSteps(_ context.Context, campaignID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.steps, campaignID)
	return nil
}

func (f *fakeRepo) GetSteps(_ context.Context, campaignID uuid.UUID) ([]entity.CampaignStep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.CampaignStep(nil), f.steps[campaignID]...), nil
}

func (f *fakeRepo) GetFirstSender(_ context.Context, profileID uuid.UUID) (*entity.Sender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.senders[profileID]
	if !ok {
		return nil, fmt.Errorf("no sender bound to profile %s", profileID)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRepo) InsertEnrollment(_ context.Context, e *entity.CampaignEnrollment) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.enrollments {
		if existing.CampaignID == e.CampaignID && existing.LeadID == e.LeadID {
			return false, nil
		}
	}
	cp := *e
	f.enrollments[e.ID] = &cp
	return true, nil
}

func (f *fakeRepo) ClaimEnrollmentBatch(_ context.Context, lease time.Duration, limit int) ([]entity.CampaignEnrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []entity.CampaignEnrollment
	for _, e := range f.enrollments {
		if len(res) >= limit {
			break
		}
		c, ok := f.campaigns[e.CampaignID]
		if !ok || c.Status != entity.CampaignRunning {
			continue
		}
		if e.Status != entity.EnrollmentActive || e.NextSendAt.After(testNow) {
			continue
		}
		e.NextSendAt = testNow.Add(lease)
		res = append(res, *e)
	}
	return res, nil
}

func (f *fakeRepo) AdvanceEnrollment(_ context.Context, id uuid.UUID, currentStep int, nextSendAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok {
		return fmt.Errorf("enrollment %s not found", id)
	}
	e.CurrentStep = currentStep
	e.NextSendAt = nextSendAt
	e.Attempts = 0
	return nil
}

func (f *fakeRepo) CompleteEnrollment(_ context.Context, id uuid.UUID, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok {
		return fmt.Errorf("enrollment %s not found", id)
	}
	e.Status = entity.EnrollmentCompleted
	e.CompletedAt = &completedAt
	return nil
}

func (f *fakeRepo) RetryEnrollment(_ context.Context, id uuid.UUID, attempts int, nextSendAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok {
		return fmt.Errorf("enrollment %s not found", id)
	}
	e.Attempts = attempts
	e.NextSendAt = nextSendAt
	return nil
}

func (f *fakeRepo) MarkEnrollmentNeedsAttention(_ context.Context, id uuid.UUID, attempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok {
		return fmt.Errorf("enrollment %s not found", id)
	}
	e.Status = entity.EnrollmentNeedsAttention
	e.Attempts = attempts
	return nil
}

func (f *fakeRepo) CountEnrollmentsByStatus(_ context.Context, campaignID uuid.UUID) (map[entity.EnrollmentStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[entity.EnrollmentStatus]int)
	for _, e := range f.enrollments {
		if e.CampaignID == campaignID {
			counts[e.Status]++
		}
	}
	return counts, nil
}

func (f *fakeRepo) HealthCheck(context.Context) error { return nil }

// fakeTx mirrors TransactionsImpl against the fake repo, minus the
// actual transaction boundary.
type fakeTx struct {
	repo *fakeRepo
}

func (t *fakeTx) ClaimEventBatch(ctx context.Context, c config.DispatcherConfig) ([]entity.Event, error) {
	return t.repo.ClaimEventBatch(ctx, c.Lease, c.BatchSize)
}

func (t *fakeTx) ClaimEnrollmentBatch(ctx context.Context, c config.SchedulerConfig) ([]entity.CampaignEnrollment, error) {
	return t.repo.ClaimEnrollmentBatch(ctx, c.Lease, c.BatchSize)
}

func (t *fakeTx) RecordSendSuccess(ctx context.Context, d *entity.EmailDelivery, evt *entity.OutreachEvent, adv repo.Advance) error {
	if err := t.repo.InsertDelivery(ctx, d); err != nil {
		return err
	}
	if err := t.repo.InsertOutreachEvent(ctx, evt); err != nil {
		return err
	}
	if adv.Complete {
		return t.repo.CompleteEnrollment(ctx, adv.EnrollmentID, adv.CompletedAt)
	}
	return t.repo.AdvanceEnrollment(ctx, adv.EnrollmentID, adv.NextStep, adv.NextSendAt)
}

func (t *fakeTx) RecordSendFailure(ctx context.Context, evt *entity.OutreachEvent, leadID uuid.UUID, scoreDelta int, retry repo.Retry) error {
	if err := t.repo.InsertOutreachEvent(ctx, evt); err != nil {
		return err
	}
	if err := t.repo.ApplyScoreDelta(ctx, leadID, scoreDelta); err != nil {
		return err
	}
	if retry.GiveUp {
		return t.repo.MarkEnrollmentNeedsAttention(ctx, retry.EnrollmentID, retry.Attempts)
	}
	return t.repo.RetryEnrollment(ctx, retry.EnrollmentID, retry.Attempts, retry.NextSendAt)
}

func (t *fakeTx) CreateCampaignWithSteps(ctx context.Context, c *entity.Campaign, steps []entity.CampaignStep) error {
	if err := t.repo.InsertCampaign(ctx, c); err != nil {
		return err
	}
	return t.repo.InsertSteps(ctx, steps)
}

func (t *fakeTx) ReplaceCampaignSteps(ctx context.Context, campaignID uuid.UUID, steps []entity.CampaignStep) error {
	if err := t.repo.DeleteSteps(ctx, campaignID); err != nil {
		return err
	}
	return t.repo.InsertSteps(ctx, steps)
}

// fakeMailer returns queued results in order; once the queue is empty
// every send succeeds with a generated message id.
type fakeMailer struct {
	mu     sync.Mutex
	sent   []mailer.SendRequest
	queue  []error
	nextID int
}

func (m *fakeMailer) Send(_ context.Context, req mailer.SendRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) > 0 {
		err := m.queue[0]
		m.queue = m.queue[1:]
		if err != nil {
			return "", err
		}
	}
	m.sent = append(m.sent, req)
	m.nextID++
	return fmt.Sprintf("msg-%d", m.nextID), nil
}

func (m *fakeMailer) failNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, err)
}

type fakePublisher struct {
	mu     sync.Mutex
	parked []entity.Event
}

func (p *fakePublisher) PublishDeadLetter(_ context.Context, e *entity.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parked = append(p.parked, *e)
	return nil
}

func (p *fakePublisher) HealthCheck(context.Context) error { return nil }

type testEnv struct {
	svc        *ServiceImpl
	repo       *fakeRepo
	mailer     *fakeMailer
	parkingLot *fakePublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newFakeRepo()
	mail := &fakeMailer{}
	parkingLot := &fakePublisher{}
	conf := &config.Config{
		Dispatcher: config.DispatcherConfig{BatchSize: 50, Lease: 2 * time.Minute},
		Scheduler:  config.SchedulerConfig{BatchSize: 50, Workers: 4, Lease: 5 * time.Minute, MaxAttempts: 3},
	}

	svc := NewService(store, &fakeTx{repo: store}, mail, parkingLot,
		zap.NewNop().Sugar(), conf, metrics.New(prometheus.NewRegistry()))
	svc.now = func() time.Time { return testNow }

	return &testEnv{svc: svc, repo: store, mailer: mail, parkingLot: parkingLot}
}

func mustUUID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.NewV4()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	return id
}

// seedLead registers a lead in the fake repo and returns it.
func (env *testEnv) seedLead(t *testing.T, stage entity.AwarenessStage) *entity.Lead {
	t.Helper()
	lead := &entity.Lead{
		ID:             mustUUID(t),
		WorkspaceID:    mustUUID(t),
		Email:          "pat@example.com",
		FirstName:      "Pat",
		LastName:       "Doe",
		Company:        "Acme Accounting",
		AwarenessStage: stage,
	}
	env.repo.leads[lead.ID] = lead
	return lead
}

// seedCampaign registers a RUNNING campaign with the given steps and a
// sender for its profile.
func (env *testEnv) seedCampaign(t *testing.T, steps ...entity.CampaignStep) *entity.Campaign {
	t.Helper()
	c := &entity.Campaign{
		ID:               mustUUID(t),
		Name:             "Tax season drip",
		Status:           entity.CampaignRunning,
		SendingProfileID: mustUUID(t),
		CreatedAt:        testNow,
	}
	env.repo.campaigns[c.ID] = c
	for i := range steps {
		steps[i].CampaignID = c.ID
		if steps[i].ID == uuid.Nil {
			steps[i].ID = mustUUID(t)
		}
	}
	env.repo.steps[c.ID] = steps
	env.repo.senders[c.SendingProfileID] = &entity.Sender{
		ID:               mustUUID(t),
		SendingProfileID: c.SendingProfileID,
		FromName:         "Dana",
		FromEmail:        "dana@firm.example",
	}
	return c
}

// seedDelivery registers a delivery row for engagement handler tests.
func (env *testEnv) seedDelivery(t *testing.T, lead *entity.Lead, campaign *entity.Campaign, providerMessageID string) *entity.EmailDelivery {
	t.Helper()
	d := &entity.EmailDelivery{
		ID:                mustUUID(t),
		ProviderMessageID: providerMessageID,
		CampaignID:        campaign.ID,
		StepID:            mustUUID(t),
		LeadID:            lead.ID,
		Status:            entity.DeliverySent,
		SentAt:            testNow,
	}
	env.repo.deliveries[providerMessageID] = d
	return d
}
