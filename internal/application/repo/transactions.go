package repo

import (
	"context"
	"outreach/internal/application/entity"
	"outreach/pkg/config"
	"time"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// Advance describes the enrollment mutation accompanying a successful
// send: either move to the next step or finish the sequence.
type Advance struct {
	EnrollmentID uuid.UUID
	Complete     bool
	NextStep     int
	NextSendAt   time.Time
	CompletedAt  time.Time
}

// Retry describes the enrollment mutation accompanying a failed send:
// park with backoff, or give up once the attempt ceiling is reached.
type Retry struct {
	EnrollmentID uuid.UUID
	Attempts     int
	NextSendAt   time.Time
	GiveUp       bool
}

type Transactions interface {
	ClaimEventBatch(ctx context.Context, c config.DispatcherConfig) ([]entity.Event, error)
	ClaimEnrollmentBatch(ctx context.Context, c config.SchedulerConfig) ([]entity.CampaignEnrollment, error)
	RecordSendSuccess(ctx context.Context, d *entity.EmailDelivery, evt *entity.OutreachEvent, adv Advance) error
	RecordSendFailure(ctx context.Context, evt *entity.OutreachEvent, leadID uuid.UUID, scoreDelta int, retry Retry) error
	CreateCampaignWithSteps(ctx context.Context, c *entity.Campaign, steps []entity.CampaignStep) error
	ReplaceCampaignSteps(ctx context.Context, campaignID uuid.UUID, steps []entity.CampaignStep) error
}

type TransactionsImpl struct {
	repo   *RepoImpl
	logger *zap.SugaredLogger
}

func NewTransactions(repo *RepoImpl, logger *zap.SugaredLogger) *TransactionsImpl {
	return &TransactionsImpl{repo: repo, logger: logger}
}

// The claim queries hold their SKIP LOCKED row locks until commit, so
// both claims run inside their own short transaction.

func (t *TransactionsImpl) ClaimEventBatch(ctx context.Context, c config.DispatcherConfig) ([]entity.Event, error) {
	var events []entity.Event
	err := t.repo.db.WithinTransaction(ctx, func(txCtx context.Context) error {
		var err error
		events, err = t.repo.ClaimEventBatch(txCtx, c.Lease, c.BatchSize)
		return err
	})
	if err != nil {
		t.logger.Errorw("claim event batch failed", "err", err)
		return nil, err
	}
	return events, nil
}

func (t *TransactionsImpl) ClaimEnrollmentBatch(ctx context.Context, c config.SchedulerConfig) ([]entity.CampaignEnrollment, error) {
	var enrollments []entity.CampaignEnrollment
	err := t.repo.db.WithinTransaction(ctx, func(txCtx context.Context) error {
		var err error
		enrollments, err = t.repo.ClaimEnrollmentBatch(txCtx, c.Lease, c.BatchSize)
		return err
	})
	if err != nil {
		t.logger.Errorw("claim enrollment batch failed", "err", err)
		return nil, err
	}
	return enrollments, nil
}

// RecordSendSuccess persists everything a successful send produces in one
// transaction: the delivery record, the SENT audit row, and the
// enrollment advancement. Ordering is send-then-advance; a crash before
// this commit leaves the enrollment retry-safe at worst (possible
// resend, never a lost step).
func (t *TransactionsImpl) RecordSendSuccess(ctx context.Context, d *entity.EmailDelivery, evt *entity.OutreachEvent, adv Advance) error {
	return t.repo.db.WithinTransaction(ctx, func(ctx context.Context) error {
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
	})
}

func (t *TransactionsImpl) RecordSendFailure(ctx context.Context, evt *entity.OutreachEvent, leadID uuid.UUID, scoreDelta int, retry Retry) error {
	return t.repo.db.WithinTransaction(ctx, func(ctx context.Context) error {
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
	})
}

func (t *TransactionsImpl) CreateCampaignWithSteps(ctx context.Context, c *entity.Campaign, steps []entity.CampaignStep) error {
	return t.repo.db.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := t.repo.InsertCampaign(ctx, c); err != nil {
			t.logger.Errorf("[campaign: %s] insert campaign failed: %v", c.ID, err)
			return err
		}
		if err := t.repo.InsertSteps(ctx, steps); err != nil {
			t.logger.Errorf("[campaign: %s] insert steps failed: %v", c.ID, err)
			return err
		}
		return nil
	})
}

func (t *TransactionsImpl) ReplaceCampaignSteps(ctx context.Context, campaignID uuid.UUID, steps []entity.CampaignStep) error {
	return t.repo.db.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := t.repo.DeleteSteps(ctx, campaignID); err != nil {
			return err
		}
		return t.repo.InsertSteps(ctx, steps)
	})
}
