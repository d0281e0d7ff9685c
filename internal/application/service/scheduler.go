package service

import (
	"context"
	"fmt"
	"outreach/internal/application/common"
	"outreach/internal/application/entity"
	"outreach/internal/application/repo"
	"outreach/internal/transport/mailer"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"
	"golang.org/x/sync/errgroup"
)

// ProcessOutreachQueue claims a batch of due ACTIVE enrollments and
// sends the current step of each concurrently. Per-enrollment failures
// are absorbed into the result so one broken enrollment never stalls
// the batch.
func (s *ServiceImpl) ProcessOutreachQueue(ctx context.Context) (QueueResult, error) {
	enrollments, err := s.tx.ClaimEnrollmentBatch(ctx, s.scheduler)
	if err != nil {
		return QueueResult{}, fmt.Errorf("claim enrollment batch: %w", err)
	}

	s.m.Scheduler.BatchSize.Observe(float64(len(enrollments)))
	if len(enrollments) == 0 {
		return QueueResult{}, nil
	}

	s.logger.Debugf("processing %d due enrollments", len(enrollments))

	var errCount int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.scheduler.Workers)
	for i := range enrollments {
		e := enrollments[i]
		g.Go(func() error {
			if err := s.processEnrollment(gctx, &e); err != nil {
				atomic.AddInt64(&errCount, 1)
				s.logger.Errorw("enrollment processing failed",
					"enrollment", e.ID, "campaign", e.CampaignID, "lead", e.LeadID, "err", err)
			}
			// Errors are counted, never propagated, so the group always
			// drains the whole batch.
			return nil
		})
	}
	_ = g.Wait()

	res := QueueResult{
		Processed: len(enrollments) - int(errCount),
		Errors:    int(errCount),
	}
	s.logger.Infof("outreach queue pass done: processed=%d errors=%d", res.Processed, res.Errors)
	return res, nil
}

func (s *ServiceImpl) processEnrollment(ctx context.Context, e *entity.CampaignEnrollment) error {
	start := time.Now()
	result, err := s.sendCurrentStep(ctx, e)
	s.m.Scheduler.SendDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	s.m.Scheduler.EnrollmentsTotal.WithLabelValues(result).Inc()
	return err
}

// sendCurrentStep returns the outcome label for metrics alongside the
// error: "sent", "completed", "retry" or "gave_up".
func (s *ServiceImpl) sendCurrentStep(ctx context.Context, e *entity.CampaignEnrollment) (string, error) {
	campaign, err := s.repo.GetCampaign(ctx, e.CampaignID)
	if err != nil {
		return "retry", fmt.Errorf("get campaign: %w", err)
	}

	// An update can shrink the step list under an in-flight enrollment.
	// Past-the-end enrollments are repaired to COMPLETED.
	if e.CurrentStep > len(campaign.Steps) {
		if err := s.repo.CompleteEnrollment(ctx, e.ID, s.now()); err != nil {
			return "retry", fmt.Errorf("complete past-end enrollment: %w", err)
		}
		s.logger.Infof("[enrollment: %s] past last step, completed", e.ID)
		return "completed", nil
	}
	step := campaign.Steps[e.CurrentStep-1]

	lead, err := s.repo.GetLead(ctx, e.LeadID)
	if err != nil {
		return "retry", fmt.Errorf("get lead: %w", err)
	}

	sender, err := s.repo.GetFirstSender(ctx, campaign.SendingProfileID)
	if err != nil {
		return "retry", fmt.Errorf("get sender: %w", err)
	}

	fields := lead.TemplateFields()
	req := mailer.SendRequest{
		FromName:  sender.FromName,
		FromEmail: sender.FromEmail,
		To:        lead.Email,
		Subject:   RenderTemplate(step.Subject, fields),
		HTML:      RenderTemplate(step.Body, fields),
		Tags: map[string]string{
			"campaign_id": campaign.ID.String(),
			"step_id":     step.ID.String(),
			"lead_id":     lead.ID.String(),
		},
	}

	providerMessageID, sendErr := s.mailer.Send(ctx, req)
	now := s.now()
	if sendErr != nil {
		return s.recordSendFailure(ctx, e, &step, now, sendErr)
	}
	return s.recordSendSuccess(ctx, e, campaign, &step, providerMessageID, now)
}

func (s *ServiceImpl) recordSendSuccess(
	ctx context.Context,
	e *entity.CampaignEnrollment,
	campaign *entity.Campaign,
	step *entity.CampaignStep,
	providerMessageID string,
	now time.Time,
) (string, error) {
	deliveryID, err := uuid.NewV4()
	if err != nil {
		return "retry", fmt.Errorf("new delivery id: %w", err)
	}
	auditID, err := uuid.NewV4()
	if err != nil {
		return "retry", fmt.Errorf("new audit event id: %w", err)
	}

	delivery := &entity.EmailDelivery{
		ID:                deliveryID,
		ProviderMessageID: providerMessageID,
		CampaignID:        e.CampaignID,
		StepID:            step.ID,
		LeadID:            e.LeadID,
		Status:            entity.DeliverySent,
		SentAt:            now,
	}
	audit := &entity.OutreachEvent{
		ID:         auditID,
		Type:       entity.OutreachSent,
		CampaignID: e.CampaignID,
		StepID:     &step.ID,
		LeadID:     e.LeadID,
		OccurredAt: now,
		Metadata:   metaJSON(map[string]string{"step": strconv.Itoa(step.Order)}),
	}

	adv := repo.Advance{EnrollmentID: e.ID}
	last := e.CurrentStep >= len(campaign.Steps)
	if last {
		adv.Complete = true
		adv.CompletedAt = now
	} else {
		next := campaign.Steps[e.CurrentStep]
		adv.NextStep = e.CurrentStep + 1
		adv.NextSendAt = now.Add(next.Delay)
	}

	// The delivery row, the SENT audit event and the cursor move commit
	// atomically: a crash between send and commit is repaired by the
	// lease expiring and the step being resent, never by a lost cursor.
	if err := s.tx.RecordSendSuccess(ctx, delivery, audit, adv); err != nil {
		return "retry", fmt.Errorf("record send success: %w", err)
	}

	if last {
		s.logger.Infof("[enrollment: %s] step %d sent, sequence completed", e.ID, step.Order)
		return "completed", nil
	}
	s.logger.Debugf("[enrollment: %s] step %d sent, next send at %s", e.ID, step.Order, adv.NextSendAt)
	return "sent", nil
}

func (s *ServiceImpl) recordSendFailure(
	ctx context.Context,
	e *entity.CampaignEnrollment,
	step *entity.CampaignStep,
	now time.Time,
	sendErr error,
) (string, error) {
	auditID, err := uuid.NewV4()
	if err != nil {
		return "retry", fmt.Errorf("new audit event id: %w", err)
	}
	audit := &entity.OutreachEvent{
		ID:         auditID,
		Type:       entity.OutreachBounced,
		CampaignID: e.CampaignID,
		StepID:     &step.ID,
		LeadID:     e.LeadID,
		OccurredAt: now,
		Metadata: metaJSON(map[string]string{
			"step":  strconv.Itoa(step.Order),
			"error": sendErr.Error(),
		}),
	}

	// e.Attempts counts prior consecutive failures for this step.
	attempts := e.Attempts + 1
	retry := repo.Retry{EnrollmentID: e.ID, Attempts: attempts}
	outcome := "retry"
	if attempts >= s.scheduler.MaxAttempts {
		retry.GiveUp = true
		outcome = "gave_up"
	} else {
		retry.NextSendAt = now.Add(common.NextBackoffWithJitter(attempts))
	}

	if err := s.tx.RecordSendFailure(ctx, audit, e.LeadID, -10, retry); err != nil {
		return "retry", fmt.Errorf("record send failure: %w", err)
	}

	if retry.GiveUp {
		s.logger.Errorw("enrollment needs attention after repeated send failures",
			"enrollment", e.ID, "attempts", attempts, "err", sendErr)
	} else {
		s.logger.Warnw("send failed, retrying with backoff",
			"enrollment", e.ID, "attempt", attempts, "nextSendAt", retry.NextSendAt, "err", sendErr)
	}
	return outcome, fmt.Errorf("send step %d: %w", step.Order, sendErr)
}
