package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"outreach/internal/appers"
	"outreach/internal/application/entity"

	"github.com/gofrs/uuid"
)

// engagementRule describes everything one provider event type does:
// which audit record it produces, how it touches the delivery row, and
// how it moves the lead.
type engagementRule struct {
	outreach       entity.OutreachEventType
	deliveryStatus entity.DeliveryStatus // zero value leaves the delivery row as is
	scoreDelta     int
	target         entity.AwarenessStage
	guard          []entity.AwarenessStage // empty with a target means unconditional
	pipelineStage  string
}

// engagementPolicy is the single place the scoring business rules live.
var engagementPolicy = map[entity.EventType]engagementRule{
	entity.EventEmailDelivered: {
		outreach:       entity.OutreachDelivered,
		deliveryStatus: entity.DeliveryDelivered,
	},
	entity.EventEmailOpened: {
		outreach:   entity.OutreachOpened,
		scoreDelta: 2,
		target:     entity.StageProblemAware,
		guard:      []entity.AwarenessStage{entity.StageUnaware},
	},
	entity.EventEmailClicked: {
		outreach:   entity.OutreachClicked,
		scoreDelta: 5,
		target:     entity.StageSolutionAware,
		guard:      []entity.AwarenessStage{entity.StageUnaware, entity.StageProblemAware},
	},
	entity.EventEmailReplied: {
		outreach:      entity.OutreachReplied,
		scoreDelta:    20,
		target:        entity.StageServiceAware,
		pipelineStage: "Engaged",
	},
	entity.EventEmailBounced: {
		outreach:       entity.OutreachBounced,
		deliveryStatus: entity.DeliveryBounced,
		scoreDelta:     -10,
	},
	entity.EventEmailComplained: {
		outreach:       entity.OutreachComplained,
		deliveryStatus: entity.DeliveryComplained,
		scoreDelta:     -50,
	},
}

func buildEngagementHandlers(s *ServiceImpl) map[entity.EventType]EventHandler {
	handlers := make(map[entity.EventType]EventHandler, len(engagementPolicy))
	for typ, rule := range engagementPolicy {
		handlers[typ] = s.newEngagementHandler(typ, rule)
	}
	return handlers
}

// newEngagementHandler builds the handler for one provider event type.
// All six engagement handlers share this shape: resolve the delivery by
// provider message id, append the audit event, then apply the rule's
// delivery and lead mutations.
func (s *ServiceImpl) newEngagementHandler(typ entity.EventType, rule engagementRule) EventHandler {
	return func(ctx context.Context, e *entity.Event) error {
		var payload entity.EngagementPayload
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal engagement payload: %w", err)
		}
		if payload.MessageID == "" {
			return errors.New("engagement payload has no message id")
		}

		d, err := s.repo.GetDeliveryByProviderID(ctx, payload.MessageID)
		if err != nil {
			if errors.Is(err, appers.ErrDeliveryNotFound) {
				// Providers replay callbacks and sometimes report sends
				// made outside this system. Nothing to attribute, so the
				// event completes as a no-op.
				s.m.Dispatcher.UnmatchedProvider.WithLabelValues(string(typ)).Inc()
				s.logger.Infow("no delivery for provider message", "event", e.ID, "messageId", payload.MessageID)
				return nil
			}
			return fmt.Errorf("resolve delivery %q: %w", payload.MessageID, err)
		}

		occurredAt := payload.OccurredAt
		if occurredAt.IsZero() {
			occurredAt = s.now()
		}

		auditID, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("new audit event id: %w", err)
		}
		audit := &entity.OutreachEvent{
			ID:         auditID,
			Type:       rule.outreach,
			CampaignID: d.CampaignID,
			StepID:     &d.StepID,
			LeadID:     d.LeadID,
			OccurredAt: occurredAt,
		}
		if payload.Reason != "" {
			audit.Metadata = metaJSON(map[string]string{"reason": payload.Reason})
		}
		if err := s.repo.InsertOutreachEvent(ctx, audit); err != nil {
			return fmt.Errorf("insert outreach event: %w", err)
		}

		if rule.deliveryStatus != "" {
			if err := s.repo.UpdateDeliveryStatus(ctx, d.ID, rule.deliveryStatus); err != nil {
				return fmt.Errorf("update delivery status: %w", err)
			}
		}

		if rule.scoreDelta == 0 && rule.target == "" {
			return nil
		}

		var tr *StageTransition
		if rule.target != "" {
			tr = &StageTransition{
				Target:        rule.target,
				Guard:         rule.guard,
				PipelineStage: rule.pipelineStage,
			}
		}
		if err := s.UpdateLeadScore(ctx, d.LeadID, rule.scoreDelta, tr); err != nil {
			return fmt.Errorf("update lead score: %w", err)
		}

		return nil
	}
}
