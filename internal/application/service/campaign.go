package service

import (
	"context"
	"fmt"
	"outreach/internal/appers"
	"outreach/internal/application/entity"
	"sort"
	"time"

	"github.com/gofrs/uuid"
)

func (s *ServiceImpl) CreateCampaign(ctx context.Context, req entity.CampaignRequest) (*entity.Campaign, error) {
	profileID, err := uuid.FromString(req.SendingProfileID)
	if err != nil {
		return nil, fmt.Errorf("parse sending profile id: %w", err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("new campaign id: %w", err)
	}

	campaign := &entity.Campaign{
		ID:               id,
		Name:             req.Name,
		Type:             req.Type,
		Status:           entity.CampaignDraft,
		SendingProfileID: profileID,
		CreatedAt:        s.now(),
	}

	stepReqs := req.Steps
	if len(stepReqs) == 0 && req.Subject != "" {
		// Single-message campaigns from the older API shape become a
		// one-step sequence firing immediately.
		stepReqs = []entity.StepRequest{{Order: 1, Subject: req.Subject, Body: req.Body}}
	}

	steps, err := buildSteps(id, stepReqs)
	if err != nil {
		return nil, err
	}

	if err := s.tx.CreateCampaignWithSteps(ctx, campaign, steps); err != nil {
		s.logger.Errorf("[campaign: %s] create failed: %v", id, err)
		return nil, err
	}
	campaign.Steps = steps

	s.logger.Infof("[campaign: %s] created with %d steps", id, len(steps))
	return campaign, nil
}

func (s *ServiceImpl) UpdateCampaign(ctx context.Context, id uuid.UUID, req entity.CampaignUpdateRequest) (*entity.Campaign, error) {
	existing, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}

	status := existing.Status
	if req.Status != "" {
		status = entity.CampaignStatus(req.Status)
		if !statusTransitionAllowed(existing.Status, status) {
			return nil, appers.ErrInvalidStatusTransition
		}
	}

	if req.Steps != nil {
		steps, err := buildSteps(id, req.Steps)
		if err != nil {
			return nil, err
		}
		if err := s.tx.ReplaceCampaignSteps(ctx, id, steps); err != nil {
			s.logger.Errorf("[campaign: %s] replace steps failed: %v", id, err)
			return nil, err
		}
	}

	if req.Name != "" || req.Status != "" {
		if err := s.repo.UpdateCampaign(ctx, id, req.Name, status); err != nil {
			s.logger.Errorf("[campaign: %s] update failed: %v", id, err)
			return nil, err
		}
	}

	return s.repo.GetCampaign(ctx, id)
}

// statusTransitionAllowed encodes the operator-facing lifecycle:
// DRAFT -> RUNNING, RUNNING <-> PAUSED, RUNNING/PAUSED -> COMPLETED.
// COMPLETED is terminal and nothing goes back to DRAFT.
func statusTransitionAllowed(from, to entity.CampaignStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case entity.CampaignDraft:
		return to == entity.CampaignRunning
	case entity.CampaignRunning:
		return to == entity.CampaignPaused || to == entity.CampaignCompleted
	case entity.CampaignPaused:
		return to == entity.CampaignRunning || to == entity.CampaignCompleted
	default:
		return false
	}
}

func (s *ServiceImpl) GetCampaign(ctx context.Context, id uuid.UUID) (*entity.Campaign, error) {
	return s.repo.GetCampaign(ctx, id)
}

// AddLeadsToCampaign enrolls the given leads. Enrollment is idempotent
// per (campaign, lead): re-submitting the same lead neither duplicates
// the enrollment nor resets its progress. Returns how many enrollments
// were actually created.
func (s *ServiceImpl) AddLeadsToCampaign(ctx context.Context, campaignID uuid.UUID, leadIDs []uuid.UUID) (int, error) {
	campaign, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if len(campaign.Steps) == 0 {
		return 0, appers.ErrCampaignHasNoSteps
	}

	firstSendAt := s.now().Add(campaign.Steps[0].Delay)

	enrolled := 0
	for _, leadID := range leadIDs {
		id, err := uuid.NewV4()
		if err != nil {
			return enrolled, fmt.Errorf("new enrollment id: %w", err)
		}
		inserted, err := s.repo.InsertEnrollment(ctx, &entity.CampaignEnrollment{
			ID:          id,
			CampaignID:  campaignID,
			LeadID:      leadID,
			Status:      entity.EnrollmentActive,
			CurrentStep: 1,
			NextSendAt:  firstSendAt,
			StartedAt:   s.now(),
		})
		if err != nil {
			s.logger.Errorf("[campaign: %s] enroll lead %s failed: %v", campaignID, leadID, err)
			return enrolled, err
		}
		if !inserted {
			s.logger.Debugf("[campaign: %s] lead %s already enrolled, skipped", campaignID, leadID)
			continue
		}
		enrolled++
	}

	s.logger.Infof("[campaign: %s] enrolled %d of %d leads", campaignID, enrolled, len(leadIDs))
	return enrolled, nil
}

func (s *ServiceImpl) GetCampaignAnalytics(ctx context.Context, id uuid.UUID) (*entity.CampaignAnalytics, error) {
	if _, err := s.repo.GetCampaign(ctx, id); err != nil {
		return nil, err
	}

	enrollments, err := s.repo.CountEnrollmentsByStatus(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count enrollments: %w", err)
	}
	events, err := s.repo.CountOutreachEventsByType(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count outreach events: %w", err)
	}

	return &entity.CampaignAnalytics{
		CampaignID:  id,
		Enrollments: enrollments,
		Events:      events,
	}, nil
}

// buildSteps materializes step requests, validating that orders are
// contiguous from 1. The returned slice is sorted by order.
func buildSteps(campaignID uuid.UUID, reqs []entity.StepRequest) ([]entity.CampaignStep, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	sorted := make([]entity.StepRequest, len(reqs))
	copy(sorted, reqs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	steps := make([]entity.CampaignStep, 0, len(sorted))
	for i, sr := range sorted {
		if sr.Order != i+1 {
			return nil, appers.ErrStepsNotContiguous
		}
		id, err := uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("new step id: %w", err)
		}
		steps = append(steps, entity.CampaignStep{
			ID:         id,
			CampaignID: campaignID,
			Order:      sr.Order,
			Subject:    sr.Subject,
			Body:       sr.Body,
			Delay:      time.Duration(sr.DelayMinutes) * time.Minute,
		})
	}
	return steps, nil
}
