package service

import (
	"context"
	"fmt"
	"outreach/internal/application/entity"

	"github.com/gofrs/uuid"
)

// StageTransition asks for a lead's awareness stage to move to Target.
// The move only happens when Guard is empty or the lead's current stage
// is in Guard; stages never regress because guards only ever name
// earlier stages. PipelineStage, when set, additionally places the lead
// into the named sales pipeline stage of its workspace.
type StageTransition struct {
	Target        entity.AwarenessStage
	Guard         []entity.AwarenessStage
	PipelineStage string
}

// UpdateLeadScore applies a score delta and an optional stage
// transition. The delta always lands, even when the guard blocks the
// transition; scores are intentionally unbounded in both directions.
func (s *ServiceImpl) UpdateLeadScore(ctx context.Context, leadID uuid.UUID, delta int, tr *StageTransition) error {
	if delta != 0 {
		if err := s.repo.ApplyScoreDelta(ctx, leadID, delta); err != nil {
			return fmt.Errorf("apply score delta: %w", err)
		}
		s.logger.Debugf("[lead: %s] score adjusted by %d", leadID, delta)
	}

	if tr == nil || tr.Target == "" {
		return nil
	}

	lead, err := s.repo.GetLead(ctx, leadID)
	if err != nil {
		return fmt.Errorf("get lead: %w", err)
	}

	if !stageAllowed(lead.AwarenessStage, tr.Guard) {
		return nil
	}

	if lead.AwarenessStage != tr.Target {
		if err := s.repo.UpdateLeadStage(ctx, leadID, tr.Target); err != nil {
			return fmt.Errorf("update lead stage: %w", err)
		}
		s.logger.Infof("[lead: %s] awareness stage %s -> %s", leadID, lead.AwarenessStage, tr.Target)
	}

	if tr.PipelineStage == "" {
		return nil
	}

	stage, err := s.repo.FindPipelineStage(ctx, lead.WorkspaceID, tr.PipelineStage)
	if err != nil {
		return fmt.Errorf("find pipeline stage %q: %w", tr.PipelineStage, err)
	}
	if stage == nil {
		// A workspace without the named stage is a configuration gap,
		// not a processing failure.
		s.m.Scheduler.MissingStage.Inc()
		s.logger.Warnw("pipeline stage not configured", "workspace", lead.WorkspaceID, "stage", tr.PipelineStage)
		return nil
	}

	if err := s.repo.AssignPipelineStage(ctx, leadID, stage.ID); err != nil {
		return fmt.Errorf("assign pipeline stage: %w", err)
	}
	s.logger.Debugf("[lead: %s] moved to pipeline stage %q", leadID, tr.PipelineStage)

	return nil
}

func stageAllowed(current entity.AwarenessStage, guard []entity.AwarenessStage) bool {
	if len(guard) == 0 {
		return true
	}
	for _, g := range guard {
		if current == g {
			return true
		}
	}
	return false
}
