package entity

import (
	"github.com/gofrs/uuid"
)

// AwarenessStage classifies how informed a lead is about the offering.
// Transitions are one-directional; a lead is never regressed to an
// earlier stage.
type AwarenessStage string

const (
	StageUnaware       AwarenessStage = "UNAWARE"
	StageProblemAware  AwarenessStage = "PROBLEM_AWARE"
	StageSolutionAware AwarenessStage = "SOLUTION_AWARE"
	StageServiceAware  AwarenessStage = "SERVICE_AWARE"
)

// Lead is a prospect being nurtured. Score is a signed integer with no
// clamping in either direction; the unbounded range is intentional.
type Lead struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	WorkspaceID     uuid.UUID      `db:"workspace_id" json:"workspaceId"`
	Email           string         `db:"email" json:"email"`
	FirstName       string         `db:"first_name" json:"firstName"`
	LastName        string         `db:"last_name" json:"lastName"`
	Company         string         `db:"company" json:"company"`
	Score           int            `db:"score" json:"score"`
	AwarenessStage  AwarenessStage `db:"awareness_stage" json:"awarenessStage"`
	PipelineStageID *uuid.UUID     `db:"pipeline_stage_id" json:"pipelineStageId,omitempty"`
}

// PipelineStage is a named stage of the sales pipeline within a workspace.
type PipelineStage struct {
	ID          uuid.UUID `db:"id" json:"id"`
	WorkspaceID uuid.UUID `db:"workspace_id" json:"workspaceId"`
	Name        string    `db:"name" json:"name"`
}

// TemplateFields returns the placeholder substitutions available to
// campaign step templates for this lead.
func (l *Lead) TemplateFields() map[string]string {
	return map[string]string{
		"first_name": l.FirstName,
		"last_name":  l.LastName,
		"company":    l.Company,
		"email":      l.Email,
	}
}
