package entity

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid"
)

type OutreachEventType string

const (
	OutreachSent       OutreachEventType = "SENT"
	OutreachDelivered  OutreachEventType = "DELIVERED"
	OutreachOpened     OutreachEventType = "OPENED"
	OutreachClicked    OutreachEventType = "CLICKED"
	OutreachReplied    OutreachEventType = "REPLIED"
	OutreachBounced    OutreachEventType = "BOUNCED"
	OutreachComplained OutreachEventType = "COMPLAINED"
)

// OutreachEvent is an immutable audit record of a marketing occurrence.
// Rows are append-only and never updated.
type OutreachEvent struct {
	ID         uuid.UUID         `db:"id" json:"id"`
	Type       OutreachEventType `db:"type" json:"type"`
	CampaignID uuid.UUID         `db:"campaign_id" json:"campaignId"`
	StepID     *uuid.UUID        `db:"step_id" json:"stepId,omitempty"`
	LeadID     uuid.UUID         `db:"lead_id" json:"leadId"`
	OccurredAt time.Time         `db:"occurred_at" json:"occurredAt"`
	Metadata   json.RawMessage   `db:"metadata" json:"metadata,omitempty"`
}
