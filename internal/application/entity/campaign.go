package entity

import (
	"time"

	"github.com/gofrs/uuid"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignRunning   CampaignStatus = "RUNNING"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignCompleted CampaignStatus = "COMPLETED"
)

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "ACTIVE"
	EnrollmentCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentPaused    EnrollmentStatus = "PAUSED"
	// EnrollmentNeedsAttention marks enrollments whose sends kept failing
	// past the configured attempt ceiling. They are excluded from the
	// scheduler until an operator intervenes.
	EnrollmentNeedsAttention EnrollmentStatus = "NEEDS_ATTENTION"
)

// Campaign is a drip sequence targeting a set of enrolled leads. Status
// transitions are operator-driven; the scheduler only reads them.
type Campaign struct {
	ID               uuid.UUID      `db:"id" json:"id"`
	Name             string         `db:"name" json:"name"`
	Type             string         `db:"type" json:"type"`
	Status           CampaignStatus `db:"status" json:"status"`
	SendingProfileID uuid.UUID      `db:"sending_profile_id" json:"sendingProfileId"`
	CreatedAt        time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt        *time.Time     `db:"updated_at" json:"updatedAt,omitempty"`

	Steps []CampaignStep `db:"-" json:"steps,omitempty"`
}

// CampaignStep is one message of a campaign. Order is 1-based and
// contiguous within a campaign; Delay is the wait before this step fires
// relative to the enrollment arriving at it.
type CampaignStep struct {
	ID         uuid.UUID     `db:"id" json:"id"`
	CampaignID uuid.UUID     `db:"campaign_id" json:"campaignId"`
	Order      int           `db:"step_order" json:"order"`
	Subject    string        `db:"subject" json:"subject"`
	Body       string        `db:"body" json:"body"`
	Delay      time.Duration `db:"delay" json:"delay"`
}

// CampaignEnrollment tracks one lead's progress through one campaign.
// CurrentStep never exceeds len(steps)+1; one past the last step forces
// COMPLETED. Only the scheduler advances NextSendAt.
type CampaignEnrollment struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	CampaignID  uuid.UUID        `db:"campaign_id" json:"campaignId"`
	LeadID      uuid.UUID        `db:"lead_id" json:"leadId"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	CurrentStep int              `db:"current_step" json:"currentStep"`
	NextSendAt  time.Time        `db:"next_send_at" json:"nextSendAt"`
	Attempts    int              `db:"attempts" json:"attempts"`
	StartedAt   time.Time        `db:"started_at" json:"startedAt"`
	CompletedAt *time.Time       `db:"completed_at" json:"completedAt,omitempty"`
}

// Sender is one sending identity bound to a sending profile. The
// scheduler always uses the sender with the lowest position.
type Sender struct {
	ID               uuid.UUID `db:"id" json:"id"`
	SendingProfileID uuid.UUID `db:"sending_profile_id" json:"sendingProfileId"`
	FromName         string    `db:"from_name" json:"fromName"`
	FromEmail        string    `db:"from_email" json:"fromEmail"`
	Position         int       `db:"position" json:"position"`
}

// CampaignRequest is the management API body for creating a campaign.
// Subject/Body are the legacy single-message fields: when supplied
// without Steps, they become a single step with order 1 and zero delay.
type CampaignRequest struct {
	Name             string        `json:"name" validate:"required,min=1,max=200"`
	Type             string        `json:"type" validate:"omitempty,max=50"`
	SendingProfileID string        `json:"sendingProfileId" validate:"required,uuid4"`
	Subject          string        `json:"subject" validate:"omitempty,max=500"`
	Body             string        `json:"body" validate:"omitempty"`
	Steps            []StepRequest `json:"steps" validate:"omitempty,dive"`
}

// StepRequest is one step of a campaign create/update body. Updates are
// a full replace of the step list.
type StepRequest struct {
	Order        int    `json:"order" validate:"required,min=1"`
	Subject      string `json:"subject" validate:"required,max=500"`
	Body         string `json:"body" validate:"required"`
	DelayMinutes int    `json:"delayMinutes" validate:"min=0"`
}

// CampaignUpdateRequest patches a campaign. A nil Steps slice leaves the
// step list untouched; a non-nil slice replaces it wholesale.
type CampaignUpdateRequest struct {
	Name   string        `json:"name" validate:"omitempty,min=1,max=200"`
	Status string        `json:"status" validate:"omitempty,oneof=DRAFT RUNNING PAUSED COMPLETED"`
	Steps  []StepRequest `json:"steps" validate:"omitempty,dive"`
}

// EnrollRequest is the bulk-enroll body.
type EnrollRequest struct {
	LeadIDs []string `json:"leadIds" validate:"required,min=1,dive,uuid4"`
}

// CampaignAnalytics aggregates enrollment and engagement counts for the
// dashboard. Read-only; not part of the scheduling critical path.
type CampaignAnalytics struct {
	CampaignID  uuid.UUID                 `json:"campaignId"`
	Enrollments map[EnrollmentStatus]int  `json:"enrollments"`
	Events      map[OutreachEventType]int `json:"events"`
}
