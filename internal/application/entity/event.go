package entity

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid"
)

type EventStatus string

const (
	EventPending    EventStatus = "PENDING"
	EventProcessing EventStatus = "PROCESSING"
	EventProcessed  EventStatus = "PROCESSED"
	EventFailed     EventStatus = "FAILED"
)

// EventType is the dispatch key for outbox events. Handlers are resolved
// from a typed map built at startup, not a runtime string switch.
type EventType string

const (
	EventEmailDelivered  EventType = "email.delivered"
	EventEmailOpened     EventType = "email.opened"
	EventEmailClicked    EventType = "email.clicked"
	EventEmailReplied    EventType = "email.replied"
	EventEmailBounced    EventType = "email.bounced"
	EventEmailComplained EventType = "email.complained"
)

// KnownEventTypes lists every event type the dispatcher must have a
// handler for.
var KnownEventTypes = []EventType{
	EventEmailDelivered,
	EventEmailOpened,
	EventEmailClicked,
	EventEmailReplied,
	EventEmailBounced,
	EventEmailComplained,
}

// Event is an outbox row: a durable fact awaiting side-effect processing.
// Rows are never deleted; PROCESSED and FAILED rows remain as audit trail.
type Event struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	Type       EventType       `db:"type" json:"type"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	Metadata   json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	Status     EventStatus     `db:"status" json:"status"`
	LastError  string          `db:"last_error" json:"lastError,omitempty"`
	Attempts   int             `db:"attempts" json:"attempts"`
	LeaseUntil time.Time       `db:"lease_until" json:"leaseUntil"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

// EngagementPayload is the payload shape shared by all provider
// delivery/engagement events. MessageID is the provider-assigned id of
// the delivery the event refers to.
type EngagementPayload struct {
	MessageID  string    `json:"messageId" validate:"required"`
	OccurredAt time.Time `json:"occurredAt"`
	Reason     string    `json:"reason,omitempty"`
}
