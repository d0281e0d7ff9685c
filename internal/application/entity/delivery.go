package entity

import (
	"time"

	"github.com/gofrs/uuid"
)

type DeliveryStatus string

const (
	DeliverySent       DeliveryStatus = "SENT"
	DeliveryDelivered  DeliveryStatus = "DELIVERED"
	DeliveryBounced    DeliveryStatus = "BOUNCED"
	DeliveryComplained DeliveryStatus = "COMPLAINED"
)

// EmailDelivery links a provider-assigned message id back to the
// campaign, step and lead it was sent for. Engagement handlers resolve
// provider callbacks through this record.
type EmailDelivery struct {
	ID                uuid.UUID      `db:"id" json:"id"`
	ProviderMessageID string         `db:"provider_message_id" json:"providerMessageId"`
	CampaignID        uuid.UUID      `db:"campaign_id" json:"campaignId"`
	StepID            uuid.UUID      `db:"step_id" json:"stepId"`
	LeadID            uuid.UUID      `db:"lead_id" json:"leadId"`
	Status            DeliveryStatus `db:"status" json:"status"`
	SentAt            time.Time      `db:"sent_at" json:"sentAt"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updatedAt"`
}

// ProviderNotification is the wire shape of a provider webhook or Kafka
// notification about a delivery/engagement occurrence.
type ProviderNotification struct {
	Type       string    `json:"type" validate:"required,provider_event"`
	MessageID  string    `json:"messageId" validate:"required,min=1,max=200"`
	OccurredAt time.Time `json:"occurredAt"`
	Reason     string    `json:"reason" validate:"omitempty,max=1000"`
}
