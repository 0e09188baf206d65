package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	MessageStatusQueued    = "queued"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
	MessageStatusFailed    = "failed"
)

// MessageLog records one send attempt to one contact. Created by the worker
// at send time, later mutated only by the delivery webhook (correlated by
// MessageSid).
type MessageLog struct {
	ID           uuid.UUID  `json:"id"`
	CampaignID   uuid.UUID  `json:"campaign_id"`
	Phone        string     `json:"phone"`
	Status       string     `json:"status"`
	MessageSid   *string    `json:"message_sid,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	SentAt       time.Time  `json:"sent_at"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
}
