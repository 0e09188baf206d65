package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wanotify/backend/internal/models"
)

// Event types pushed to campaign rooms
const (
	EventCampaignStatus        = "campaign_status"
	EventCampaignProgress      = "campaign_progress"
	EventCampaignError         = "campaign_error"
	EventCampaignCurrentStatus = "campaign_current_status"
	EventMessageDelivery       = "message_delivery"
	EventSystemMessage         = "system_message"
	EventConnectionStatus      = "connection_status"
)

const campaignChannelPrefix = "events:campaign:"

// CampaignChannel is the pub/sub channel for one campaign's room.
func CampaignChannel(campaignID uuid.UUID) string {
	return campaignChannelPrefix + campaignID.String()
}

// CampaignChannelPattern subscribes to every campaign room at once.
func CampaignChannelPattern() string {
	return campaignChannelPrefix + "*"
}

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func NewStatusEvent(c *models.Campaign, message string) Event {
	return statusEvent(EventCampaignStatus, c, message)
}

// NewCurrentStatusEvent is the snapshot a late-joining client receives on
// room join.
func NewCurrentStatusEvent(c *models.Campaign) Event {
	return statusEvent(EventCampaignCurrentStatus, c, "")
}

func statusEvent(eventType string, c *models.Campaign, message string) Event {
	return Event{
		Type: eventType,
		Payload: map[string]any{
			"campaignId":    c.ID.String(),
			"status":        c.Status,
			"message":       message,
			"totalContacts": c.TotalContacts,
			"sentCount":     c.SentCount,
			"errorCount":    c.ErrorCount,
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
		},
	}
}

func NewProgressEvent(campaignID uuid.UUID, sent, errors, total, progress int) Event {
	return Event{
		Type: EventCampaignProgress,
		Payload: map[string]any{
			"campaignId": campaignID.String(),
			"sent":       sent,
			"errors":     errors,
			"total":      total,
			"progress":   progress,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		},
	}
}

func NewErrorEvent(campaignID uuid.UUID, errMsg, errType string) Event {
	return Event{
		Type: EventCampaignError,
		Payload: map[string]any{
			"campaignId": campaignID.String(),
			"error":      errMsg,
			"errorType":  errType,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		},
	}
}

func NewDeliveryEvent(campaignID uuid.UUID, messageSid, status string) Event {
	return Event{
		Type: EventMessageDelivery,
		Payload: map[string]any{
			"campaignId": campaignID.String(),
			"messageSid": messageSid,
			"status":     status,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		},
	}
}

type Publisher interface {
	Publish(ctx context.Context, channel string, event Event) error
}

type Subscriber interface {
	PSubscribe(ctx context.Context, pattern string, handler func(channel string, event Event)) error
}
