package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/wanotify/backend/internal/events"
	"github.com/wanotify/backend/internal/models"
	"github.com/wanotify/backend/internal/repositories"
	"go.uber.org/zap"
)

// WebhookHandler ingests Twilio delivery callbacks. Correlation is by
// message sid and the handler only ever updates existing rows, so gateway
// retries can never create duplicates. It answers 200 no matter what:
// anything else makes Twilio retry.
type WebhookHandler struct {
	messageRepo *repositories.MessageLogRepo
	publisher   events.Publisher
	log         *zap.Logger
}

func NewWebhookHandler(messageRepo *repositories.MessageLogRepo, publisher events.Publisher, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{messageRepo: messageRepo, publisher: publisher, log: log}
}

func (h *WebhookHandler) TwilioStatus(c *fiber.Ctx) error {
	sid := c.FormValue("MessageSid")
	rawStatus := c.FormValue("MessageStatus")
	if sid == "" || rawStatus == "" {
		return c.SendStatus(fiber.StatusOK)
	}

	status, timestamped := mapTwilioStatus(rawStatus)
	if status == "" {
		// intermediate statuses (queued, sending, sent) are not receipts
		return c.SendStatus(fiber.StatusOK)
	}

	var deliveredAt *time.Time
	if timestamped {
		now := time.Now().UTC()
		deliveredAt = &now
	}

	campaignID, err := h.messageRepo.UpdateStatusBySid(c.Context(), sid, status, deliveredAt)
	if err != nil {
		h.log.Warn("delivery callback for unknown message",
			zap.String("message_sid", sid),
			zap.String("status", rawStatus),
			zap.Error(err))
		return c.SendStatus(fiber.StatusOK)
	}

	event := events.NewDeliveryEvent(campaignID, sid, status)
	if err := h.publisher.Publish(c.Context(), events.CampaignChannel(campaignID), event); err != nil {
		h.log.Warn("failed to publish delivery event", zap.Error(err))
	}

	return c.SendStatus(fiber.StatusOK)
}

// mapTwilioStatus translates gateway status strings to message-log statuses.
// The second return says whether the receipt carries a delivery timestamp.
func mapTwilioStatus(s string) (string, bool) {
	switch s {
	case "delivered":
		return models.MessageStatusDelivered, true
	case "read":
		return models.MessageStatusRead, true
	case "failed", "undelivered":
		return models.MessageStatusFailed, false
	default:
		return "", false
	}
}
