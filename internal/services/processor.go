package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wanotify/backend/internal/dispatch"
	"github.com/wanotify/backend/internal/events"
	"github.com/wanotify/backend/internal/gateway"
	"github.com/wanotify/backend/internal/models"
	"github.com/wanotify/backend/internal/queue"
	"go.uber.org/zap"
)

// CampaignStore is the slice of the campaign repository the processor needs.
type CampaignStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	IncrementSent(ctx context.Context, id uuid.UUID) error
	IncrementError(ctx context.Context, id uuid.UUID) error
}

type MessageStore interface {
	Create(ctx context.Context, m *models.MessageLog) error
	LoggedPhones(ctx context.Context, campaignID uuid.UUID) (map[string]bool, error)
}

type QuotaStore interface {
	AddMessagesUsed(ctx context.Context, id uuid.UUID, n int) error
}

// CampaignProcessor executes one campaign job: walk the CSV in row order,
// resolve variables per contact, send, persist a message log and push
// progress to the campaign's room. Contacts within one campaign are strictly
// sequential; concurrency comes from running multiple queue consumers.
type CampaignProcessor struct {
	campaigns CampaignStore
	messages  MessageStore
	users     QuotaStore
	sender    gateway.Sender
	publisher events.Publisher
	log       *zap.Logger
}

func NewCampaignProcessor(
	campaigns CampaignStore,
	messages MessageStore,
	users QuotaStore,
	sender gateway.Sender,
	publisher events.Publisher,
	log *zap.Logger,
) *CampaignProcessor {
	return &CampaignProcessor{
		campaigns: campaigns,
		messages:  messages,
		users:     users,
		sender:    sender,
		publisher: publisher,
		log:       log,
	}
}

// HandleJob is the queue handler. Returning an error triggers a retry with
// backoff, so everything that reaches a terminal decision returns nil.
func (p *CampaignProcessor) HandleJob(ctx context.Context, job *queue.Job) error {
	var payload CampaignJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode job payload: %w", err)
	}

	campaign, err := p.campaigns.GetByID(ctx, payload.CampaignID)
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}
	if models.IsTerminal(campaign.Status) {
		p.log.Info("skipping job for terminal campaign",
			zap.String("campaign_id", campaign.ID.String()),
			zap.String("status", campaign.Status))
		return nil
	}
	if campaign.Status == models.CampaignStatusPaused {
		// parked, not acked: the payload must stay readable for however
		// long the campaign sits paused, resume re-enqueues from it
		return queue.ErrParked
	}

	if err := p.campaigns.MarkProcessing(ctx, campaign.ID); err != nil {
		return err
	}
	campaign.Status = models.CampaignStatusProcessing
	p.publish(ctx, campaign.ID, events.NewStatusEvent(campaign, "Campaña en procesamiento"))

	contacts, err := dispatch.ParseContacts(payload.CSV)
	if err != nil {
		return fmt.Errorf("parse embedded csv: %w", err)
	}

	mappings := dispatch.ParseStringMap(payload.RawMappings, p.log)
	defaults := dispatch.ParseStringMap(payload.RawDefaults, p.log)
	contentSid := payload.Template.ResolveContentSid()

	// resume support: contacts already logged in a prior attempt are skipped,
	// so a retried job never double-sends
	logged, err := p.messages.LoggedPhones(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("load logged phones: %w", err)
	}

	sent := campaign.SentCount
	errored := campaign.ErrorCount
	total := campaign.TotalContacts

	for _, contact := range contacts {
		if logged[contact.Phone] {
			continue
		}

		// cooperative pause: finish the current send, stop at the boundary
		current, err := p.campaigns.GetByID(ctx, campaign.ID)
		if err != nil {
			return err
		}
		if current.Status == models.CampaignStatusPaused {
			p.publish(ctx, campaign.ID, events.NewStatusEvent(current, "Campaña pausada"))
			p.log.Info("campaign paused mid-run",
				zap.String("campaign_id", campaign.ID.String()),
				zap.Int("sent", sent), zap.Int("errors", errored))
			return queue.ErrParked
		}

		vars := dispatch.ResolveVariables(payload.Template.Variables, contact.Fields, mappings, defaults)

		entry := &models.MessageLog{
			CampaignID: campaign.ID,
			Phone:      contact.Phone,
			SentAt:     time.Now().UTC(),
		}

		result, sendErr := p.sender.Send(ctx, gateway.SendRequest{
			To:         contact.Phone,
			ContentSid: contentSid,
			Variables:  vars,
		})
		if sendErr != nil {
			// a failed contact never aborts the campaign
			msg := sendErr.Error()
			entry.Status = models.MessageStatusFailed
			entry.ErrorMessage = &msg
			p.log.Warn("send failed",
				zap.String("campaign_id", campaign.ID.String()),
				zap.String("phone", contact.Phone),
				zap.Error(sendErr))
		} else {
			entry.Status = models.MessageStatusSent
			entry.MessageSid = &result.Sid
		}

		if err := p.messages.Create(ctx, entry); err != nil {
			return fmt.Errorf("persist message log: %w", err)
		}

		if sendErr != nil {
			if err := p.campaigns.IncrementError(ctx, campaign.ID); err != nil {
				return err
			}
			errored++
		} else {
			if err := p.campaigns.IncrementSent(ctx, campaign.ID); err != nil {
				return err
			}
			sent++
		}

		progress := int(float64(sent+errored)/float64(total)*100 + 0.5)
		p.publish(ctx, campaign.ID, events.NewProgressEvent(campaign.ID, sent, errored, total, progress))
	}

	final := models.CampaignStatusCompleted
	message := "Campaña completada"
	if errored > 0 {
		final = models.CampaignStatusCompletedWithErrors
		message = "Campaña completada con errores"
	}
	if err := p.campaigns.UpdateStatus(ctx, campaign.ID, models.CampaignStatusProcessing, final); err != nil {
		return err
	}

	// quota reflects actual sends, not the requested contact count
	if sent > 0 {
		if err := p.users.AddMessagesUsed(ctx, payload.UserID, sent); err != nil {
			p.log.Error("failed to consume quota",
				zap.String("user_id", payload.UserID.String()),
				zap.Int("sent", sent), zap.Error(err))
		}
	}

	campaign.Status = final
	campaign.SentCount = sent
	campaign.ErrorCount = errored
	p.publish(ctx, campaign.ID, events.NewStatusEvent(campaign, message))

	p.log.Info("campaign finished",
		zap.String("campaign_id", campaign.ID.String()),
		zap.String("status", final),
		zap.Int("sent", sent),
		zap.Int("errors", errored),
	)
	return nil
}

// FailCampaign is wired as the queue's exhaustion callback: every retry
// burned, the failure is terminal.
func (p *CampaignProcessor) FailCampaign(ctx context.Context, job *queue.Job, cause error) {
	var payload CampaignJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		p.log.Error("cannot decode exhausted job", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	if err := p.campaigns.MarkFailed(ctx, payload.CampaignID, reason); err != nil {
		p.log.Error("failed to mark campaign failed",
			zap.String("campaign_id", payload.CampaignID.String()), zap.Error(err))
	}

	p.publish(ctx, payload.CampaignID, events.NewErrorEvent(payload.CampaignID, reason, "job_execution"))
	if campaign, err := p.campaigns.GetByID(ctx, payload.CampaignID); err == nil {
		p.publish(ctx, payload.CampaignID, events.NewStatusEvent(campaign, "Campaña fallida"))
	}
}

// publish is fire-and-forget: a broken event channel must never stall sends.
func (p *CampaignProcessor) publish(ctx context.Context, campaignID uuid.UUID, event events.Event) {
	if err := p.publisher.Publish(ctx, events.CampaignChannel(campaignID), event); err != nil {
		p.log.Warn("event publish failed",
			zap.String("campaign_id", campaignID.String()),
			zap.String("type", event.Type),
			zap.Error(err))
	}
}
