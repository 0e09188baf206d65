package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/wanotify/backend/internal/config"
	"github.com/wanotify/backend/internal/dispatch"
	"github.com/wanotify/backend/internal/events"
	"github.com/wanotify/backend/internal/models"
	"github.com/wanotify/backend/internal/queue"
	"github.com/wanotify/backend/internal/repositories"
	"go.uber.org/zap"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateNoSid    = errors.New("template has no gateway content identifier")
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrCampaignDataGone = errors.New("campaign job data no longer available")
)

// CampaignJob is the queue payload: everything the worker needs to process a
// campaign without re-reading the uploaded file. CSV bytes live only here
// once the temp upload is deleted.
type CampaignJob struct {
	CampaignID  uuid.UUID       `json:"campaign_id"`
	UserID      uuid.UUID       `json:"user_id"`
	UserName    string          `json:"user_name"`
	Template    models.Template `json:"template"`
	CSV         []byte          `json:"csv"`
	RawMappings string          `json:"raw_mappings"`
	RawDefaults string          `json:"raw_defaults"`
}

type DispatchService struct {
	campaignRepo *repositories.CampaignRepo
	templateRepo *repositories.TemplateRepo
	userRepo     *repositories.UserRepo
	messageRepo  *repositories.MessageLogRepo
	queue        *queue.Queue
	publisher    events.Publisher
	cfg          *config.Config
	log          *zap.Logger
}

func NewDispatchService(
	campaignRepo *repositories.CampaignRepo,
	templateRepo *repositories.TemplateRepo,
	userRepo *repositories.UserRepo,
	messageRepo *repositories.MessageLogRepo,
	q *queue.Queue,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *DispatchService {
	return &DispatchService{
		campaignRepo: campaignRepo,
		templateRepo: templateRepo,
		userRepo:     userRepo,
		messageRepo:  messageRepo,
		queue:        q,
		publisher:    publisher,
		cfg:          cfg,
		log:          log,
	}
}

type CreateCampaignInput struct {
	Name        string
	TemplateKey string
	CSV         []byte
	RawMappings string
	RawDefaults string
}

type CreateCampaignResult struct {
	Campaign           *models.Campaign
	Template           *models.Template
	JobID              string
	Priority           int
	EstimatedStartTime time.Time
}

// CreateCampaign runs the synchronous half of the pipeline: sanitize the
// mapping payloads, resolve the template, validate the CSV, enforce the plan
// quota and enqueue exactly one job for the new campaign. The quota check
// runs before anything is persisted.
func (s *DispatchService) CreateCampaign(ctx context.Context, userID uuid.UUID, in CreateCampaignInput) (*CreateCampaignResult, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	// known client bug delivers these corrupted, repair instead of rejecting
	rawMappings := dispatch.SanitizeJSON(in.RawMappings, s.log)
	rawDefaults := dispatch.SanitizeJSON(in.RawDefaults, s.log)

	template, err := s.templateRepo.FindBySidOrName(ctx, in.TemplateKey)
	if err != nil {
		// only an actual miss is a 404, an unreachable database is not
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("look up template: %w", err)
	}
	if !template.AccessibleBy(userID) {
		return nil, ErrTemplateNotFound
	}
	if template.ResolveContentSid() == "" {
		return nil, ErrTemplateNoSid
	}

	contacts, err := dispatch.ParseContacts(in.CSV)
	if err != nil {
		return nil, err
	}

	if err := dispatch.CheckQuota(user, len(contacts)); err != nil {
		return nil, err
	}

	name := in.Name
	if name == "" {
		name = "Campaña " + time.Now().Format("2006-01-02 15:04")
	}

	campaign := &models.Campaign{
		UserID:        userID,
		TemplateID:    template.ID,
		Name:          name,
		Status:        models.CampaignStatusQueued,
		TotalContacts: len(contacts),
	}
	if err := s.campaignRepo.Create(ctx, campaign); err != nil {
		return nil, err
	}

	priority := s.cfg.PriorityForPlan(user.PlanType)
	jobID, err := s.enqueue(ctx, campaign, user, template, in.CSV, rawMappings, rawDefaults, priority)
	if err != nil {
		// campaign row exists but never got a job, close it out
		_ = s.campaignRepo.MarkFailed(ctx, campaign.ID, "enqueue failed: "+err.Error())
		return nil, err
	}

	s.log.Info("campaign queued",
		zap.String("campaign_id", campaign.ID.String()),
		zap.String("job_id", jobID),
		zap.Int("contacts", len(contacts)),
		zap.Int("priority", priority),
	)

	return &CreateCampaignResult{
		Campaign:           campaign,
		Template:           template,
		JobID:              jobID,
		Priority:           priority,
		EstimatedStartTime: time.Now().Add(s.cfg.QueueEnqueueDelay),
	}, nil
}

func (s *DispatchService) enqueue(ctx context.Context, campaign *models.Campaign, user *models.User, template *models.Template, csv []byte, rawMappings, rawDefaults string, priority int) (string, error) {
	payload := CampaignJob{
		CampaignID:  campaign.ID,
		UserID:      user.ID,
		UserName:    user.Name,
		Template:    *template,
		CSV:         csv,
		RawMappings: rawMappings,
		RawDefaults: rawDefaults,
	}

	jobID, err := s.queue.Enqueue(ctx, payload, queue.Options{
		Priority:    priority,
		MaxAttempts: s.cfg.QueueAttempts,
		Backoff:     s.cfg.QueueBackoffBase,
		Delay:       s.cfg.QueueEnqueueDelay,
	})
	if err != nil {
		return "", err
	}

	if err := s.campaignRepo.SetJobID(ctx, campaign.ID, jobID); err != nil {
		s.log.Error("failed to record job id", zap.String("campaign_id", campaign.ID.String()), zap.Error(err))
	}
	campaign.JobID = &jobID
	return jobID, nil
}

func (s *DispatchService) GetCampaign(ctx context.Context, id, userID uuid.UUID) (*models.Campaign, error) {
	c, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("load campaign: %w", err)
	}
	if c.UserID != userID {
		return nil, ErrCampaignNotFound
	}
	return c, nil
}

func (s *DispatchService) ListCampaigns(ctx context.Context, userID uuid.UUID, f repositories.CampaignFilter) ([]models.Campaign, error) {
	f.UserID = &userID
	return s.campaignRepo.List(ctx, f)
}

// Pause asks the worker to stop at the next contact boundary. The worker
// observes the row status cooperatively, so the current send finishes first.
func (s *DispatchService) Pause(ctx context.Context, id, userID uuid.UUID) (*models.Campaign, error) {
	c, err := s.GetCampaign(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := s.campaignRepo.UpdateStatus(ctx, id, models.CampaignStatusProcessing, models.CampaignStatusPaused); err != nil {
		return nil, err
	}
	c.Status = models.CampaignStatusPaused
	s.publishStatus(ctx, c, "Campaña pausada")
	return c, nil
}

// Resume re-enqueues a paused campaign. Already-sent contacts are skipped by
// the worker's message-log check.
func (s *DispatchService) Resume(ctx context.Context, id, userID uuid.UUID) (*models.Campaign, error) {
	c, err := s.GetCampaign(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CampaignStatusPaused {
		return nil, errors.New("campaign is not paused")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	template, err := s.templateRepo.GetByID(ctx, c.TemplateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("load template: %w", err)
	}

	job, err := s.loadJobPayload(ctx, c)
	if err != nil {
		return nil, err
	}

	if err := s.campaignRepo.UpdateStatus(ctx, id, models.CampaignStatusPaused, models.CampaignStatusQueued); err != nil {
		return nil, err
	}
	c.Status = models.CampaignStatusQueued

	oldJobID := *c.JobID
	priority := s.cfg.PriorityForPlan(user.PlanType)
	if _, err := s.enqueue(ctx, c, user, template, job.CSV, job.RawMappings, job.RawDefaults, priority); err != nil {
		return nil, err
	}

	// the parked record carries no TTL, put the superseded one on the clock
	if err := s.queue.Discard(ctx, oldJobID); err != nil {
		s.log.Warn("failed to discard superseded job",
			zap.String("job_id", oldJobID), zap.Error(err))
	}

	s.publishStatus(ctx, c, "Campaña reanudada")
	return c, nil
}

// loadJobPayload recovers the CSV and mapping payloads from the campaign's
// last job. The upload itself is long gone, the job record is the only copy.
func (s *DispatchService) loadJobPayload(ctx context.Context, c *models.Campaign) (*CampaignJob, error) {
	if c.JobID == nil {
		return nil, errors.New("campaign has no job record")
	}
	payload, err := s.queue.Payload(ctx, *c.JobID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCampaignDataGone
		}
		return nil, err
	}
	var job CampaignJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

type DeliveryReport struct {
	CampaignID   uuid.UUID                   `json:"campaign_id"`
	Stats        *repositories.DeliveryStats `json:"stats"`
	DeliveryRate float64                     `json:"delivery_rate"`
}

// Delivery computes the delivery rate as delivered/sentCount. totalContacts
// is not a valid denominator: rows without a phone never got a message log.
func (s *DispatchService) Delivery(ctx context.Context, id, userID uuid.UUID) (*DeliveryReport, error) {
	c, err := s.GetCampaign(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	stats, err := s.messageRepo.Stats(ctx, id)
	if err != nil {
		return nil, err
	}

	rate := 0.0
	if c.SentCount > 0 {
		rate = float64(stats.Delivered) / float64(c.SentCount)
	}
	return &DeliveryReport{CampaignID: id, Stats: stats, DeliveryRate: rate}, nil
}

func (s *DispatchService) publishStatus(ctx context.Context, c *models.Campaign, message string) {
	err := s.publisher.Publish(ctx, events.CampaignChannel(c.ID), events.NewStatusEvent(c, message))
	if err != nil {
		s.log.Warn("failed to publish status event", zap.Error(err))
	}
}
