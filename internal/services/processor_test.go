package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/wanotify/backend/internal/events"
	"github.com/wanotify/backend/internal/gateway"
	"github.com/wanotify/backend/internal/models"
	"github.com/wanotify/backend/internal/queue"
	"go.uber.org/zap"
)

type fakeCampaignStore struct {
	mu        sync.Mutex
	campaigns map[uuid.UUID]*models.Campaign
	// pauseAfter pauses the campaign once this many contacts were processed
	pauseAfter int
	processed  int
}

func newFakeCampaignStore(c *models.Campaign) *fakeCampaignStore {
	return &fakeCampaignStore{
		campaigns:  map[uuid.UUID]*models.Campaign{c.ID: c},
		pauseAfter: -1,
	}
}

func (f *fakeCampaignStore) GetByID(_ context.Context, id uuid.UUID) (*models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, errors.New("not found")
	}
	if f.pauseAfter >= 0 && f.processed >= f.pauseAfter {
		c.Status = models.CampaignStatusPaused
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCampaignStore) MarkProcessing(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.campaigns[id].Status = models.CampaignStatusProcessing
	return nil
}

func (f *fakeCampaignStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.campaigns[id]
	if c.Status != from {
		return fmt.Errorf("campaign is not in status %s", from)
	}
	c.Status = to
	return nil
}

func (f *fakeCampaignStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.campaigns[id]
	c.Status = models.CampaignStatusFailed
	c.FailureReason = &reason
	return nil
}

func (f *fakeCampaignStore) IncrementSent(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.campaigns[id].SentCount++
	f.processed++
	return nil
}

func (f *fakeCampaignStore) IncrementError(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.campaigns[id].ErrorCount++
	f.processed++
	return nil
}

type fakeMessageStore struct {
	mu   sync.Mutex
	logs []*models.MessageLog
}

func (f *fakeMessageStore) Create(_ context.Context, m *models.MessageLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = uuid.New()
	copied := *m
	f.logs = append(f.logs, &copied)
	return nil
}

func (f *fakeMessageStore) LoggedPhones(_ context.Context, campaignID uuid.UUID) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	phones := make(map[string]bool)
	for _, m := range f.logs {
		if m.CampaignID == campaignID {
			phones[m.Phone] = true
		}
	}
	return phones, nil
}

type fakeQuotaStore struct {
	mu    sync.Mutex
	used  map[uuid.UUID]int
	calls int
}

func (f *fakeQuotaStore) AddMessagesUsed(_ context.Context, id uuid.UUID, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.used == nil {
		f.used = make(map[uuid.UUID]int)
	}
	f.used[id] += n
	f.calls++
	return nil
}

// fakeSender fails every phone listed in failPhones, succeeds otherwise.
type fakeSender struct {
	mu         sync.Mutex
	failPhones map[string]bool
	sent       []string
}

func (f *fakeSender) Send(_ context.Context, req gateway.SendRequest) (*gateway.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPhones[req.To] {
		return nil, errors.New("gateway rejected message")
	}
	f.sent = append(f.sent, req.To)
	return &gateway.SendResult{Sid: "SM" + uuid.NewString(), Status: "queued"}, nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturingPublisher) byType(eventType string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func buildCSV(n int) []byte {
	var b strings.Builder
	b.WriteString("nombre,telefono,Hora\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Contacto%d,+57300000%04d,10:00 AM\n", i, i)
	}
	return []byte(b.String())
}

func buildJob(t *testing.T, payload CampaignJob) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return &queue.Job{ID: uuid.NewString(), Payload: raw, MaxAttempts: 3, Attempts: 1}
}

func testTemplate() models.Template {
	sid := "HX0000000000000000"
	return models.Template{
		ID:         uuid.New(),
		Name:       "recordatorio",
		Variables:  []string{"empresa", "nombre"},
		ContentSid: &sid,
		IsPublic:   true,
	}
}

func setup(totalContacts int) (*models.Campaign, *fakeCampaignStore, *fakeMessageStore, *fakeQuotaStore, *capturingPublisher) {
	campaign := &models.Campaign{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		Name:          "test",
		Status:        models.CampaignStatusQueued,
		TotalContacts: totalContacts,
	}
	return campaign, newFakeCampaignStore(campaign), &fakeMessageStore{}, &fakeQuotaStore{}, &capturingPublisher{}
}

func TestProcessorCounterInvariant(t *testing.T) {
	const total = 10
	const failures = 3

	campaign, store, msgs, quota, pub := setup(total)
	sender := &fakeSender{failPhones: map[string]bool{
		"+573000000001": true,
		"+573000000004": true,
		"+573000000007": true,
	}}

	p := NewCampaignProcessor(store, msgs, quota, sender, pub, zap.NewNop())
	job := buildJob(t, CampaignJob{
		CampaignID: campaign.ID,
		UserID:     campaign.UserID,
		Template:   testTemplate(),
		CSV:        buildCSV(total),
	})

	if err := p.HandleJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	final, _ := store.GetByID(context.Background(), campaign.ID)
	if final.SentCount != total-failures {
		t.Errorf("SentCount = %d, want %d", final.SentCount, total-failures)
	}
	if final.ErrorCount != failures {
		t.Errorf("ErrorCount = %d, want %d", final.ErrorCount, failures)
	}
	if final.SentCount+final.ErrorCount != total {
		t.Errorf("sent+errors = %d, want %d", final.SentCount+final.ErrorCount, total)
	}
	if final.Status != models.CampaignStatusCompletedWithErrors {
		t.Errorf("status = %s, want completed_with_errors", final.Status)
	}
	if len(msgs.logs) != total {
		t.Errorf("expected %d message logs, got %d", total, len(msgs.logs))
	}

	// quota consumption reflects actual sends
	if quota.used[campaign.UserID] != total-failures {
		t.Errorf("messagesUsed += %d, want %d", quota.used[campaign.UserID], total-failures)
	}
}

func TestProcessorEndToEndSingleContact(t *testing.T) {
	campaign, store, msgs, quota, pub := setup(1)
	sender := &fakeSender{}

	template := testTemplate()
	p := NewCampaignProcessor(store, msgs, quota, sender, pub, zap.NewNop())
	job := buildJob(t, CampaignJob{
		CampaignID:  campaign.ID,
		UserID:      campaign.UserID,
		Template:    template,
		CSV:         []byte("nombre,telefono,Hora\nAna,+573000000000,10:00 AM\n"),
		RawDefaults: `{"empresa":"ACME"}`,
		RawMappings: `{}`,
	})

	if err := p.HandleJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	final, _ := store.GetByID(context.Background(), campaign.ID)
	if final.SentCount != 1 || final.ErrorCount != 0 {
		t.Errorf("counters = %d/%d, want 1/0", final.SentCount, final.ErrorCount)
	}
	if final.Status != models.CampaignStatusCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "+573000000000" {
		t.Errorf("sent to %v, want [+573000000000]", sender.sent)
	}
	if len(msgs.logs) != 1 || msgs.logs[0].MessageSid == nil {
		t.Fatalf("expected one sent log with sid, got %+v", msgs.logs)
	}
}

func TestProcessorProgressMonotonicity(t *testing.T) {
	const total = 7
	campaign, store, msgs, quota, pub := setup(total)
	sender := &fakeSender{failPhones: map[string]bool{"+573000000003": true}}

	p := NewCampaignProcessor(store, msgs, quota, sender, pub, zap.NewNop())
	job := buildJob(t, CampaignJob{
		CampaignID: campaign.ID,
		UserID:     campaign.UserID,
		Template:   testTemplate(),
		CSV:        buildCSV(total),
	})
	if err := p.HandleJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	progress := pub.byType(events.EventCampaignProgress)
	if len(progress) != total {
		t.Fatalf("expected %d progress events, got %d", total, len(progress))
	}

	prevSent, prevErrors, prevPct := -1, -1, -1
	for i, e := range progress {
		sent := e.Payload["sent"].(int)
		errored := e.Payload["errors"].(int)
		pct := e.Payload["progress"].(int)
		if sent < prevSent || errored < prevErrors || pct < prevPct {
			t.Fatalf("event %d regressed: sent=%d errors=%d progress=%d", i, sent, errored, pct)
		}
		prevSent, prevErrors, prevPct = sent, errored, pct
	}
	if prevPct != 100 {
		t.Errorf("final progress = %d, want 100", prevPct)
	}
}

func TestProcessorRetryDoesNotDoubleSend(t *testing.T) {
	const total = 5
	campaign, store, msgs, quota, pub := setup(total)
	sender := &fakeSender{}

	p := NewCampaignProcessor(store, msgs, quota, sender, pub, zap.NewNop())
	payload := CampaignJob{
		CampaignID: campaign.ID,
		UserID:     campaign.UserID,
		Template:   testTemplate(),
		CSV:        buildCSV(total),
	}

	// simulate a prior partial attempt that already logged two contacts
	for i := 0; i < 2; i++ {
		sid := fmt.Sprintf("SMprior%d", i)
		_ = msgs.Create(context.Background(), &models.MessageLog{
			CampaignID: campaign.ID,
			Phone:      fmt.Sprintf("+57300000%04d", i),
			Status:     models.MessageStatusSent,
			MessageSid: &sid,
		})
	}
	store.campaigns[campaign.ID].SentCount = 2

	if err := p.HandleJob(context.Background(), buildJob(t, payload)); err != nil {
		t.Fatal(err)
	}

	if len(sender.sent) != total-2 {
		t.Errorf("gateway saw %d sends, want %d (already-logged contacts must be skipped)",
			len(sender.sent), total-2)
	}
	final, _ := store.GetByID(context.Background(), campaign.ID)
	if final.SentCount != total {
		t.Errorf("SentCount = %d, want %d", final.SentCount, total)
	}
	if final.Status != models.CampaignStatusCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
}

func TestProcessorPausesAtContactBoundary(t *testing.T) {
	const total = 6
	campaign, store, msgs, quota, pub := setup(total)
	store.pauseAfter = 3
	sender := &fakeSender{}

	p := NewCampaignProcessor(store, msgs, quota, sender, pub, zap.NewNop())
	job := buildJob(t, CampaignJob{
		CampaignID: campaign.ID,
		UserID:     campaign.UserID,
		Template:   testTemplate(),
		CSV:        buildCSV(total),
	})

	// pausing parks the job so a paused campaign's payload never expires,
	// it must not surface as a retryable failure
	err := p.HandleJob(context.Background(), job)
	if !errors.Is(err, queue.ErrParked) {
		t.Fatalf("HandleJob returned %v, want ErrParked", err)
	}

	if len(sender.sent) != 3 {
		t.Errorf("gateway saw %d sends before pause, want 3", len(sender.sent))
	}
	final, _ := store.GetByID(context.Background(), campaign.ID)
	if final.Status != models.CampaignStatusPaused {
		t.Errorf("status = %s, want paused", final.Status)
	}
	if quota.calls != 0 {
		t.Error("quota must not be consumed on pause")
	}
}

func TestProcessorSkipsTerminalCampaign(t *testing.T) {
	campaign, store, msgs, quota, pub := setup(2)
	store.campaigns[campaign.ID].Status = models.CampaignStatusCompleted
	sender := &fakeSender{}

	p := NewCampaignProcessor(store, msgs, quota, sender, pub, zap.NewNop())
	job := buildJob(t, CampaignJob{
		CampaignID: campaign.ID,
		UserID:     campaign.UserID,
		Template:   testTemplate(),
		CSV:        buildCSV(2),
	})
	if err := p.HandleJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 0 {
		t.Error("terminal campaigns must not send")
	}
}

func TestProcessorFailCampaign(t *testing.T) {
	campaign, store, _, _, pub := setup(2)

	p := NewCampaignProcessor(store, &fakeMessageStore{}, &fakeQuotaStore{}, &fakeSender{}, pub, zap.NewNop())
	job := buildJob(t, CampaignJob{CampaignID: campaign.ID, UserID: campaign.UserID})

	p.FailCampaign(context.Background(), job, errors.New("redis exploded"))

	final, _ := store.GetByID(context.Background(), campaign.ID)
	if final.Status != models.CampaignStatusFailed {
		t.Errorf("status = %s, want failed", final.Status)
	}
	if final.FailureReason == nil || *final.FailureReason != "redis exploded" {
		t.Errorf("failure reason = %v", final.FailureReason)
	}
	if len(pub.byType(events.EventCampaignError)) != 1 {
		t.Error("expected one campaign_error event")
	}
}
