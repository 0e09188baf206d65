package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	CampaignStatusQueued              = "queued"
	CampaignStatusProcessing          = "processing"
	CampaignStatusPaused              = "paused"
	CampaignStatusCompleted           = "completed"
	CampaignStatusCompletedWithErrors = "completed_with_errors"
	CampaignStatusFailed              = "failed"
)

type Campaign struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	TemplateID    uuid.UUID  `json:"template_id"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	TotalContacts int        `json:"total_contacts"`
	SentCount     int        `json:"sent_count"`
	ErrorCount    int        `json:"error_count"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	JobID         *string    `json:"job_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
}

// validTransitions encodes the campaign lifecycle. Terminal statuses have no
// outgoing edges, so a completed or failed campaign can never regress.
var validTransitions = map[string][]string{
	CampaignStatusQueued: {CampaignStatusProcessing, CampaignStatusFailed},
	CampaignStatusProcessing: {
		CampaignStatusCompleted,
		CampaignStatusCompletedWithErrors,
		CampaignStatusFailed,
		CampaignStatusPaused,
	},
	CampaignStatusPaused: {CampaignStatusQueued, CampaignStatusProcessing},
}

func IsValidTransition(from, to string) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a campaign in this status is done for good.
func IsTerminal(status string) bool {
	switch status {
	case CampaignStatusCompleted, CampaignStatusCompletedWithErrors, CampaignStatusFailed:
		return true
	}
	return false
}

// Progress is the percentage of contacts with a send attempt, rounded.
func (c *Campaign) Progress() int {
	if c.TotalContacts == 0 {
		return 0
	}
	return int(float64(c.SentCount+c.ErrorCount)/float64(c.TotalContacts)*100 + 0.5)
}
