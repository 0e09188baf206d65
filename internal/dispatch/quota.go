package dispatch

import (
	"fmt"

	"github.com/wanotify/backend/internal/models"
)

// QuotaError reports a rejected campaign: the user's remaining allowance is
// smaller than the contact count. Available keeps its true signed value for
// diagnostics even when the account is already over-limit.
type QuotaError struct {
	Required      int    `json:"required"`
	Available     int    `json:"available"`
	PlanType      string `json:"planType"`
	MessagesUsed  int    `json:"messagesUsed"`
	MessagesLimit int    `json:"messagesLimit"`
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded: required %d, available %d", e.Required, e.Available)
}

// CheckQuota must run before any campaign or job is created.
func CheckQuota(user *models.User, contactsToSend int) error {
	available := user.MessagesAvailable()
	usable := available
	if usable < 0 {
		usable = 0
	}
	if contactsToSend > usable {
		return &QuotaError{
			Required:      contactsToSend,
			Available:     available,
			PlanType:      user.PlanType,
			MessagesUsed:  user.MessagesUsed,
			MessagesLimit: user.MessagesLimit,
		}
	}
	return nil
}
