package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PlanFree     = "free"
	PlanPro      = "pro"
	PlanBusiness = "business"
)

type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	PasswordHash  string    `json:"-"`
	PlanType      string    `json:"plan_type"`
	MessagesUsed  int       `json:"messages_used"`
	MessagesLimit int       `json:"messages_limit"`
	CreatedAt     time.Time `json:"created_at"`
}

// MessagesAvailable is the signed remaining allowance. Negative when the
// account is already over its limit.
func (u *User) MessagesAvailable() int {
	return u.MessagesLimit - u.MessagesUsed
}
