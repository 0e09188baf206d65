package models

import (
	"time"

	"github.com/google/uuid"
)

// Template is a WhatsApp message template. Variables holds the variable names
// in the order they appear positionally in the message body. A nil UserID
// means the template is system-owned.
type Template struct {
	ID          uuid.UUID  `json:"id"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	Name        string     `json:"name"`
	Variables   []string   `json:"variables"`
	ContentSid  *string    `json:"content_sid,omitempty"`
	TwilioSid   *string    `json:"twilio_sid,omitempty"`
	TemplateSid *string    `json:"template_sid,omitempty"`
	IsPublic    bool       `json:"is_public"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ResolveContentSid picks the gateway content identifier: the explicit
// content SID wins over the generic twilio SID, which wins over the legacy
// template SID. Empty string when none is set.
func (t *Template) ResolveContentSid() string {
	for _, sid := range []*string{t.ContentSid, t.TwilioSid, t.TemplateSid} {
		if sid != nil && *sid != "" {
			return *sid
		}
	}
	return ""
}

// AccessibleBy reports whether a user may send with this template: public
// and system-owned templates are open to everyone, private ones only to
// their owner.
func (t *Template) AccessibleBy(userID uuid.UUID) bool {
	if t.IsPublic || t.UserID == nil {
		return true
	}
	return *t.UserID == userID
}
