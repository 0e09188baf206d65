package handlers

import (
	"testing"

	"github.com/wanotify/backend/internal/models"
)

func TestMapTwilioStatus(t *testing.T) {
	tests := []struct {
		raw         string
		want        string
		timestamped bool
	}{
		{"delivered", models.MessageStatusDelivered, true},
		{"read", models.MessageStatusRead, true},
		{"failed", models.MessageStatusFailed, false},
		{"undelivered", models.MessageStatusFailed, false},
		{"queued", "", false},
		{"sending", "", false},
		{"sent", "", false},
		{"", "", false},
		{"something-new", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, timestamped := mapTwilioStatus(tt.raw)
			if got != tt.want || timestamped != tt.timestamped {
				t.Errorf("mapTwilioStatus(%q) = (%q, %v), want (%q, %v)",
					tt.raw, got, timestamped, tt.want, tt.timestamped)
			}
		})
	}
}
