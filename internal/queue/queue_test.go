package queue

import (
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	base := 5 * time.Second
	tests := []struct {
		attempts int
		expected time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
	}

	for _, tt := range tests {
		if got := BackoffDelay(base, tt.attempts); got != tt.expected {
			t.Errorf("BackoffDelay(base, %d) = %v, want %v", tt.attempts, got, tt.expected)
		}
	}

	if got := BackoffDelay(0, 1); got != 5*time.Second {
		t.Errorf("zero base should fall back to 5s, got %v", got)
	}
}

func TestReadyScore(t *testing.T) {
	now := time.Now().UnixMilli()

	// lower priority number always wins, regardless of enqueue time
	if ReadyScore(1, now+60_000) >= ReadyScore(2, now) {
		t.Error("priority 1 must score below priority 2")
	}

	// FIFO within the same priority
	if ReadyScore(2, now) >= ReadyScore(2, now+1) {
		t.Error("earlier enqueue must score below later enqueue at equal priority")
	}
}
