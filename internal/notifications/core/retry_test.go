package core

import (
	"testing"
	"time"
)

func TestCalculateNextRetry_RequeuePolicy(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{-1, 30 * time.Second},
		{0, 30 * time.Second},
		{1, 2 * time.Minute},
		{2, 8 * time.Minute},
		{3, 15 * time.Minute}, // 32m, capped
		{40, 15 * time.Minute},
	}

	for _, tt := range tests {
		if d := CalculateNextRetry(RequeuePolicy, tt.attempt); d != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, d)
		}
	}
}

func TestShouldRequeue(t *testing.T) {
	for retry, want := range map[int]bool{0: true, 2: true, 3: false, 9: false} {
		if got := ShouldRequeue(RequeuePolicy, retry); got != want {
			t.Errorf("retry %d: expected %v, got %v", retry, want, got)
		}
	}
}
