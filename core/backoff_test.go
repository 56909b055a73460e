package core

import (
	"context"
	"testing"
	"time"
)

func TestExponentialBackoffScheduler_DoublesAndClamps(t *testing.T) {
	scheduler := ExponentialBackoffScheduler{
		Initial: 100 * time.Millisecond,
		Max:     time.Second,
	}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 100 * time.Millisecond},
		{attempt: 1, want: 100 * time.Millisecond},
		{attempt: 2, want: 200 * time.Millisecond},
		{attempt: 3, want: 400 * time.Millisecond},
		{attempt: 4, want: 800 * time.Millisecond},
		{attempt: 5, want: time.Second},
		{attempt: 12, want: time.Second},
	}
	for _, tc := range cases {
		if got := scheduler.NextDelay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}

func TestExponentialBackoffScheduler_UsesDefaults(t *testing.T) {
	scheduler := ExponentialBackoffScheduler{}

	if got := scheduler.NextDelay(1); got != defaultRetryInitialBackoff {
		t.Fatalf("expected default initial delay, got %v", got)
	}
	if got := scheduler.NextDelay(100); got != defaultRetryMaxBackoff {
		t.Fatalf("expected default max delay, got %v", got)
	}
}

func TestWaitWithContext_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := waitWithContext(ctx, time.Minute); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestWaitWithContext_ZeroDelayIsImmediate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := waitWithContext(ctx, 0); err != nil {
		t.Fatalf("expected immediate return, got %v", err)
	}
}
