package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicyDelay(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: 0.5}
	tests := []struct {
		name    string
		attempt int
		r       float64
		want    time.Duration
	}{
		{name: "first attempt no jitter", attempt: 1, r: 0, want: 100 * time.Millisecond},
		{name: "zero attempt clamps to first", attempt: 0, r: 0, want: 100 * time.Millisecond},
		{name: "third attempt doubles twice", attempt: 3, r: 0, want: 400 * time.Millisecond},
		{name: "full jitter", attempt: 2, r: 1, want: 300 * time.Millisecond},
		{name: "capped", attempt: 10, r: 0, want: time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.delay(tt.attempt, tt.r); got != tt.want {
				t.Errorf("delay(%d, %v) = %v, want %v", tt.attempt, tt.r, got, tt.want)
			}
		})
	}
}

func TestDelayWithinBounds(t *testing.T) {
	p := DefaultPolicy()
	for attempt := 1; attempt <= 8; attempt++ {
		d := p.Delay(attempt)
		if d < p.delay(attempt, 0) || d > p.Max {
			t.Errorf("Delay(%d) = %v out of bounds", attempt, d)
		}
	}
}

func TestFromDelay(t *testing.T) {
	if got := FromDelay(time.Minute); got.Initial != time.Minute || got.Max != time.Minute {
		t.Errorf("FromDelay(1m) = %+v", got)
	}
	if got := FromDelay(0); got.Initial != DefaultPolicy().Initial {
		t.Errorf("FromDelay(0) = %+v", got)
	}
}

func TestSleep(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Sleep() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Sleep() error = %v", err)
	}
}
