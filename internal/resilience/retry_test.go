package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zhuermu/zmead-sub004/internal/domain"
)

// fakeSleep records requested delays without waiting.
func fakeSleep(delays *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestTransientRetriedToExhaustion(t *testing.T) {
	r := NewRetrier(Policy{MaxAttempts: 3, BaseDelay: time.Second, Factor: 2, MaxDelay: 30 * time.Second})
	var delays []time.Duration
	r.sleep = fakeSleep(&delays)

	cause := errors.New("connection refused")
	calls := 0
	err := r.Do(context.Background(), "ledger check", func(_ context.Context) error {
		calls++
		return domain.Transient(domain.TransientConnection, cause)
	})

	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestBackoffSchedule(t *testing.T) {
	r := NewRetrier(Policy{MaxAttempts: 4, BaseDelay: time.Second, Factor: 2, MaxDelay: 30 * time.Second})
	var delays []time.Duration
	r.sleep = fakeSleep(&delays)

	_ = r.Do(context.Background(), "upstream call", func(_ context.Context) error {
		return domain.Transient(domain.TransientTimeout, errors.New("deadline exceeded"))
	})

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestDelayCappedAtMax(t *testing.T) {
	r := NewRetrier(Policy{MaxAttempts: 10, BaseDelay: time.Second, Factor: 2, MaxDelay: 5 * time.Second})
	if d := r.Delay(1); d != time.Second {
		t.Errorf("Delay(1) = %v", d)
	}
	if d := r.Delay(4); d != 5*time.Second {
		t.Errorf("Delay(4) = %v, want cap 5s", d)
	}
}

func TestTerminalNotRetried(t *testing.T) {
	r := NewRetrier(DefaultPolicy())
	var delays []time.Duration
	r.sleep = fakeSleep(&delays)

	cause := errors.New("campaign not found")
	calls := 0
	err := r.Do(context.Background(), "tool call", func(_ context.Context) error {
		calls++
		return cause
	})

	if calls != 1 {
		t.Fatalf("expected exactly 1 attempt for terminal error, got %d", calls)
	}
	if len(delays) != 0 {
		t.Fatalf("expected no sleeps, got %v", delays)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestSuccessAfterTransient(t *testing.T) {
	r := NewRetrier(DefaultPolicy())
	var delays []time.Duration
	r.sleep = fakeSleep(&delays)

	calls := 0
	err := r.Do(context.Background(), "capability call", func(_ context.Context) error {
		calls++
		if calls < 3 {
			return domain.Transient(domain.TransientRateLimit, errors.New("429"))
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestContextCancelledDuringSleep(t *testing.T) {
	r := NewRetrier(DefaultPolicy())
	r.sleep = func(ctx context.Context, _ time.Duration) error { return context.Canceled }

	calls := 0
	err := r.Do(context.Background(), "slow op", func(_ context.Context) error {
		calls++
		return domain.Transient(domain.TransientUpstream, errors.New("503"))
	})

	if calls != 1 {
		t.Fatalf("expected 1 attempt before cancellation, got %d", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAttemptTimeoutApplied(t *testing.T) {
	r := NewRetrier(Policy{MaxAttempts: 1, BaseDelay: time.Second, Factor: 2, AttemptTimeout: 10 * time.Millisecond})

	err := r.Do(context.Background(), "hung upstream", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
