package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{Base: 2 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}

	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicy_Do_SucceedsAfterRetries(t *testing.T) {
	errTransient := errors.New("transient")
	calls := 0

	p := Policy{MaxAttempts: 3, Base: time.Millisecond, Sleep: noSleep}
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestPolicy_Do_ExhaustsAttempts(t *testing.T) {
	errAlways := errors.New("always fails")
	calls := 0

	p := Policy{MaxAttempts: 3, Base: time.Millisecond, Sleep: noSleep}
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errAlways
	})

	if !errors.Is(err, errAlways) {
		t.Fatalf("Do() error = %v, want %v", err, errAlways)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestPolicy_Do_NonRetryableStopsEarly(t *testing.T) {
	errFatal := errors.New("fatal")
	calls := 0

	p := Policy{
		MaxAttempts: 5,
		Base:        time.Millisecond,
		Sleep:       noSleep,
		Retryable:   func(err error) bool { return !errors.Is(err, errFatal) },
	}
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errFatal
	})

	if !errors.Is(err, errFatal) {
		t.Fatalf("Do() error = %v, want %v", err, errFatal)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestPolicy_Do_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Policy{MaxAttempts: 3, Base: time.Millisecond, Sleep: noSleep}
	err := p.Do(ctx, func(ctx context.Context) error {
		t.Fatal("fn should not run with a cancelled context")
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

func TestPolicy_Do_ZeroValueDefaults(t *testing.T) {
	calls := 0
	p := Policy{Sleep: noSleep}
	_ = p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("nope")
	})

	if calls != DefaultMaxAttempts {
		t.Errorf("fn called %d times, want %d", calls, DefaultMaxAttempts)
	}
}
