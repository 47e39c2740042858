package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	transient := errors.New("connection refused")
	permanent := errors.New("violates check constraint")

	tests := []struct {
		name      string
		failures  []error // returned by successive attempts; nil afterwards
		attempts  int
		wantCalls int
		wantErr   error
	}{
		{name: "first try", attempts: 3, wantCalls: 1},
		{name: "transient then success", failures: []error{transient, transient}, attempts: 3, wantCalls: 3},
		{name: "exhausted", failures: []error{transient, transient, transient}, attempts: 3, wantCalls: 3, wantErr: transient},
		{name: "permanent not retried", failures: []error{permanent}, attempts: 3, wantCalls: 1, wantErr: permanent},
		{name: "no retry policy", failures: []error{transient}, attempts: 1, wantCalls: 1, wantErr: transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var slept []time.Duration
			p := RetryPolicy{
				MaxAttempts: tt.attempts,
				BaseDelay:   10 * time.Millisecond,
				MaxDelay:    40 * time.Millisecond,
				sleep: func(_ context.Context, d time.Duration) error {
					slept = append(slept, d)
					return nil
				},
			}

			calls := 0
			v, err := Retry(context.Background(), p, "test", func(context.Context) (int, error) {
				calls++
				if calls <= len(tt.failures) {
					return 0, tt.failures[calls-1]
				}
				return 7, nil
			})

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if err == nil && v != 7 {
				t.Errorf("value = %d, want 7", v)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if len(slept) != calls-1 {
				t.Errorf("slept %d times for %d calls", len(slept), calls)
			}
			for _, d := range slept {
				if d < 0 || d > p.MaxDelay {
					t.Errorf("backoff %v outside [0, %v]", d, p.MaxDelay)
				}
			}
		})
	}
}

func TestRetry_StopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	_, err := Retry(ctx, p, "test", func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, errors.New("i/o timeout")
	})
	if err == nil || calls != 1 {
		t.Errorf("calls = %d, err = %v; want one call and the op error", calls, err)
	}
}

func TestBackoffCeiling(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	for n := 1; n <= 10; n++ {
		for range 20 {
			if d := p.backoff(n); d > time.Second {
				t.Fatalf("backoff(%d) = %v exceeds MaxDelay", n, d)
			}
		}
	}
	if d := (RetryPolicy{}).backoff(3); d != 0 {
		t.Errorf("zero policy backoff = %v, want 0", d)
	}
}
