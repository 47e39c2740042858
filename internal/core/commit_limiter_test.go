package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCommitLimiter_AcquireRelease(t *testing.T) {
	l := NewCommitLimiter(2, time.Second)
	ctx := context.Background()

	if got := l.Available(); got != 2 {
		t.Errorf("initial Available = %d, want 2", got)
	}
	for i := range 2 {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}
	if got := l.Status(); got.Active != 2 || got.Available != 0 || got.MaxConcurrent != 2 {
		t.Errorf("Status() = %+v", got)
	}

	l.Release()
	l.Release()
	if got := l.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after release = %d", got)
	}
}

func TestCommitLimiter_TimesOut(t *testing.T) {
	l := NewCommitLimiter(1, 50*time.Millisecond)
	if !l.TryAcquire() {
		t.Fatal("TryAcquire on empty limiter failed")
	}
	defer l.Release()

	if l.TryAcquire() {
		t.Fatal("TryAcquire on full limiter succeeded")
	}

	start := time.Now()
	err := l.Acquire(context.Background())
	if !errors.Is(err, ErrTooManyCommits) {
		t.Errorf("Acquire error = %v, want ErrTooManyCommits", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("returned after %v, before the wait expired", elapsed)
	}
}

func TestCommitLimiter_ContextCancelled(t *testing.T) {
	l := NewCommitLimiter(1, 5*time.Second)
	l.TryAcquire()
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Acquire(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire ignored cancellation")
	}
}

func TestCommitLimiter_Concurrency(t *testing.T) {
	const limit = 2
	l := NewCommitLimiter(limit, time.Second)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		maxSeen int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			defer l.Release()

			mu.Lock()
			maxSeen = max(maxSeen, l.ActiveCount())
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
		}()
	}
	wg.Wait()

	if maxSeen > limit {
		t.Errorf("observed %d concurrent commits, limit %d", maxSeen, limit)
	}
}

func TestCommitLimiter_WaitForDrain(t *testing.T) {
	l := NewCommitLimiter(1, time.Second)
	if err := l.WaitForDrain(context.Background()); err != nil {
		t.Fatalf("idle drain: %v", err)
	}

	l.TryAcquire()
	done := make(chan error, 1)
	go func() { done <- l.WaitForDrain(context.Background()) }()

	select {
	case <-done:
		t.Fatal("drain returned while a commit was active")
	case <-time.After(2 * drainPoll):
	}

	l.Release()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("drain: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("drain did not return")
	}

	l.TryAcquire()
	defer l.Release()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.WaitForDrain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("drain with deadline = %v", err)
	}
}

func TestNewCommitLimiter_Defaults(t *testing.T) {
	l := NewCommitLimiter(0, 0)
	if got := l.Status().MaxConcurrent; got != DefaultMaxConcurrentCommits {
		t.Errorf("MaxConcurrent = %d, want %d", got, DefaultMaxConcurrentCommits)
	}
	if l.maxWait != DefaultCommitWait {
		t.Errorf("maxWait = %v", l.maxWait)
	}
}
