package core

// commit_limiter.go bounds how many import sessions commit at once.
//
// A commit holds its slot for every phase, so the limiter is what keeps a
// burst of operators from opening one store connection each. A caller that
// cannot get a slot within maxWait receives ErrTooManyCommits. Shutdown
// waits on WaitForDrain so running commits finish their current phase.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyCommits is returned when every commit slot stays occupied for
// the whole wait.
var ErrTooManyCommits = errors.New("too many concurrent commits, please try again later")

const (
	// DefaultMaxConcurrentCommits is used when the limit is not configured.
	DefaultMaxConcurrentCommits = 2

	// DefaultCommitWait is how long Acquire waits for a slot.
	DefaultCommitWait = 10 * time.Second
)

// drainPoll is how often WaitForDrain checks for idle.
const drainPoll = 50 * time.Millisecond

// CommitLimiter is a counting semaphore over commit runs.
type CommitLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewCommitLimiter allows at most maxConcurrent commits. Non-positive
// arguments fall back to the defaults.
func NewCommitLimiter(maxConcurrent int, maxWait time.Duration) *CommitLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentCommits
	}
	if maxWait <= 0 {
		maxWait = DefaultCommitWait
	}
	return &CommitLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire blocks until a slot is free, maxWait elapses (ErrTooManyCommits)
// or ctx is done (ctx.Err()). Every nil return must be paired with Release.
func (l *CommitLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyCommits
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *CommitLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *CommitLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// ActiveCount returns the number of running commits.
func (l *CommitLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// Available returns the number of free slots.
func (l *CommitLimiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// WaitForDrain returns once no commit is running, or with ctx.Err().
func (l *CommitLimiter) WaitForDrain(ctx context.Context) error {
	if l.ActiveCount() == 0 {
		return nil
	}
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}

// CommitLimiterStatus is the health-check view of the limiter.
type CommitLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *CommitLimiter) Status() CommitLimiterStatus {
	return CommitLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: cap(l.slots),
	}
}
