package core

// limiter.go bounds how many pipeline invocations run at once.
//
// Slots come from a weighted semaphore. When every slot is taken, callers wait
// up to maxWait before failing with ErrTooManyInvocations. WaitForDrain lets
// shutdown wait for in-flight invocations.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTooManyInvocations is returned when no slot frees up within the wait time.
var ErrTooManyInvocations = errors.New("too many concurrent invocations, please try again later")

// DefaultMaxConcurrentInvocations is the default limit for parallel invocations.
const DefaultMaxConcurrentInvocations = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// InvocationLimiter caps concurrent pipeline runs.
type InvocationLimiter struct {
	sem     *semaphore.Weighted
	max     int64
	maxWait time.Duration
	active  atomic.Int64
}

// NewInvocationLimiter allows at most maxConcurrent simultaneous invocations.
// Non-positive arguments fall back to the defaults.
func NewInvocationLimiter(maxConcurrent int, maxWait time.Duration) *InvocationLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentInvocations
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &InvocationLimiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     int64(maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire waits for a slot. It returns ErrTooManyInvocations when maxWait
// passes first, or the context's error when ctx ends first.
// The caller must call Release after a nil return.
func (l *InvocationLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyInvocations
	}
	l.active.Add(1)
	return nil
}

// TryAcquire takes a slot without blocking.
func (l *InvocationLimiter) TryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.active.Add(1)
	return true
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *InvocationLimiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// ActiveCount returns the number of running invocations.
func (l *InvocationLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// MaxConcurrent returns the slot count.
func (l *InvocationLimiter) MaxConcurrent() int {
	return int(l.max)
}

// Available returns the number of free slots.
func (l *InvocationLimiter) Available() int {
	return int(l.max - l.active.Load())
}

// WaitForDrain blocks until no invocation is running or ctx ends.
func (l *InvocationLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a snapshot of the limiter for /healthz.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *InvocationLimiter) Status() LimiterStatus {
	active := l.ActiveCount()
	return LimiterStatus{
		Active:        active,
		Available:     int(l.max) - active,
		MaxConcurrent: int(l.max),
	}
}
