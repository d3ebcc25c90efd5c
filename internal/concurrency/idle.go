// File: internal/concurrency/idle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"runtime"
	"time"
)

// IdleStrategy decides how a duty cycle waits when a pass produced no
// work. Implementations are used by a single goroutine.
type IdleStrategy interface {
	Idle(workCount int)
}

const (
	minBackoffNs = int64(time.Microsecond)
	maxBackoffNs = int64(time.Millisecond)
)

// BackoffIdleStrategy yields first, then sleeps with exponentially
// increasing pauses from one microsecond up to one millisecond. Any
// observed work resets the backoff.
type BackoffIdleStrategy struct {
	backoffNs int64
}

// NewBackoffIdleStrategy returns a reset backoff strategy.
func NewBackoffIdleStrategy() *BackoffIdleStrategy {
	return &BackoffIdleStrategy{}
}

// Idle applies the backoff for an idle pass or resets it after work.
func (s *BackoffIdleStrategy) Idle(workCount int) {
	if workCount > 0 {
		s.backoffNs = 0
		return
	}
	if s.backoffNs == 0 {
		runtime.Gosched()
		s.backoffNs = minBackoffNs
		return
	}
	time.Sleep(time.Duration(s.backoffNs))
	s.backoffNs *= 2
	if s.backoffNs > maxBackoffNs {
		s.backoffNs = maxBackoffNs
	}
}
