package scheduler

import (
	"context"
	"sync"
	"time"
)

// handleTimeout bounds each fired job's handler invocation.
const handleTimeout = 30 * time.Second

// TimerScheduler runs delayed jobs in-process with timers. It backs tests
// and single-node deployments without an external queue. Jobs do not survive
// a restart; the pending list's cache TTL is the backstop for that loss.
type TimerScheduler struct {
	handle func(ctx context.Context, body []byte)

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

// NewTimerScheduler creates a timer-backed scheduler that invokes handle for
// each fired job.
func NewTimerScheduler(handle func(ctx context.Context, body []byte)) *TimerScheduler {
	return &TimerScheduler{
		handle: handle,
		timers: make(map[*time.Timer]struct{}),
	}
}

// Schedule fires the job after the delay. The body is copied; callers may
// reuse their buffer.
func (s *TimerScheduler) Schedule(_ context.Context, body []byte, delay time.Duration) error {
	job := make([]byte, len(body))
	copy(job, body)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, timer)
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		s.handle(ctx, job)
	})
	s.timers[timer] = struct{}{}
	return nil
}

// Stop cancels all pending timers. Jobs already firing complete.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for timer := range s.timers {
		timer.Stop()
	}
	s.timers = make(map[*time.Timer]struct{})
}
