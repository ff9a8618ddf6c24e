package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/easely-bot/internal/metrics"
)

// Scheduler runs deferred prompts, at most one pending per key. Scheduling
// again for a key replaces the pending prompt.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	closed  bool
	running sync.WaitGroup
	timeout time.Duration
}

// NewScheduler creates a scheduler whose tasks each get timeout to finish.
func NewScheduler(timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Scheduler{
		timers:  make(map[string]*time.Timer),
		timeout: timeout,
	}
}

// Schedule runs fn after delay on a fresh context, detached from the
// request that scheduled it.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if prev, ok := s.timers[key]; ok {
		prev.Stop()
		metrics.DeferredPromptsTotal.WithLabelValues("replaced").Inc()
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.closed || s.timers[key] != timer {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.running.Add(1)
		s.mu.Unlock()

		defer s.running.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Deferred prompt panicked", "key", key, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		metrics.DeferredPromptsTotal.WithLabelValues("fired").Inc()
		fn(ctx)
	})
	s.timers[key] = timer
	metrics.DeferredPromptsTotal.WithLabelValues("scheduled").Inc()
}

// Cancel stops the pending prompt for key. It reports whether one was pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(s.timers, key)
	metrics.DeferredPromptsTotal.WithLabelValues("cancelled").Inc()
	return true
}

// Pending reports whether a prompt is waiting for key.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Close stops all pending prompts and waits for running ones to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()

	s.running.Wait()
}
