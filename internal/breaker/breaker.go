package breaker

import (
	"log/slog"
	"sync"
	"time"

	"brandlens/internal/metrics"
)

// Registry tracks consecutive failures per analysis key and opens a breaker
// once the threshold is reached. While open, callers skip the primary model;
// any success resets the counter.
type Registry struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	states    map[string]*state
	now       func() time.Time
	log       *slog.Logger
}

type state struct {
	failures int
	openedAt time.Time
}

func NewRegistry(threshold int, cooldown time.Duration, log *slog.Logger) *Registry {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 600 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		threshold: threshold,
		cooldown:  cooldown,
		states:    make(map[string]*state),
		now:       time.Now,
		log:       log,
	}
}

// Allow reports whether the primary model may be used for key. The breaker
// closes again once the cooldown has elapsed.
func (r *Registry) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[key]
	if !ok || s.openedAt.IsZero() {
		return true
	}
	if r.now().Sub(s.openedAt) >= r.cooldown {
		// Half-open: let one call through; failure re-opens immediately.
		s.openedAt = time.Time{}
		s.failures = r.threshold - 1
		return true
	}
	return false
}

// RecordFailure bumps the consecutive-failure counter and opens the breaker
// at the threshold.
func (r *Registry) RecordFailure(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[key]
	if !ok {
		s = &state{}
		r.states[key] = s
	}
	s.failures++
	if s.failures >= r.threshold && s.openedAt.IsZero() {
		s.openedAt = r.now()
		metrics.RecordBreakerOpen(key)
		r.log.Warn("circuit breaker opened", "key", key, "failures", s.failures, "cooldown", r.cooldown)
	}
}

// RecordSuccess resets the key to a closed, clean state.
func (r *Registry) RecordSuccess(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.states[key]; ok {
		s.failures = 0
		s.openedAt = time.Time{}
	}
}
