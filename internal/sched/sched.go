package sched

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Scheduler bounds LLM usage two ways: a semaphore caps in-flight calls and a
// token bucket caps tokens per minute against the upstream TPM ceiling.
type Scheduler struct {
	sem    *semaphore.Weighted
	bucket *rate.Limiter
	tpm    int
}

func New(concurrency, tpmLimit int) *Scheduler {
	if concurrency <= 0 {
		concurrency = 2
	}
	if tpmLimit <= 0 {
		tpmLimit = 80000
	}
	return &Scheduler{
		sem:    semaphore.NewWeighted(int64(concurrency)),
		bucket: rate.NewLimiter(rate.Limit(float64(tpmLimit)/60.0), tpmLimit),
		tpm:    tpmLimit,
	}
}

// Acquire reserves one call slot plus the token budget, waiting at most
// maxWait for both. On any failure the slot is released and false returned;
// the caller must not call Release.
func (s *Scheduler) Acquire(ctx context.Context, tokens int, maxWait time.Duration) bool {
	waitCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	if err := s.sem.Acquire(waitCtx, 1); err != nil {
		return false
	}

	if tokens > s.tpm {
		// A single oversize request can never clear the bucket; charge the
		// whole capacity instead of deadlocking.
		tokens = s.tpm
	}
	if err := s.bucket.WaitN(waitCtx, tokens); err != nil {
		s.sem.Release(1)
		return false
	}
	return true
}

// Release returns the call slot after an LLM call finishes. Spent tokens are
// not refunded.
func (s *Scheduler) Release() {
	s.sem.Release(1)
}
