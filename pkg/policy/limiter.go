package policy

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// timeNow is swapped in tests to control bucket refill.
var timeNow = time.Now

// LimiterStore abstracts the storage for per-fingerprint write budgets.
type LimiterStore interface {
	// Allow reports whether the fingerprint may spend cost write tokens.
	Allow(ctx context.Context, fingerprintID string, cost int) (bool, error)
}

// LimiterPolicy defines the sustained rate and burst capacity of a write
// budget.
type LimiterPolicy struct {
	PerSecond float64 `yaml:"per_second" json:"per_second"`
	Burst     int     `yaml:"burst" json:"burst"`
}

// MemoryLimiterStore is a token-bucket limiter for single-instance
// deployments and tests.
type MemoryLimiterStore struct {
	mu      sync.Mutex
	policy  LimiterPolicy
	buckets map[string]*rate.Limiter
}

// NewMemoryLimiterStore creates an in-memory limiter with one bucket per
// fingerprint.
func NewMemoryLimiterStore(policy LimiterPolicy) *MemoryLimiterStore {
	return &MemoryLimiterStore{
		policy:  policy,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow consumes cost tokens from the fingerprint's bucket.
func (s *MemoryLimiterStore) Allow(_ context.Context, fingerprintID string, cost int) (bool, error) {
	s.mu.Lock()
	bucket, ok := s.buckets[fingerprintID]
	if !ok {
		bucket = rate.NewLimiter(rate.Limit(s.policy.PerSecond), s.policy.Burst)
		s.buckets[fingerprintID] = bucket
	}
	s.mu.Unlock()

	return bucket.AllowN(timeNow(), cost), nil
}
