package fraud

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// MemoryVelocityStore keeps a per-email sliding window of attempt times in
// process memory. Suitable for tests and single-instance deployments.
type MemoryVelocityStore struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	now      func() time.Time
}

func NewMemoryVelocityStore() *MemoryVelocityStore {
	return &MemoryVelocityStore{
		attempts: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// NewMemoryVelocityStoreWithClock injects a clock for tests.
func NewMemoryVelocityStoreWithClock(now func() time.Time) *MemoryVelocityStore {
	return &MemoryVelocityStore{
		attempts: make(map[string][]time.Time),
		now:      now,
	}
}

func (m *MemoryVelocityStore) Record(_ context.Context, email string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-window)

	recent := make([]time.Time, 0, len(m.attempts[email])+1)

	for _, at := range m.attempts[email] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}

	recent = append(recent, now)
	m.attempts[email] = recent

	return len(recent), nil
}

// RedisVelocityStore counts attempts in Redis so the rapid-succession check
// holds across processes. One counter per email, expired after the window.
type RedisVelocityStore struct {
	client *goredis.Client
}

func NewRedisVelocityStore(client *goredis.Client) *RedisVelocityStore {
	return &RedisVelocityStore{client: client}
}

func (r *RedisVelocityStore) Record(ctx context.Context, email string, window time.Duration) (int, error) {
	key := "billhawk:fraud:attempts:" + email

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("velocity counter for %s: %w", email, err)
	}

	return int(incr.Val()), nil
}
