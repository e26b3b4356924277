package quota

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// PublicLimiter enforces the per-client-address daily limit for
// unauthenticated lookups. It is independent of the monthly Ledger and,
// unlike the Ledger, does not roll back on rejection: over-limit hits
// still advance the counter.
type PublicLimiter interface {
	Allow(ctx context.Context, addr string) error
}

// RedisPublicLimiter implements PublicLimiter on Redis INCR.
type RedisPublicLimiter struct {
	rdb   *redis.Client
	limit int64
	now   func() time.Time
}

// NewRedisPublicLimiter creates a daily per-address limiter.
func NewRedisPublicLimiter(rdb *redis.Client, limit int64) *RedisPublicLimiter {
	return &RedisPublicLimiter{rdb: rdb, limit: limit, now: time.Now}
}

func (p *RedisPublicLimiter) Allow(ctx context.Context, addr string) error {
	key := dayKey(addr, p.now())

	count, err := p.rdb.Incr(ctx, key).Result()
	if err != nil {
		return eris.Wrapf(err, "quota: public incr %s", key)
	}
	if count == 1 {
		if err := p.rdb.Expire(ctx, key, publicCounterGrace).Err(); err != nil {
			return eris.Wrapf(err, "quota: public expire %s", key)
		}
	}

	if count > p.limit {
		return &DailyLimitError{Limit: p.limit, RetryAfter: time.Hour}
	}
	return nil
}

// MemoryPublicLimiter is a process-local PublicLimiter.
type MemoryPublicLimiter struct {
	mu     sync.Mutex
	counts map[string]*memCounter
	limit  int64
	now    func() time.Time
}

// NewMemoryPublicLimiter creates an in-memory daily limiter.
func NewMemoryPublicLimiter(limit int64) *MemoryPublicLimiter {
	return &MemoryPublicLimiter{counts: make(map[string]*memCounter), limit: limit, now: time.Now}
}

// WithNow sets a fixed clock for testing.
func (p *MemoryPublicLimiter) WithNow(now func() time.Time) *MemoryPublicLimiter {
	p.now = now
	return p
}

func (p *MemoryPublicLimiter) Allow(_ context.Context, addr string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	key := dayKey(addr, now)
	c, ok := p.counts[key]
	if !ok || now.After(c.expiresAt) {
		c = &memCounter{expiresAt: now.Add(publicCounterGrace)}
		p.counts[key] = c
	}

	c.total++
	if c.total > p.limit {
		return &DailyLimitError{Limit: p.limit, RetryAfter: time.Hour}
	}
	return nil
}
