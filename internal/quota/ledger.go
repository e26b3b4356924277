package quota

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Ledger tracks per-principal usage within the current billing period.
// IncrementBy debits n units against limit and returns the new total, or an
// *ExceededError after rolling the increment back. The batch path calls it
// once with n equal to the number of distinct identifiers.
type Ledger interface {
	IncrementBy(ctx context.Context, principalID string, n, limit int64) (int64, error)
}

// RedisLedger implements Ledger on Redis INCRBY/DECRBY.
type RedisLedger struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisLedger creates a Ledger backed by the given Redis client.
func NewRedisLedger(rdb *redis.Client) *RedisLedger {
	return &RedisLedger{rdb: rdb, now: time.Now}
}

// WithNow sets a fixed clock for testing period boundaries.
func (l *RedisLedger) WithNow(now func() time.Time) *RedisLedger {
	l.now = now
	return l
}

func (l *RedisLedger) IncrementBy(ctx context.Context, principalID string, n, limit int64) (int64, error) {
	key := monthKey(principalID, l.now())

	total, err := l.rdb.IncrBy(ctx, key, n).Result()
	if err != nil {
		return 0, eris.Wrapf(err, "quota: incrby %s", key)
	}
	if total == n {
		// First increment this period: arm the self-cleaning expiry.
		if err := l.rdb.Expire(ctx, key, counterGrace).Err(); err != nil {
			return 0, eris.Wrapf(err, "quota: expire %s", key)
		}
	}

	if total > limit {
		if err := l.rdb.DecrBy(ctx, key, n).Err(); err != nil {
			return 0, eris.Wrapf(err, "quota: rollback %s", key)
		}
		return 0, &ExceededError{Limit: limit, Requested: n, RetryAfter: 24 * time.Hour}
	}

	return total, nil
}

// MemoryLedger is a process-local Ledger for tests and Redis-less runs.
type MemoryLedger struct {
	mu     sync.Mutex
	counts map[string]*memCounter
	now    func() time.Time
}

type memCounter struct {
	total     int64
	expiresAt time.Time
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{counts: make(map[string]*memCounter), now: time.Now}
}

// WithNow sets a fixed clock for testing.
func (l *MemoryLedger) WithNow(now func() time.Time) *MemoryLedger {
	l.now = now
	return l
}

func (l *MemoryLedger) IncrementBy(_ context.Context, principalID string, n, limit int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := monthKey(principalID, now)
	c, ok := l.counts[key]
	if !ok || now.After(c.expiresAt) {
		c = &memCounter{expiresAt: now.Add(counterGrace)}
		l.counts[key] = c
	}

	c.total += n
	if c.total > limit {
		c.total -= n
		return 0, &ExceededError{Limit: limit, Requested: n, RetryAfter: 24 * time.Hour}
	}
	return c.total, nil
}
