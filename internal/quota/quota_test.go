package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedger_IncrementWithinLimit(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	total, err := l.IncrementBy(ctx, "key-1", 1, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	total, err = l.IncrementBy(ctx, "key-1", 3, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
}

func TestMemoryLedger_RollbackOnExceed(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	_, err := l.IncrementBy(ctx, "key-1", 9, 10)
	require.NoError(t, err)

	// 9 + 3 > 10: rejected, counter must stay at 9.
	_, err = l.IncrementBy(ctx, "key-1", 3, 10)
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, int64(10), exceeded.Limit)
	assert.Equal(t, int64(3), exceeded.Requested)
	assert.Positive(t, exceeded.RetryAfter)

	// A 1-unit increment still fits, proving the 3 was rolled back.
	total, err := l.IncrementBy(ctx, "key-1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
}

func TestMemoryLedger_PeriodsAreIndependent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLedger().WithNow(func() time.Time { return now })

	total, err := l.IncrementBy(ctx, "key-1", 5, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	_, err = l.IncrementBy(ctx, "key-1", 1, 5)
	require.Error(t, err)

	// Next billing period starts fresh.
	now = time.Date(2026, 2, 1, 0, 0, 1, 0, time.UTC)
	total, err = l.IncrementBy(ctx, "key-1", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestMemoryLedger_PrincipalsAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	_, err := l.IncrementBy(ctx, "a", 5, 5)
	require.NoError(t, err)

	total, err := l.IncrementBy(ctx, "b", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestMemoryPublicLimiter_DailyWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	p := NewMemoryPublicLimiter(2).WithNow(func() time.Time { return now })

	require.NoError(t, p.Allow(ctx, "198.51.100.7"))
	require.NoError(t, p.Allow(ctx, "198.51.100.7"))

	err := p.Allow(ctx, "198.51.100.7")
	var daily *DailyLimitError
	require.ErrorAs(t, err, &daily)
	assert.Equal(t, int64(2), daily.Limit)

	// Another address is unaffected.
	require.NoError(t, p.Allow(ctx, "198.51.100.8"))

	// Next UTC day resets the window.
	now = now.Add(2 * time.Hour)
	require.NoError(t, p.Allow(ctx, "198.51.100.7"))
}

func TestExceededError_Message(t *testing.T) {
	err := error(&ExceededError{Limit: 100, Requested: 2})
	assert.Contains(t, err.Error(), "100")
	assert.False(t, errors.Is(err, context.Canceled))
}
