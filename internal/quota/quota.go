// Package quota meters authenticated usage against a monthly limit and
// public usage against a per-address daily limit. Counters are scoped to a
// billing period and expire a little after the period ends, so stale
// counters self-clean without a reset job. Increments are atomic relative to
// concurrent callers; a rejected increment is rolled back so the counter
// reflects only accepted usage.
package quota

import (
	"fmt"
	"time"
)

// counterGrace is how much longer than its period a counter lives. Slightly
// over one month so a counter created on the 1st survives the whole period.
const counterGrace = 35 * 24 * time.Hour

// publicCounterGrace covers a daily counter plus one day of slack.
const publicCounterGrace = 48 * time.Hour

// ExceededError reports a rejected quota increment. The increment has
// already been rolled back, so retrying after RetryAfter is safe.
type ExceededError struct {
	Limit      int64
	Requested  int64
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("monthly quota exceeded (limit %d)", e.Limit)
}

// DailyLimitError reports a rejected public lookup.
type DailyLimitError struct {
	Limit      int64
	RetryAfter time.Duration
}

func (e *DailyLimitError) Error() string {
	return fmt.Sprintf("daily lookup limit exceeded (%d/day)", e.Limit)
}

// monthKey scopes a principal's counter to the UTC billing period.
func monthKey(principalID string, now time.Time) string {
	return "ratelimit:" + principalID + ":" + now.UTC().Format("2006-01")
}

// dayKey scopes a public client address counter to the UTC day.
func dayKey(addr string, now time.Time) string {
	return "public_ratelimit:" + addr + ":" + now.UTC().Format("2006-01-02")
}
