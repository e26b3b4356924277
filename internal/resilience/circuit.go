package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when a call is rejected without being attempted.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// Breaker is a per-dependency circuit breaker. After Threshold consecutive
// failures the circuit opens and calls fail fast until ResetTimeout elapses;
// the next call is then allowed through as a probe, and one success closes
// the circuit again. A dead registry site short-circuits to "no data"
// instead of burning its timeout on every lookup.
type Breaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration

	mu            sync.Mutex
	failures      int
	openedAt      time.Time
	open          bool
	probeInFlight bool
}

// NewBreaker creates a closed breaker. Zero values get defaults
// (threshold 5, reset 30s).
func NewBreaker(name string, threshold int, resetTimeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &Breaker{name: name, threshold: threshold, resetTimeout: resetTimeout}
}

// Allow reports whether a call may proceed. When the circuit is open and the
// reset timeout has elapsed, exactly one caller is admitted as a probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}
	if time.Since(b.openedAt) < b.resetTimeout {
		return false
	}
	if b.probeInFlight {
		return false
	}
	b.probeInFlight = true
	return true
}

// Record reports a call outcome to the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probeInFlight = false

	if err == nil {
		if b.open {
			zap.L().Info("circuit closed", zap.String("breaker", b.name))
		}
		b.open = false
		b.failures = 0
		return
	}

	b.failures++
	if !b.open && b.failures >= b.threshold {
		b.open = true
		b.openedAt = time.Now()
		zap.L().Warn("circuit opened",
			zap.String("breaker", b.name),
			zap.Int("consecutive_failures", b.failures),
		)
	} else if b.open {
		// Failed probe: stay open for another reset window.
		b.openedAt = time.Now()
	}
}
