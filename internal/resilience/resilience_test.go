package resilience

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(eris.New("parse error")))
	assert.False(t, IsTransient(context.Canceled))

	assert.True(t, IsTransient(NewTransientError(eris.New("http 503"), 503)))
	assert.True(t, IsTransient(eris.Wrap(NewTransientError(eris.New("http 429"), 429), "fetch")))

	var ne net.Error = timeoutErr{}
	assert.True(t, IsTransient(ne))
	assert.True(t, IsTransient(eris.New("read tcp: connection reset by peer")))
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("ca", 3, time.Minute)
	boom := eris.New("boom")

	for range 3 {
		assert.True(t, b.Allow())
		b.Record(boom)
	}

	assert.False(t, b.Allow(), "circuit must be open after 3 consecutive failures")
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := NewBreaker("ny", 3, time.Minute)
	boom := eris.New("boom")

	b.Record(boom)
	b.Record(boom)
	b.Record(nil)
	b.Record(boom)
	b.Record(boom)

	assert.True(t, b.Allow(), "non-consecutive failures must not open the circuit")
}

func TestBreaker_ProbeAfterReset(t *testing.T) {
	b := NewBreaker("tx", 1, 10*time.Millisecond)
	b.Record(eris.New("boom"))
	assert.False(t, b.Allow())

	time.Sleep(20 * time.Millisecond)

	// One probe admitted, concurrent calls still rejected.
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())

	b.Record(nil)
	assert.True(t, b.Allow(), "successful probe closes the circuit")
}
