// Package cache provides the TTL-bound key/value store that absorbs repeated
// lookups and source unavailability. Entries are opaque JSON snapshots; a
// reserved sentinel shape marks a confirmed negative result, which carries a
// shorter TTL than a positive entry and a different re-fetch policy than a
// plain miss.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is a stored cache value. NotFound marks the confirmed-negative
// sentinel; Payload is nil in that case.
type Entry struct {
	Payload  []byte
	NotFound bool
}

// Store is the cache contract. Get returns (nil, nil) when the key is absent,
// which callers must treat as "fetch now", distinct from an Entry with
// NotFound set, which means "confirmed absent until TTL expiry".
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	SetNotFound(ctx context.Context, key string, ttl time.Duration) error
}

// notFoundSentinel is the wire shape of a confirmed-negative entry. It
// matches the original deployment's cache contents so entries written before
// a rollout stay readable.
type notFoundSentinel struct {
	NotFound bool `json:"_not_found"`
}

var sentinelBytes = mustMarshalSentinel()

func mustMarshalSentinel() []byte {
	b, err := json.Marshal(notFoundSentinel{NotFound: true})
	if err != nil {
		panic(err)
	}
	return b
}

// decodeEntry classifies raw cache bytes as a sentinel or a payload.
func decodeEntry(raw []byte) *Entry {
	var s notFoundSentinel
	if err := json.Unmarshal(raw, &s); err == nil && s.NotFound {
		return &Entry{NotFound: true}
	}
	return &Entry{Payload: raw}
}

// Keys used across the pipeline. Each source owns its own entry so one
// source's staleness or outage never invalidates another's cached success.
const (
	verifyKeyPrefix = "verify:"
	filingKeyPrefix = "990filing:"
	stateKeyPrefix  = "state:"
)

// VerifyKey returns the cache key for an aggregated record, keyed by digits.
func VerifyKey(einDigits string) string { return verifyKeyPrefix + einDigits }

// FilingKey returns the cache key for parsed 990 e-file data.
func FilingKey(einDigits string) string { return filingKeyPrefix + einDigits }

// StateKey returns the per-jurisdiction registry cache key.
func StateKey(jurisdiction, einDigits string) string {
	return stateKeyPrefix + jurisdiction + ":" + einDigits
}
