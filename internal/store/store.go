// Package store persists API principals and usage accounting. Two drivers
// share the Store interface: Postgres for deployments and SQLite for
// single-binary and local runs.
package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Principal is one API key's identity as authorization sees it.
type Principal struct {
	ID           string
	Name         string
	Plan         string
	MonthlyLimit int64
	Active       bool
}

// CreatedKey is the outcome of minting a key. RawKey is shown once and only
// its hash is stored.
type CreatedKey struct {
	ID           string
	RawKey       string
	Prefix       string
	Name         string
	Plan         string
	MonthlyLimit int64
}

// UsageRow is one recorded request.
type UsageRow struct {
	PrincipalID string
	Endpoint    string
	EIN         string
	Status      int
	ElapsedMS   int64
	CacheHit    bool
}

// Store defines the persistence interface for principals and usage.
type Store interface {
	// GetPrincipalByKeyHash resolves an API key hash. Returns (nil, nil)
	// when no key matches.
	GetPrincipalByKeyHash(ctx context.Context, keyHash string) (*Principal, error)

	// TouchLastUsed stamps the key's last use. Best-effort.
	TouchLastUsed(ctx context.Context, principalID string)

	// RecordUsage appends one usage row. Best-effort.
	RecordUsage(ctx context.Context, row UsageRow)

	// CreateAPIKey mints a key for the given plan and stores its hash.
	CreateAPIKey(ctx context.Context, name, plan string, monthlyLimit int64) (*CreatedKey, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const (
	keyPrefix    = "npv_"
	keySecretLen = 24 // random bytes; doubles as hex
	prefixChars  = 8
)

// newRawKey mints the cleartext API key.
func newRawKey() (string, error) {
	buf := make([]byte, keySecretLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return keyPrefix + hex.EncodeToString(buf), nil
}

// HashKey returns the stored form of an API key.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

func nowUTC() time.Time { return time.Now().UTC() }
