package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_CreateAndLookupKey(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	key, err := st.CreateAPIKey(ctx, "acme", "free", 100)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key.RawKey, keyPrefix))

	p, err := st.GetPrincipalByKeyHash(ctx, HashKey(key.RawKey))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, key.ID, p.ID)
	assert.Equal(t, "acme", p.Name)
	assert.Equal(t, "free", p.Plan)
	assert.Equal(t, int64(100), p.MonthlyLimit)
	assert.True(t, p.Active)
}

func TestSQLite_UnknownKeyHash(t *testing.T) {
	st := newTestSQLiteStore(t)

	p, err := st.GetPrincipalByKeyHash(context.Background(), HashKey("npv_does_not_exist"))
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSQLite_KeysAreDistinct(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateAPIKey(ctx, "a", "free", 100)
	require.NoError(t, err)
	b, err := st.CreateAPIKey(ctx, "b", "free", 100)
	require.NoError(t, err)
	assert.NotEqual(t, a.RawKey, b.RawKey)
}

func TestSQLite_TouchAndUsageAreBestEffort(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	key, err := st.CreateAPIKey(ctx, "acme", "free", 100)
	require.NoError(t, err)

	st.TouchLastUsed(ctx, key.ID)
	st.RecordUsage(ctx, UsageRow{
		PrincipalID: key.ID,
		Endpoint:    "verify",
		EIN:         "53-0196605",
		Status:      200,
		ElapsedMS:   12,
		CacheHit:    true,
	})

	var count int
	require.NoError(t, st.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM api_usage WHERE api_key_id = ?`, key.ID).Scan(&count))
	assert.Equal(t, 1, count)

	// Unknown principal id must not panic.
	st.TouchLastUsed(ctx, "missing")
	st.RecordUsage(ctx, UsageRow{PrincipalID: "missing", Endpoint: "verify", EIN: "x"})
}

func TestHashKey_Deterministic(t *testing.T) {
	assert.Equal(t, HashKey("npv_abc"), HashKey("npv_abc"))
	assert.NotEqual(t, HashKey("npv_abc"), HashKey("npv_abd"))
	assert.Len(t, HashKey("npv_abc"), 64)
}
