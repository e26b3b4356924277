package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/nonprofit-verify/internal/model"
)

func TestMemoryStore_MissVsNegative(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	// Plain miss: no entry at all.
	e, err := s.Get(ctx, "verify:530196605")
	require.NoError(t, err)
	assert.Nil(t, e)

	// Confirmed negative: entry exists and says not-found.
	require.NoError(t, s.SetNotFound(ctx, "verify:530196605", time.Hour))
	e, err = s.Get(ctx, "verify:530196605")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.NotFound)
	assert.Nil(t, e.Payload)
}

func TestMemoryStore_PositiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	name := "Example Org"
	rec := model.OrganizationRecord{
		EIN:       "53-0196605",
		LegalName: &name,
		Status:    model.StatusActive,
		Personnel: []model.Officer{{Name: "Jane Doe"}},
	}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, VerifyKey("530196605"), raw, time.Hour))

	e, err := s.Get(ctx, VerifyKey("530196605"))
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.False(t, e.NotFound)

	var got model.OrganizationRecord
	require.NoError(t, json.Unmarshal(e.Payload, &got))
	assert.Equal(t, rec, got)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemory().WithNow(func() time.Time { return now })

	require.NoError(t, s.Set(ctx, "k", []byte(`{"a":1}`), time.Minute))

	e, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.NotNil(t, e)

	now = now.Add(2 * time.Minute)
	e, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, e, "expired entry must behave like a plain miss")
}

func TestDecodeEntry_SentinelShape(t *testing.T) {
	e := decodeEntry([]byte(`{"_not_found":true}`))
	assert.True(t, e.NotFound)

	e = decodeEntry([]byte(`{"ein":"53-0196605"}`))
	assert.False(t, e.NotFound)
	assert.NotNil(t, e.Payload)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "verify:530196605", VerifyKey("530196605"))
	assert.Equal(t, "990filing:530196605", FilingKey("530196605"))
	assert.Equal(t, "state:CA:530196605", StateKey("CA", "530196605"))
}
