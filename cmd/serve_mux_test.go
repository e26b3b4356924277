package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/nonprofit-verify/internal/cache"
	"github.com/sells-group/nonprofit-verify/internal/model"
	"github.com/sells-group/nonprofit-verify/internal/quota"
	"github.com/sells-group/nonprofit-verify/internal/store"
	"github.com/sells-group/nonprofit-verify/internal/verify"
)

const testRawKey = "npv_deadbeef"

type muxAggregator struct {
	mu      sync.Mutex
	records map[string]*model.OrganizationRecord
	asked   []string
}

// Aggregate is keyed by the dashed canonical form, which is what the
// verification service hands its aggregator.
func (a *muxAggregator) Aggregate(_ context.Context, ein string) (*model.OrganizationRecord, error) {
	a.mu.Lock()
	a.asked = append(a.asked, ein)
	a.mu.Unlock()
	return a.records[ein], nil
}

type muxStore struct {
	mu         sync.Mutex
	principals map[string]*store.Principal
	touched    []string
	usage      []store.UsageRow
}

func (s *muxStore) GetPrincipalByKeyHash(_ context.Context, keyHash string) (*store.Principal, error) {
	return s.principals[keyHash], nil
}

func (s *muxStore) TouchLastUsed(_ context.Context, principalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, principalID)
}

func (s *muxStore) RecordUsage(_ context.Context, row store.UsageRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, row)
}

func (s *muxStore) CreateAPIKey(context.Context, string, string, int64) (*store.CreatedKey, error) {
	return nil, nil
}

func (s *muxStore) Migrate(context.Context) error { return nil }
func (s *muxStore) Close() error                  { return nil }

func newTestMux(t *testing.T, monthlyLimit int64, publicLimit int64) (*http.ServeMux, *muxStore, *muxAggregator) {
	t.Helper()

	name := "AMERICAN NATIONAL RED CROSS"
	agg := &muxAggregator{records: map[string]*model.OrganizationRecord{
		"53-0196605": {
			EIN:                "53-0196605",
			LegalName:          &name,
			Status:             model.StatusActive,
			Personnel:          []model.Officer{},
			StateRegistrations: []model.StateRegistration{},
		},
	}}

	svc := verify.NewService(agg, cache.NewMemory(), quota.NewMemoryLedger())

	st := &muxStore{principals: map[string]*store.Principal{
		store.HashKey(testRawKey): {
			ID:           "key-1",
			Name:         "tester",
			Plan:         "free",
			MonthlyLimit: monthlyLimit,
			Active:       true,
		},
	}}

	return buildMux(svc, st, quota.NewMemoryPublicLimiter(publicLimit)), st, agg
}

func TestBuildMux_Health(t *testing.T) {
	mux, _, _ := newTestMux(t, 100, 20)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildMux_Verify_Found(t *testing.T) {
	mux, st, agg := newTestMux(t, 100, 20)

	req := httptest.NewRequest(http.MethodGet, "/v1/verify/530196605", nil)
	req.Header.Set("X-Api-Key", testRawKey)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var record model.OrganizationRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &record))
	assert.Equal(t, "53-0196605", record.EIN, "records carry the dashed canonical form")
	assert.Equal(t, model.StatusActive, record.Status)

	assert.Equal(t, []string{"53-0196605"}, agg.asked, "aggregation runs on the canonical EIN")
	assert.Equal(t, []string{"key-1"}, st.touched)
}

func TestBuildMux_Verify_MissingKey(t *testing.T) {
	mux, _, _ := newTestMux(t, 100, 20)

	req := httptest.NewRequest(http.MethodGet, "/v1/verify/53-0196605", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "missing API key")
}

func TestBuildMux_Verify_UnknownKey(t *testing.T) {
	mux, _, _ := newTestMux(t, 100, 20)

	req := httptest.NewRequest(http.MethodGet, "/v1/verify/53-0196605", nil)
	req.Header.Set("X-Api-Key", "npv_wrong")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid API key")
}

func TestBuildMux_Verify_DisabledKey(t *testing.T) {
	mux, st, _ := newTestMux(t, 100, 20)
	st.principals[store.HashKey(testRawKey)].Active = false

	req := httptest.NewRequest(http.MethodGet, "/v1/verify/53-0196605", nil)
	req.Header.Set("X-Api-Key", testRawKey)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, st.touched)
}

func TestBuildMux_Verify_InvalidEIN(t *testing.T) {
	mux, _, _ := newTestMux(t, 100, 20)

	req := httptest.NewRequest(http.MethodGet, "/v1/verify/not-an-ein", nil)
	req.Header.Set("X-Api-Key", testRawKey)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid EIN format")
}

func TestBuildMux_Verify_NotFound(t *testing.T) {
	mux, _, _ := newTestMux(t, 100, 20)

	req := httptest.NewRequest(http.MethodGet, "/v1/verify/99-9999999", nil)
	req.Header.Set("X-Api-Key", testRawKey)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "no nonprofit found")
}

func TestBuildMux_Verify_QuotaExceeded(t *testing.T) {
	mux, _, _ := newTestMux(t, 1, 20)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/verify/53-0196605", nil)
		req.Header.Set("X-Api-Key", testRawKey)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		if i == 0 {
			assert.Equal(t, http.StatusOK, rr.Code)
			continue
		}
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.Equal(t, "86400", rr.Header().Get("Retry-After"))
	}
}

func TestBuildMux_Batch(t *testing.T) {
	mux, _, _ := newTestMux(t, 100, 20)

	body, _ := json.Marshal(map[string][]string{
		"eins": {"53-0196605", "99-9999999"},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/verify/batch", bytes.NewReader(body))
	req.Header.Set("X-Api-Key", testRawKey)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var result verify.BatchResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
}

func TestBuildMux_Batch_InvalidBody(t *testing.T) {
	mux, _, _ := newTestMux(t, 100, 20)

	req := httptest.NewRequest(http.MethodPost, "/v1/verify/batch", strings.NewReader("not json"))
	req.Header.Set("X-Api-Key", testRawKey)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestBuildMux_Batch_EmptyEINs(t *testing.T) {
	mux, _, _ := newTestMux(t, 100, 20)

	req := httptest.NewRequest(http.MethodPost, "/v1/verify/batch", strings.NewReader(`{"eins":[]}`))
	req.Header.Set("X-Api-Key", testRawKey)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "eins is required")
}

func TestBuildMux_Batch_TooLarge(t *testing.T) {
	mux, _, _ := newTestMux(t, 100, 20)

	eins := make([]string, verify.MaxBatchSize+1)
	for i := range eins {
		eins[i] = "53-0196605"
	}
	body, _ := json.Marshal(map[string][]string{"eins": eins})

	req := httptest.NewRequest(http.MethodPost, "/v1/verify/batch", bytes.NewReader(body))
	req.Header.Set("X-Api-Key", testRawKey)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "exceeds maximum")
}

func TestBuildMux_Public_NoKeyNeeded(t *testing.T) {
	mux, _, _ := newTestMux(t, 100, 20)

	req := httptest.NewRequest(http.MethodGet, "/public/verify/53-0196605", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var record model.OrganizationRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &record))
	assert.Equal(t, "53-0196605", record.EIN)
}

func TestBuildMux_Public_DailyLimit(t *testing.T) {
	mux, _, _ := newTestMux(t, 100, 1)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/public/verify/53-0196605", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		if i == 0 {
			assert.Equal(t, http.StatusOK, rr.Code)
			continue
		}
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.Equal(t, "3600", rr.Header().Get("Retry-After"))
	}
}

func TestBuildMux_Public_LimitIsPerAddress(t *testing.T) {
	mux, _, _ := newTestMux(t, 100, 1)

	for _, addr := range []string{"203.0.113.7", "203.0.113.8"} {
		req := httptest.NewRequest(http.MethodGet, "/public/verify/53-0196605", nil)
		req.Header.Set("X-Forwarded-For", addr)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.0.2.4:51234"
	assert.Equal(t, "192.0.2.4", clientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}
