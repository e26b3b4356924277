// Package verify is the entrypoint for EIN lookups. It validates
// identifiers, charges quota, consults the aggregate cache, and drives the
// enrichment pipeline for misses. Batch requests validate and dedupe before
// any side effect so a rejected batch costs nothing.
package verify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/nonprofit-verify/internal/cache"
	"github.com/sells-group/nonprofit-verify/internal/model"
	"github.com/sells-group/nonprofit-verify/internal/quota"
)

// Default TTLs for the aggregated record cache. Negatives expire faster so a
// newly registered organization shows up within a day.
const (
	DefaultPositiveTTL = 7 * 24 * time.Hour
	DefaultNegativeTTL = 24 * time.Hour
)

// Principal is the quota identity charged for a lookup.
type Principal struct {
	ID           string
	MonthlyLimit int64
}

// Aggregator builds a fresh record from all sources. A nil record with nil
// error means the organization does not exist.
type Aggregator interface {
	Aggregate(ctx context.Context, ein string) (*model.OrganizationRecord, error)
}

// UsageRecord is one request's worth of usage accounting.
type UsageRecord struct {
	PrincipalID string
	Endpoint    string
	EIN         string
	Status      int
	ElapsedMS   int64
	CacheHit    bool
}

// UsageRecorder persists usage rows. Implementations are best-effort and
// must never fail a lookup.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, rec UsageRecord)
}

// Service coordinates validation, quota, caching, and enrichment.
type Service struct {
	aggregator  Aggregator
	cache       cache.Store
	ledger      quota.Ledger
	usage       UsageRecorder
	positiveTTL time.Duration
	negativeTTL time.Duration
	now         func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithTTLs overrides the cache TTLs.
func WithTTLs(positive, negative time.Duration) Option {
	return func(s *Service) {
		s.positiveTTL = positive
		s.negativeTTL = negative
	}
}

// WithUsageRecorder attaches usage accounting.
func WithUsageRecorder(u UsageRecorder) Option {
	return func(s *Service) { s.usage = u }
}

// WithNow sets a fixed clock for testing.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the verification service.
func NewService(a Aggregator, c cache.Store, l quota.Ledger, opts ...Option) *Service {
	s := &Service{
		aggregator:  a,
		cache:       c,
		ledger:      l,
		positiveTTL: DefaultPositiveTTL,
		negativeTTL: DefaultNegativeTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify looks up a single EIN for a principal. The quota charge lands
// before the cache check, so cache hits cost the same as fresh lookups.
func (s *Service) Verify(ctx context.Context, p Principal, rawEIN string) (*model.OrganizationRecord, error) {
	start := s.now()

	ein, ok := model.NormalizeEIN(rawEIN)
	if !ok {
		return nil, &InvalidIdentifierError{Input: rawEIN}
	}

	if _, err := s.ledger.IncrementBy(ctx, p.ID, 1, p.MonthlyLimit); err != nil {
		return nil, err
	}

	record, cacheHit, err := s.lookup(ctx, ein)
	s.recordUsage(ctx, p, "verify", ein, record, start, cacheHit)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &NotFoundError{EIN: ein}
	}
	return record, nil
}

// Lookup resolves one EIN without charging a monthly quota, for the public
// endpoint and local CLI use. Callers gate it with their own rate limiting.
func (s *Service) Lookup(ctx context.Context, rawEIN string) (*model.OrganizationRecord, error) {
	ein, ok := model.NormalizeEIN(rawEIN)
	if !ok {
		return nil, &InvalidIdentifierError{Input: rawEIN}
	}
	record, _, err := s.lookup(ctx, ein)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &NotFoundError{EIN: ein}
	}
	return record, nil
}

// BatchItem is one batch entry's outcome, in input order.
type BatchItem struct {
	EIN     string                    `json:"ein"`
	Success bool                      `json:"success"`
	Data    *model.OrganizationRecord `json:"data,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

// BatchResult is the whole batch's outcome.
type BatchResult struct {
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Results   []BatchItem `json:"results"`
}

// VerifyBatch looks up many EINs at once. The batch is validated and
// deduplicated up front; quota is charged once per distinct EIN. After that
// point each EIN succeeds or fails independently.
func (s *Service) VerifyBatch(ctx context.Context, p Principal, rawEINs []string) (*BatchResult, error) {
	start := s.now()

	if len(rawEINs) > MaxBatchSize {
		return nil, &BatchTooLargeError{Size: len(rawEINs)}
	}

	// Validate everything before any side effect.
	normalized := make([]string, len(rawEINs))
	for i, raw := range rawEINs {
		ein, ok := model.NormalizeEIN(raw)
		if !ok {
			return nil, &InvalidIdentifierError{Input: raw}
		}
		normalized[i] = ein
	}

	// Two spellings of the same EIN are one lookup and one quota unit.
	distinct := make([]string, 0, len(normalized))
	seen := make(map[string]bool, len(normalized))
	for _, ein := range normalized {
		digits := model.EINDigits(ein)
		if !seen[digits] {
			seen[digits] = true
			distinct = append(distinct, ein)
		}
	}

	if _, err := s.ledger.IncrementBy(ctx, p.ID, int64(len(distinct)), p.MonthlyLimit); err != nil {
		return nil, err
	}

	type outcome struct {
		record   *model.OrganizationRecord
		cacheHit bool
		err      error
	}
	var mu sync.Mutex
	outcomes := make(map[string]outcome, len(distinct))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(10)
	for _, ein := range distinct {
		g.Go(func() error {
			record, cacheHit, err := s.lookup(gCtx, ein)
			mu.Lock()
			outcomes[model.EINDigits(ein)] = outcome{record: record, cacheHit: cacheHit, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result := &BatchResult{Total: len(rawEINs)}
	for _, ein := range normalized {
		o := outcomes[model.EINDigits(ein)]
		item := BatchItem{EIN: ein}
		switch {
		case o.err != nil:
			item.Error = o.err.Error()
		case o.record == nil:
			item.Error = (&NotFoundError{EIN: ein}).Error()
		default:
			item.Success = true
			item.Data = o.record
		}
		if item.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
		result.Results = append(result.Results, item)
	}

	for _, ein := range distinct {
		o := outcomes[model.EINDigits(ein)]
		s.recordUsage(ctx, p, "batch", ein, o.record, start, o.cacheHit)
	}

	return result, nil
}

// lookup resolves one normalized EIN through the cache and, on a miss, the
// aggregation pipeline. Returns a nil record for confirmed absence.
func (s *Service) lookup(ctx context.Context, ein string) (*model.OrganizationRecord, bool, error) {
	key := cache.VerifyKey(model.EINDigits(ein))

	entry, err := s.cache.Get(ctx, key)
	if err != nil {
		zap.L().Warn("verify cache read failed", zap.String("ein", ein), zap.Error(err))
	}
	if entry != nil {
		if entry.NotFound {
			return nil, true, nil
		}
		var record model.OrganizationRecord
		if err := json.Unmarshal(entry.Payload, &record); err == nil {
			return &record, true, nil
		}
		zap.L().Warn("verify cache entry corrupt, refetching", zap.String("ein", ein))
	}

	record, err := s.aggregator.Aggregate(ctx, ein)
	if err != nil {
		return nil, false, err
	}

	if record == nil {
		if err := s.cache.SetNotFound(ctx, key, s.negativeTTL); err != nil {
			zap.L().Warn("verify cache write failed", zap.Error(err))
		}
		return nil, false, nil
	}

	if payload, err := json.Marshal(record); err == nil {
		if err := s.cache.Set(ctx, key, payload, s.positiveTTL); err != nil {
			zap.L().Warn("verify cache write failed", zap.Error(err))
		}
	}
	return record, false, nil
}

func (s *Service) recordUsage(ctx context.Context, p Principal, endpoint, ein string, record *model.OrganizationRecord, start time.Time, cacheHit bool) {
	if s.usage == nil {
		return
	}
	status := 200
	if record == nil {
		status = 404
	}
	s.usage.RecordUsage(ctx, UsageRecord{
		PrincipalID: p.ID,
		Endpoint:    endpoint,
		EIN:         ein,
		Status:      status,
		ElapsedMS:   s.now().Sub(start).Milliseconds(),
		CacheHit:    cacheHit,
	})
}
