package filing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-verify/internal/cache"
	"github.com/sells-group/nonprofit-verify/internal/fetcher"
)

// Service finds and parses 990 e-files. All failures are absorbed: Get
// returns nil when no filing data is available for any reason.
type Service struct {
	fetcher  *fetcher.HTTPFetcher
	cache    cache.Store
	baseURL  string
	cacheTTL time.Duration
	now      func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithBaseURL overrides the IRS bulk data root (for testing).
func WithBaseURL(url string) Option {
	return func(s *Service) { s.baseURL = url }
}

// WithCacheTTL overrides the filing cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

// WithNow sets a fixed clock for testing the year window.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a filing service.
func NewService(f *fetcher.HTTPFetcher, c cache.Store, opts ...Option) *Service {
	s := &Service{
		fetcher:  f,
		cache:    c,
		baseURL:  DefaultBaseURL,
		cacheTTL: DefaultCacheTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// recentYears returns the index years to search, most recent first.
func (s *Service) recentYears() []int {
	current := s.now().Year()
	return []int{current, current - 1, current - 2}
}

// Get returns the parsed filing data for an EIN, or nil when none is
// available. Confirmed absence and successful parses are both cached for
// the full filing TTL.
func (s *Service) Get(ctx context.Context, einDigits string) *Data {
	key := cache.FilingKey(einDigits)

	if entry, err := s.cache.Get(ctx, key); err == nil && entry != nil {
		if entry.NotFound {
			return nil
		}
		var data Data
		if err := json.Unmarshal(entry.Payload, &data); err == nil {
			return &data
		}
		zap.L().Warn("filing cache entry unreadable, refetching", zap.String("ein", einDigits))
	} else if err != nil {
		zap.L().Warn("filing cache read failed", zap.String("ein", einDigits), zap.Error(err))
	}

	data := s.fetch(ctx, einDigits)
	if data == nil {
		if err := s.cache.SetNotFound(ctx, key, s.cacheTTL); err != nil {
			zap.L().Warn("filing cache write failed", zap.String("ein", einDigits), zap.Error(err))
		}
		return nil
	}

	if raw, err := json.Marshal(data); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
			zap.L().Warn("filing cache write failed", zap.String("ein", einDigits), zap.Error(err))
		}
	}
	return data
}

// fetch searches the year indexes and parses the matched e-file. The year
// loop stops at the first year with an index match.
func (s *Service) fetch(ctx context.Context, einDigits string) *Data {
	for _, year := range s.recentYears() {
		match := s.searchYearIndex(ctx, einDigits, year)
		if match == nil {
			continue
		}
		return s.fetchAndParse(ctx, match)
	}
	return nil
}

// fetchAndParse pulls the single matched member out of its archive and
// parses it. Returns nil on any failure.
func (s *Service) fetchAndParse(ctx context.Context, match *indexMatch) *Data {
	if match.ZipFilename == "" {
		return nil
	}

	zipURL := fmt.Sprintf("%s/%d/%s.zip", s.baseURL, match.Year, match.ZipFilename)
	z, err := fetcher.OpenRemoteZip(ctx, s.fetcher, zipURL)
	if err != nil {
		zap.L().Warn("filing archive open failed",
			zap.String("object_id", match.ObjectID),
			zap.String("url", zipURL),
			zap.Error(err),
		)
		return nil
	}

	// The member path layout has varied across publication years.
	candidates := []string{
		match.ZipFilename + "/" + match.ObjectID + "_public.xml",
		match.ObjectID + "_public.xml",
	}

	names := make(map[string]bool, len(z.Names()))
	for _, n := range z.Names() {
		names[n] = true
	}

	var raw []byte
	for _, candidate := range candidates {
		if !names[candidate] {
			continue
		}
		raw, err = z.Read(candidate)
		if err != nil {
			zap.L().Warn("filing member read failed",
				zap.String("member", candidate),
				zap.Error(err),
			)
			return nil
		}
		break
	}
	if raw == nil {
		zap.L().Warn("filing member not present in archive",
			zap.String("object_id", match.ObjectID),
			zap.String("url", zipURL),
		)
		return nil
	}

	data, err := parseReturn(raw)
	if err != nil {
		zap.L().Warn("filing parse failed",
			zap.String("object_id", match.ObjectID),
			zap.Error(err),
		)
		return nil
	}
	return data
}
