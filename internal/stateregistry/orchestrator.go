package stateregistry

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/nonprofit-verify/internal/cache"
	"github.com/sells-group/nonprofit-verify/internal/model"
	"github.com/sells-group/nonprofit-verify/internal/resilience"
)

// Orchestrator fans a lookup out to every registered scraper. Each
// jurisdiction caches independently and fails independently: a scraper error
// is logged, trips that jurisdiction's breaker, and drops the jurisdiction
// from the result without caching anything for it.
type Orchestrator struct {
	scrapers []Scraper
	cache    cache.Store
	breakers map[string]*resilience.Breaker
}

// NewOrchestrator builds an orchestrator over the given scrapers.
func NewOrchestrator(c cache.Store, scrapers ...Scraper) *Orchestrator {
	breakers := make(map[string]*resilience.Breaker, len(scrapers))
	for _, s := range scrapers {
		breakers[s.Jurisdiction()] = resilience.NewBreaker("stateregistry:"+s.Jurisdiction(), 0, 0)
	}
	return &Orchestrator{scrapers: scrapers, cache: c, breakers: breakers}
}

// CheckAll looks the EIN up in every jurisdiction concurrently and returns
// the registrations found, sorted by state code. Jurisdictions where the
// organization is absent, or whose registry failed, are simply omitted.
func (o *Orchestrator) CheckAll(ctx context.Context, einDigits string) []model.StateRegistration {
	var (
		mu      sync.Mutex
		results []model.StateRegistration
	)

	g, gCtx := errgroup.WithContext(ctx)
	for _, s := range o.scrapers {
		g.Go(func() error {
			reg := o.checkOne(gCtx, s, einDigits)
			if reg != nil {
				mu.Lock()
				results = append(results, *reg)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].State < results[j].State })
	return results
}

func (o *Orchestrator) checkOne(ctx context.Context, s Scraper, einDigits string) *model.StateRegistration {
	key := cache.StateKey(s.Jurisdiction(), einDigits)

	entry, err := o.cache.Get(ctx, key)
	if err != nil {
		zap.L().Warn("state registry cache read failed",
			zap.String("state", s.Jurisdiction()),
			zap.Error(err),
		)
	}
	if entry != nil {
		if entry.NotFound {
			return nil
		}
		var reg model.StateRegistration
		if err := json.Unmarshal(entry.Payload, &reg); err == nil {
			return &reg
		}
		zap.L().Warn("state registry cache entry corrupt, refetching",
			zap.String("state", s.Jurisdiction()),
		)
	}

	breaker := o.breakers[s.Jurisdiction()]
	if !breaker.Allow() {
		zap.L().Warn("state registry circuit open, skipping",
			zap.String("state", s.Jurisdiction()),
		)
		return nil
	}

	reg, err := s.Check(ctx, einDigits)
	breaker.Record(err)
	if err != nil {
		zap.L().Warn("state registry check failed",
			zap.String("state", s.Jurisdiction()),
			zap.String("ein", einDigits),
			zap.Error(err),
		)
		return nil
	}

	if reg == nil {
		if err := o.cache.SetNotFound(ctx, key, s.CacheTTL()); err != nil {
			zap.L().Warn("state registry cache write failed", zap.Error(err))
		}
		return nil
	}

	if payload, err := json.Marshal(reg); err == nil {
		if err := o.cache.Set(ctx, key, payload, s.CacheTTL()); err != nil {
			zap.L().Warn("state registry cache write failed", zap.Error(err))
		}
	}
	return reg
}
