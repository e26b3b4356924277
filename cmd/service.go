package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-verify/internal/cache"
	"github.com/sells-group/nonprofit-verify/internal/enrich"
	"github.com/sells-group/nonprofit-verify/internal/fetcher"
	"github.com/sells-group/nonprofit-verify/internal/filing"
	"github.com/sells-group/nonprofit-verify/internal/platform/redisclient"
	"github.com/sells-group/nonprofit-verify/internal/quota"
	"github.com/sells-group/nonprofit-verify/internal/stateregistry"
	"github.com/sells-group/nonprofit-verify/internal/store"
	"github.com/sells-group/nonprofit-verify/internal/verify"
	"github.com/sells-group/nonprofit-verify/pkg/propublica"
)

// env holds the wired service graph for one command invocation.
type env struct {
	Verify *verify.Service
	Ledger quota.Ledger
	Public quota.PublicLimiter
	Store  store.Store

	rdb *redis.Client
}

// initService wires the pipeline. Without a Redis URL the cache and quota
// run in-process; withStore controls whether the principal database opens.
func initService(ctx context.Context, withStore bool) (*env, error) {
	rdb, err := redisclient.New(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}

	var (
		cacheStore cache.Store
		ledger     quota.Ledger
		public     quota.PublicLimiter
	)
	if rdb != nil {
		cacheStore = cache.NewRedis(rdb)
		ledger = quota.NewRedisLedger(rdb)
		public = quota.NewRedisPublicLimiter(rdb, cfg.Quota.PublicDailyLimit)
	} else {
		zap.L().Info("redis not configured, using in-process cache and quota")
		cacheStore = cache.NewMemory()
		ledger = quota.NewMemoryLedger()
		public = quota.NewMemoryPublicLimiter(cfg.Quota.PublicDailyLimit)
	}

	f := fetcher.New(fetcher.Options{UserAgent: cfg.Sources.UserAgent})

	enricher := enrich.New(
		propublica.NewClient(propublica.WithBaseURL(cfg.Sources.ProPublicaBaseURL)),
		filing.NewService(f, cacheStore, filing.WithBaseURL(cfg.Sources.IRSBulkBaseURL)),
		stateregistry.NewOrchestrator(cacheStore, stateregistry.DefaultScrapers(f)...),
	)

	e := &env{Ledger: ledger, Public: public, rdb: rdb}

	opts := []verify.Option{
		verify.WithTTLs(
			time.Duration(cfg.Cache.TTLSeconds)*time.Second,
			time.Duration(cfg.Cache.NotFoundTTLSeconds)*time.Second,
		),
	}

	if withStore {
		st, err := openStore(ctx)
		if err != nil {
			return nil, err
		}
		e.Store = st
		opts = append(opts, verify.WithUsageRecorder(usageAdapter{st}))
	}

	e.Verify = verify.NewService(enricher, cacheStore, ledger, opts...)
	return e, nil
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	case "sqlite":
		st, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unknown store driver: %q (valid: postgres, sqlite)", cfg.Store.Driver)
	}
}

// usageAdapter feeds verify usage records into the store.
type usageAdapter struct {
	st store.Store
}

func (u usageAdapter) RecordUsage(ctx context.Context, rec verify.UsageRecord) {
	u.st.RecordUsage(ctx, store.UsageRow{
		PrincipalID: rec.PrincipalID,
		Endpoint:    rec.Endpoint,
		EIN:         rec.EIN,
		Status:      rec.Status,
		ElapsedMS:   rec.ElapsedMS,
		CacheHit:    rec.CacheHit,
	})
}

func (e *env) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
	if e.rdb != nil {
		_ = e.rdb.Close()
	}
}
