package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-verify/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS api_keys (
	id            TEXT PRIMARY KEY,
	key_hash      TEXT NOT NULL UNIQUE,
	key_prefix    TEXT NOT NULL,
	name          TEXT NOT NULL,
	plan          TEXT NOT NULL DEFAULT 'free',
	monthly_limit BIGINT NOT NULL DEFAULT 100,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_used_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS api_usage (
	id               TEXT PRIMARY KEY,
	api_key_id       TEXT NOT NULL REFERENCES api_keys(id),
	endpoint         TEXT NOT NULL,
	ein              TEXT NOT NULL,
	response_status  INTEGER NOT NULL,
	response_time_ms BIGINT NOT NULL,
	cache_hit        BOOLEAN NOT NULL DEFAULT FALSE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_api_keys_key_hash ON api_keys(key_hash);
CREATE INDEX IF NOT EXISTS idx_api_usage_key_id ON api_usage(api_key_id);
CREATE INDEX IF NOT EXISTS idx_api_usage_created_at ON api_usage(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetPrincipalByKeyHash(ctx context.Context, keyHash string) (*Principal, error) {
	var p Principal
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, plan, monthly_limit, is_active FROM api_keys WHERE key_hash = $1`,
		keyHash,
	).Scan(&p.ID, &p.Name, &p.Plan, &p.MonthlyLimit, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get principal")
	}
	return &p, nil
}

func (s *PostgresStore) TouchLastUsed(ctx context.Context, principalID string) {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = now() WHERE id = $1`,
		principalID,
	)
	if err != nil {
		zap.L().Debug("touch last_used_at failed", zap.String("key_id", principalID), zap.Error(err))
	}
}

func (s *PostgresStore) RecordUsage(ctx context.Context, row UsageRow) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_usage (id, api_key_id, endpoint, ein, response_status, response_time_ms, cache_hit)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), row.PrincipalID, row.Endpoint, row.EIN, row.Status, row.ElapsedMS, row.CacheHit,
	)
	if err != nil {
		zap.L().Debug("record usage failed", zap.String("key_id", row.PrincipalID), zap.Error(err))
	}
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, name, plan string, monthlyLimit int64) (*CreatedKey, error) {
	rawKey, err := newRawKey()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: generate key")
	}
	id := uuid.New().String()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, key_hash, key_prefix, name, plan, monthly_limit, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, HashKey(rawKey), rawKey[:prefixChars], name, plan, monthlyLimit, nowUTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert api key")
	}

	return &CreatedKey{
		ID:           id,
		RawKey:       rawKey,
		Prefix:       rawKey[:prefixChars],
		Name:         name,
		Plan:         plan,
		MonthlyLimit: monthlyLimit,
	}, nil
}
