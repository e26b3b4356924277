package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			_ = sdb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sdb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS api_keys (
	id            TEXT PRIMARY KEY,
	key_hash      TEXT NOT NULL UNIQUE,
	key_prefix    TEXT NOT NULL,
	name          TEXT NOT NULL,
	plan          TEXT NOT NULL DEFAULT 'free',
	monthly_limit INTEGER NOT NULL DEFAULT 100,
	is_active     INTEGER NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	last_used_at  DATETIME
);

CREATE TABLE IF NOT EXISTS api_usage (
	id               TEXT PRIMARY KEY,
	api_key_id       TEXT NOT NULL REFERENCES api_keys(id),
	endpoint         TEXT NOT NULL,
	ein              TEXT NOT NULL,
	response_status  INTEGER NOT NULL,
	response_time_ms INTEGER NOT NULL,
	cache_hit        INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_api_keys_key_hash ON api_keys(key_hash);
CREATE INDEX IF NOT EXISTS idx_api_usage_key_id ON api_usage(api_key_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetPrincipalByKeyHash(ctx context.Context, keyHash string) (*Principal, error) {
	var p Principal
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, plan, monthly_limit, is_active FROM api_keys WHERE key_hash = ?`,
		keyHash,
	).Scan(&p.ID, &p.Name, &p.Plan, &p.MonthlyLimit, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get principal")
	}
	return &p, nil
}

func (s *SQLiteStore) TouchLastUsed(ctx context.Context, principalID string) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = datetime('now') WHERE id = ?`,
		principalID,
	)
	if err != nil {
		zap.L().Debug("touch last_used_at failed", zap.String("key_id", principalID), zap.Error(err))
	}
}

func (s *SQLiteStore) RecordUsage(ctx context.Context, row UsageRow) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_usage (id, api_key_id, endpoint, ein, response_status, response_time_ms, cache_hit)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), row.PrincipalID, row.Endpoint, row.EIN, row.Status, row.ElapsedMS, row.CacheHit,
	)
	if err != nil {
		zap.L().Debug("record usage failed", zap.String("key_id", row.PrincipalID), zap.Error(err))
	}
}

func (s *SQLiteStore) CreateAPIKey(ctx context.Context, name, plan string, monthlyLimit int64) (*CreatedKey, error) {
	rawKey, err := newRawKey()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: generate key")
	}
	id := uuid.New().String()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, key_hash, key_prefix, name, plan, monthly_limit)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, HashKey(rawKey), rawKey[:prefixChars], name, plan, monthlyLimit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert api key")
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
