package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// StorageTable holds storage capability items.
const StorageTable = "bridge_storage"

const kvLogPrefix = "db:kv_store"

// DBTX is the subset of pgxpool.Pool used by KVStore.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// KVStore keeps storage capability items in Postgres as JSONB.
type KVStore struct {
	db  DBTX
	now func() time.Time
}

// NewKVStore creates a KVStore on db.
func NewKVStore(db DBTX) *KVStore {
	return &KVStore{db: db, now: time.Now}
}

// Get returns the live value for (biz, key).
func (s *KVStore) Get(ctx context.Context, biz, key string) (any, bool, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT value FROM bridge_storage WHERE biz = $1 AND key = $2 AND (expires_at IS NULL OR expires_at > $3)`,
		biz, key, s.now()).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s - failed to get %s/%s: %w", kvLogPrefix, biz, key, err)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, fmt.Errorf("%s - failed to decode %s/%s: %w", kvLogPrefix, biz, key, err)
	}
	return value, true, nil
}

// Set upserts value. A zero ttl stores it without expiry.
func (s *KVStore) Set(ctx context.Context, biz, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s - failed to encode %s/%s: %w", kvLogPrefix, biz, key, err)
	}
	var expiresAt *time.Time
	if ttl > 0 {
		at := s.now().Add(ttl)
		expiresAt = &at
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO bridge_storage (biz, key, value, expires_at, updated_at)
		 VALUES ($1, $2, $3::jsonb, $4, now())
		 ON CONFLICT (biz, key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = now()`,
		biz, key, string(data), expiresAt)
	if err != nil {
		return fmt.Errorf("%s - failed to set %s/%s: %w", kvLogPrefix, biz, key, err)
	}
	return nil
}

// Remove deletes (biz, key) and reports whether a row existed.
func (s *KVStore) Remove(ctx context.Context, biz, key string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM bridge_storage WHERE biz = $1 AND key = $2`, biz, key)
	if err != nil {
		return false, fmt.Errorf("%s - failed to remove %s/%s: %w", kvLogPrefix, biz, key, err)
	}
	return tag.RowsAffected() > 0, nil
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (s *KVStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM bridge_storage WHERE expires_at IS NOT NULL AND expires_at <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("%s - failed to purge expired items: %w", kvLogPrefix, err)
	}
	return tag.RowsAffected(), nil
}
