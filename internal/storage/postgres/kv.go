package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/apparel-storefront/internal/storage/kv"
)

const (
	getKVSQL = `SELECT value FROM kv_entries
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`

	setKVSQL = `INSERT INTO kv_entries (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`

	removeKVSQL = `DELETE FROM kv_entries WHERE key = $1`

	purgeKVSQL = `DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= now()`
)

var _ kv.Store = (*KVStore)(nil)

// KVStore implements kv.Store on the kv_entries table.
type KVStore struct {
	pool *pgxpool.Pool
}

// NewKVStore returns a KVStore that uses the given pool.
func NewKVStore(pool *pgxpool.Pool) *KVStore {
	return &KVStore{pool: pool}
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	if err := s.pool.QueryRow(ctx, getKVSQL, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, kv.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get %q", key)
	}
	return value, nil
}

func (s *KVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}
	if _, err := s.pool.Exec(ctx, setKVSQL, key, value, expiresAt); err != nil {
		return errors.Wrapf(err, "set %q", key)
	}
	return nil
}

func (s *KVStore) Remove(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, removeKVSQL, key); err != nil {
		return errors.Wrapf(err, "remove %q", key)
	}
	return nil
}

// Purge deletes expired entries and returns how many were removed.
func (s *KVStore) Purge(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, purgeKVSQL)
	if err != nil {
		return 0, errors.Wrap(err, "purge expired entries")
	}
	return tag.RowsAffected(), nil
}
