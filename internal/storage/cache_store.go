package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/raid-tracker/internal/errors"
	"github.com/raid-tracker/internal/models"
)

const redisCacheKeyPrefix = "apicache:"

// RedisCacheStore keeps cache entries as JSON documents in Redis. Keys expire
// at ttl plus grace so storage stays bounded; freshness is still decided by
// CacheService from the stored cachedAt.
type RedisCacheStore struct {
	redis *RedisCache
	grace time.Duration
}

// NewRedisCacheStore creates a Redis backed cache store
func NewRedisCacheStore(rc *RedisCache, grace time.Duration) *RedisCacheStore {
	return &RedisCacheStore{redis: rc, grace: grace}
}

// Load implements CacheStore
func (s *RedisCacheStore) Load(ctx context.Context, key string) (*models.CacheEntry, error) {
	data, ok, err := s.redis.Read(ctx, redisCacheKeyPrefix+key)
	if err != nil || !ok {
		return nil, err
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return &entry, nil
}

// Save implements CacheStore
func (s *RedisCacheStore) Save(ctx context.Context, entry *models.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", entry.Key, err)
	}
	expiry := time.Duration(entry.TTLSeconds)*time.Second + s.grace
	return s.redis.Write(ctx, redisCacheKeyPrefix+entry.Key, data, expiry)
}

// PostgresCacheStore keeps cache entries in the api_cache table
type PostgresCacheStore struct {
	db *PostgresDB
}

// NewPostgresCacheStore creates a Postgres backed cache store
func NewPostgresCacheStore(db *PostgresDB) *PostgresCacheStore {
	return &PostgresCacheStore{db: db}
}

// Load implements CacheStore
func (s *PostgresCacheStore) Load(ctx context.Context, key string) (*models.CacheEntry, error) {
	query := `
		SELECT key, payload, cached_at, ttl_seconds
		FROM api_cache
		WHERE key = $1
	`

	var entry models.CacheEntry
	var payload []byte
	err := s.db.Pool().QueryRow(ctx, query, key).Scan(
		&entry.Key,
		&payload,
		&entry.CachedAt,
		&entry.TTLSeconds,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewCacheError("load cache entry", err)
	}
	entry.Payload = payload

	return &entry, nil
}

// Save implements CacheStore
func (s *PostgresCacheStore) Save(ctx context.Context, entry *models.CacheEntry) error {
	query := `
		INSERT INTO api_cache (key, payload, cached_at, ttl_seconds)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			payload = EXCLUDED.payload,
			cached_at = EXCLUDED.cached_at,
			ttl_seconds = EXCLUDED.ttl_seconds
	`

	_, err := s.db.Pool().Exec(ctx, query,
		entry.Key,
		[]byte(entry.Payload),
		entry.CachedAt,
		entry.TTLSeconds,
	)
	if err != nil {
		return apperrors.NewCacheError("save cache entry", err)
	}

	return nil
}
