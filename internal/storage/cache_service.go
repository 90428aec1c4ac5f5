package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/raid-tracker/internal/logging"
	"github.com/raid-tracker/internal/models"
)

// TTLs chosen by callers according to how volatile the upstream data is
const (
	// TTLFrozen is used for structural data of content that no longer changes
	TTLFrozen = 365 * 24 * time.Hour
	// TTLCurrent is used for current-tier data so upstream corrections propagate
	TTLCurrent = 24 * time.Hour
)

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyZone is for combat-log zone details
	CacheKeyZone CacheKeyType = "zone"
	// CacheKeyRaidMeta is for dungeon provider static raid lists
	CacheKeyRaidMeta CacheKeyType = "raidmeta"
	// CacheKeyAchievementIndex is for the full achievement catalog
	CacheKeyAchievementIndex CacheKeyType = "achievement-index"
	// CacheKeyAchievementIcon is for resolved achievement icon urls
	CacheKeyAchievementIcon CacheKeyType = "achievement-icon"
	// CacheKeyMplusStatic is for dungeon provider season data
	CacheKeyMplusStatic CacheKeyType = "mplus-static"
)

// GenerateCacheKey generates a cache key for a given type and parameters
// Format: <type>:<param1>:<param2>:...
func GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, string(keyType))
	for _, param := range params {
		parts = append(parts, strings.ToLower(param))
	}
	return strings.Join(parts, ":")
}

// ZoneKey returns the cache key of a zone detail
func ZoneKey(zoneID int) string {
	return GenerateCacheKey(CacheKeyZone, fmt.Sprint(zoneID))
}

// RaidMetaKey returns the cache key of a static raid list
func RaidMetaKey(expansionID int) string {
	return GenerateCacheKey(CacheKeyRaidMeta, fmt.Sprint(expansionID))
}

// AchievementIndexKey returns the cache key of the achievement catalog
func AchievementIndexKey() string {
	return GenerateCacheKey(CacheKeyAchievementIndex)
}

// AchievementIconKey returns the cache key of one achievement icon
func AchievementIconKey(achievementID int) string {
	return GenerateCacheKey(CacheKeyAchievementIcon, fmt.Sprint(achievementID))
}

// MplusStaticKey returns the cache key of a mythic+ season list
func MplusStaticKey(expansionID int) string {
	return GenerateCacheKey(CacheKeyMplusStatic, fmt.Sprint(expansionID))
}

// CacheStore persists cache entries. Load returns nil with no error when the key is absent.
type CacheStore interface {
	Load(ctx context.Context, key string) (*models.CacheEntry, error)
	Save(ctx context.Context, entry *models.CacheEntry) error
}

// CacheService is the TTL-keyed cache shielding structural upstream lookups.
// Payloads are opaque; freshness is evaluated on read.
type CacheService struct {
	store  CacheStore
	now    func() time.Time
	logger *logging.Logger
}

// NewCacheService creates a new cache service over store
func NewCacheService(store CacheStore, logger *logging.Logger) *CacheService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &CacheService{
		store:  store,
		now:    time.Now,
		logger: logger,
	}
}

// SetClock overrides the clock used for cachedAt and freshness
func (c *CacheService) SetClock(now func() time.Time) {
	c.now = now
}

// Get returns the payload stored under key if present and fresh
func (c *CacheService) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	entry, err := c.store.Load(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get from cache: %w", err)
	}
	if entry == nil {
		return nil, false, nil
	}
	if !entry.FreshAt(c.now()) {
		c.logger.WithField("key", key).Debug("Cache entry expired")
		return nil, false, nil
	}
	return entry.Payload, true, nil
}

// Put stores payload under key, always overwriting any previous entry
func (c *CacheService) Put(ctx context.Context, key string, payload json.RawMessage, ttlSeconds int) error {
	entry := &models.CacheEntry{
		Key:        key,
		Payload:    payload,
		CachedAt:   c.now().UTC(),
		TTLSeconds: ttlSeconds,
	}
	if err := c.store.Save(ctx, entry); err != nil {
		return fmt.Errorf("failed to put into cache: %w", err)
	}
	return nil
}

// GetJSON retrieves a fresh value from cache and deserializes it into dest
func (c *CacheService) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	payload, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// PutJSON serializes value and stores it with the given TTL
func (c *CacheService) PutJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.Put(ctx, key, data, int(ttl/time.Second))
}
