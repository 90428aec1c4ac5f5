package storage

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raid-tracker/internal/logging"
	"github.com/raid-tracker/internal/models"
)

// fakeClock is a settable clock shared by the cache under test
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func setupTestCache(t *testing.T) (*CacheService, *fakeClock, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisCacheStore(NewRedisCacheFromClient(client), time.Hour)

	clock := &fakeClock{now: time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC)}
	cache := NewCacheService(store, logging.NewNopLogger())
	cache.SetClock(clock.Now)

	return cache, clock, mr
}

func TestCacheService_GetPut(t *testing.T) {
	cache, clock, _ := setupTestCache(t)
	ctx := context.Background()

	t.Run("miss on absent key", func(t *testing.T) {
		_, ok, err := cache.Get(ctx, "zone:1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("hit within ttl", func(t *testing.T) {
		require.NoError(t, cache.Put(ctx, "zone:38", json.RawMessage(`{"id":38}`), 60))
		clock.Set(clock.Now().Add(30 * time.Second))

		payload, ok, err := cache.Get(ctx, "zone:38")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.JSONEq(t, `{"id":38}`, string(payload))
	})

	t.Run("miss after ttl", func(t *testing.T) {
		clock.Set(clock.Now().Add(31 * time.Second))
		_, ok, err := cache.Get(ctx, "zone:38")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("put overwrites", func(t *testing.T) {
		require.NoError(t, cache.Put(ctx, "zone:38", json.RawMessage(`{"id":39}`), 60))
		payload, ok, err := cache.Get(ctx, "zone:38")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.JSONEq(t, `{"id":39}`, string(payload))
	})
}

func TestCacheService_JSONHelpers(t *testing.T) {
	cache, _, _ := setupTestCache(t)
	ctx := context.Background()

	zone := models.ZoneDetail{ID: 38, Name: "Nerub-ar Palace", Encounters: []models.Encounter{{ID: 2902, Name: "Ulgrax the Devourer"}}}
	require.NoError(t, cache.PutJSON(ctx, ZoneKey(38), zone, TTLCurrent))

	var got models.ZoneDetail
	ok, err := cache.GetJSON(ctx, ZoneKey(38), &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, zone, got)

	var missing models.ZoneDetail
	ok, err = cache.GetJSON(ctx, ZoneKey(99), &missing)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheStore_KeyExpiry(t *testing.T) {
	cache, _, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "raidmeta:10", json.RawMessage(`[]`), 60))
	assert.Equal(t, 60*time.Second+time.Hour, mr.TTL(redisCacheKeyPrefix+"raidmeta:10"))

	mr.FastForward(2 * time.Hour)
	_, ok, err := cache.Get(ctx, "raidmeta:10")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "zone:38", ZoneKey(38))
	assert.Equal(t, "raidmeta:10", RaidMetaKey(10))
	assert.Equal(t, "achievement-index", AchievementIndexKey())
	assert.Equal(t, "achievement-icon:40244", AchievementIconKey(40244))
	assert.Equal(t, "mplus-static:10", MplusStaticKey(10))
	assert.Equal(t, "zone:abc", GenerateCacheKey(CacheKeyZone, "ABC"))
}

// Property: put at t0 then get at t1 returns the payload iff t1-t0 <= ttl
func TestCacheRoundTripProperties(t *testing.T) {
	cache, clock, _ := setupTestCache(t)
	ctx := context.Background()
	base := clock.Now()

	properties := gopter.NewProperties(nil)

	properties.Property("get returns the value iff within ttl", prop.ForAll(
		func(key string, value int, ttl int, elapsed int) bool {
			clock.Set(base)
			payload, _ := json.Marshal(value)
			if err := cache.Put(ctx, "prop:"+key, payload, ttl); err != nil {
				return false
			}

			clock.Set(base.Add(time.Duration(elapsed) * time.Second))
			got, ok, err := cache.Get(ctx, "prop:"+key)
			if err != nil {
				return false
			}
			if elapsed <= ttl {
				return ok && string(got) == string(payload)
			}
			return !ok
		},
		gen.AlphaString(),
		gen.Int(),
		gen.IntRange(0, 86400),
		gen.IntRange(0, 172800),
	))

	properties.TestingRun(t)
}
