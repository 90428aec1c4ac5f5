package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/raid-tracker/internal/types"
)

func TestCacheEntryFreshAt(t *testing.T) {
	t0 := time.Date(2024, 9, 10, 12, 0, 0, 0, time.UTC)
	entry := &CacheEntry{Key: "zone:38", CachedAt: t0, TTLSeconds: 60}

	assert.True(t, entry.FreshAt(t0))
	assert.True(t, entry.FreshAt(t0.Add(60*time.Second)))
	assert.False(t, entry.FreshAt(t0.Add(61*time.Second)))
}

func TestSeasonDefinitionHasZone(t *testing.T) {
	def := SeasonDefinition{Slug: "tww-s1", ZoneIDs: []int{38, 40}}
	assert.True(t, def.HasZone(40))
	assert.False(t, def.HasZone(42))
}

func TestNewProcessingState(t *testing.T) {
	state := NewProcessingState(7, 8)
	assert.Equal(t, types.StatusPending, state.StatusFor(types.StageLightweight))
	assert.Equal(t, types.StatusPending, state.StatusFor(types.StageDeep))
	assert.Empty(t, state.StepsCompleted)
	assert.Equal(t, 8, state.TotalSteps)
}

func TestNewSyncResultHasAllCounts(t *testing.T) {
	result := NewSyncResult()
	assert.Contains(t, result.Counts, CountIconsFetched)
	assert.Equal(t, 0, result.Counts[CountRaidsUpserted])
	assert.NotNil(t, result.Errors)
}
