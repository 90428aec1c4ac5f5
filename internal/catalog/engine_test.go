package catalog

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/raid-tracker/internal/errors"
	"github.com/raid-tracker/internal/logging"
	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/types"
)

var nerubarEncounters = []models.Encounter{
	{ID: 2902, Name: "Ulgrax the Devourer"},
	{ID: 2917, Name: "The Bloodbound Horror"},
	{ID: 2898, Name: "Sikran, Captain of the Sureki"},
	{ID: 2918, Name: "Rasha'nan"},
	{ID: 2919, Name: "Broodtwister Ovi'nax"},
	{ID: 2920, Name: "Nexus-Princess Ky'veza"},
	{ID: 2921, Name: "The Silken Court"},
	{ID: 2922, Name: "Queen Ansurek"},
}

type testEnv struct {
	store      *memStore
	structure  *fakeStructure
	staticMeta *fakeStaticMeta
	icons      *fakeIcons
	engine     *Engine
}

func nerubarZone() *models.ZoneDetail {
	return &models.ZoneDetail{
		ID:         38,
		Name:       "Nerub-ar Palace",
		Frozen:     false,
		Expansion:  models.ZoneExpansion{ID: 7, Name: "The War Within"},
		Encounters: append([]models.Encounter(nil), nerubarEncounters...),
	}
}

func nerubarMeta() models.RaidStaticMeta {
	icon := "https://icons/nerubar.jpg"
	return models.RaidStaticMeta{
		ID:                 14030,
		Slug:               "nerub-ar-palace",
		Name:               "Nerub-ar Palace",
		Icon:               &icon,
		StartDatesByRegion: map[string]string{"us": "2024-09-10", "eu": "2024-09-11"},
		EndDatesByRegion:   map[string]string{},
		Encounters:         append([]models.Encounter(nil), nerubarEncounters...),
	}
}

func twwSeasons() []models.SeasonDefinition {
	return []models.SeasonDefinition{
		{Slug: "tww-s1", Number: 1, ZoneIDs: []int{38}, SourceExpansionID: 7, StaticMetaExpansionID: 10, ExternalSeasonSlug: "season-tww-1"},
	}
}

func newTestEnv(t *testing.T, mutate func(cfg *EngineConfig)) *testEnv {
	t.Helper()

	env := &testEnv{
		store:      newMemStore(),
		structure:  &fakeStructure{zones: map[int]*models.ZoneDetail{38: nerubarZone()}, errs: map[int]error{}},
		staticMeta: &fakeStaticMeta{raids: map[int][]models.RaidStaticMeta{10: {nerubarMeta()}}},
		icons: &fakeIcons{
			index: []models.AchievementIndexEntry{
				{ID: 40236, Name: "Mythic: Ulgrax the Devourer"},
				{ID: 40244, Name: "Mythic: Queen Ansurek"},
				{ID: 40253, Name: "Nerub-ar Palace"},
			},
			icons: map[int]string{
				40236: "https://icons/ulgrax.jpg",
				40244: "https://icons/ansurek.jpg",
				40253: "https://icons/palace-achievement.jpg",
			},
		},
	}

	cfg := &EngineConfig{
		Store:               env.store,
		Cache:               newTestCache(t),
		Structure:           env.structure,
		StaticMeta:          env.staticMeta,
		Icons:               env.icons,
		Logger:              logging.NewNopLogger(),
		TrackedZoneIDs:      []int{38},
		CurrentTierZoneIDs:  []int{38},
		TrackedExpansionIDs: []int{7},
		Seasons:             twwSeasons(),
	}
	if mutate != nil {
		mutate(cfg)
	}

	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	env.engine = engine
	return env
}

func TestSync_BuildsCatalogFromZone(t *testing.T) {
	env := newTestEnv(t, nil)

	result, err := env.engine.Sync(context.Background(), Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Errors)

	raids, err := env.store.ListRaidsWithBosses(context.Background())
	require.NoError(t, err)
	require.Len(t, raids, 1)

	raid := raids[0]
	assert.Equal(t, 38, raid.SourceZoneID)
	assert.Equal(t, "Nerub-ar Palace", raid.Name)
	assert.Equal(t, "nerub-ar-palace", raid.Slug)
	assert.Equal(t, "tww-s1", raid.SeasonSlug)

	require.Len(t, raid.Bosses, 8)
	for i, boss := range raid.Bosses {
		assert.Equal(t, nerubarEncounters[i].ID, boss.SourceEncounterID)
		assert.Equal(t, i+1, boss.Position)
	}

	assert.Equal(t, 1, result.Counts[models.CountZonesFetched])
	assert.Equal(t, 1, result.Counts[models.CountExpansionsUpserted])
	assert.Equal(t, 1, result.Counts[models.CountSeasonsUpserted])
	assert.Equal(t, 1, result.Counts[models.CountStaticMetaFetched])
	assert.Equal(t, 1, result.Counts[models.CountRaidsUpserted])
	assert.Equal(t, 8, result.Counts[models.CountBossesUpserted])

	exp, err := env.store.FindExpansionBySourceID(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.Equal(t, "the-war-within", exp.Slug)

	season := env.store.seasons["tww-s1"]
	require.NotNil(t, season)
	require.NotNil(t, season.ExternalSeasonSlug)
	assert.Equal(t, "season-tww-1", *season.ExternalSeasonSlug)
	assert.Equal(t, exp.ID, season.ExpansionID)
}

func TestSync_AttachesDatesFromStaticMeta(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.Sync(context.Background(), Options{SkipIcons: true})
	require.NoError(t, err)

	raid, err := env.store.GetRaidBySourceZoneID(context.Background(), 38)
	require.NoError(t, err)
	require.NotNil(t, raid)
	assert.Equal(t, "2024-09-10", raid.RegionStartDates["us"])
	assert.Equal(t, "2024-09-11", raid.RegionStartDates["eu"])
}

func TestSync_IdempotentSecondRun(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.engine.Sync(ctx, Options{})
	require.NoError(t, err)
	insertsAfterFirst := env.store.inserts
	structureCalls := env.structure.calls

	second, err := env.engine.Sync(ctx, Options{})
	require.NoError(t, err)
	assert.Empty(t, second.Errors)
	assert.Equal(t, insertsAfterFirst, env.store.inserts, "second run must not insert rows")
	assert.Len(t, env.store.raids, 1)
	assert.Len(t, env.store.bosses, 8)

	// structural data came from the cache
	assert.Equal(t, structureCalls, env.structure.calls)
}

func TestSync_ForceBypassesCacheReads(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.engine.Sync(ctx, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, env.structure.calls)
	require.Equal(t, 1, env.staticMeta.calls)

	_, err = env.engine.Sync(ctx, Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, env.structure.calls)
	assert.Equal(t, 2, env.staticMeta.calls)

	// a forced run still refreshes the cache
	_, err = env.engine.Sync(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, env.structure.calls)
}

func TestSync_SkipIconsLeavesIconsNull(t *testing.T) {
	env := newTestEnv(t, nil)

	result, err := env.engine.Sync(context.Background(), Options{SkipIcons: true})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Counts[models.CountIconsFetched])
	assert.Equal(t, 0, env.icons.iconCalls)

	raid, err := env.store.GetRaidBySourceZoneID(context.Background(), 38)
	require.NoError(t, err)
	assert.Nil(t, raid.IconURL)
	for _, boss := range env.store.bossesFor(38) {
		assert.Nil(t, boss.IconURL, boss.Name)
	}
}

func TestSync_ResolvesIcons(t *testing.T) {
	env := newTestEnv(t, nil)

	result, err := env.engine.Sync(context.Background(), Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Errors)

	raid, err := env.store.GetRaidBySourceZoneID(context.Background(), 38)
	require.NoError(t, err)
	require.NotNil(t, raid.IconURL)
	// static meta icon wins over the achievement icon
	assert.Equal(t, "https://icons/nerubar.jpg", *raid.IconURL)

	bosses := env.store.bossesFor(38)
	byEncounter := make(map[int]models.Boss)
	for _, b := range bosses {
		byEncounter[b.SourceEncounterID] = b
	}
	require.NotNil(t, byEncounter[2902].IconURL)
	assert.Equal(t, "https://icons/ulgrax.jpg", *byEncounter[2902].IconURL)
	require.NotNil(t, byEncounter[2922].IconURL)
	assert.Equal(t, "https://icons/ansurek.jpg", *byEncounter[2922].IconURL)
	assert.Nil(t, byEncounter[2917].IconURL)

	// palace, ulgrax, ansurek
	assert.Equal(t, 3, result.Counts[models.CountIconsFetched])
}

func TestSync_AchievementIconFallsBackForRaid(t *testing.T) {
	env := newTestEnv(t, nil)
	meta := nerubarMeta()
	meta.Icon = nil
	env.staticMeta.raids[10] = []models.RaidStaticMeta{meta}

	_, err := env.engine.Sync(context.Background(), Options{})
	require.NoError(t, err)

	raid, err := env.store.GetRaidBySourceZoneID(context.Background(), 38)
	require.NoError(t, err)
	require.NotNil(t, raid.IconURL)
	assert.Equal(t, "https://icons/palace-achievement.jpg", *raid.IconURL)
}

func TestSync_KeepsPreviousValuesWhenSourcesAreMissing(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.engine.Sync(ctx, Options{})
	require.NoError(t, err)

	env.staticMeta.raids[10] = nil
	env.icons.index = nil
	_, err = env.engine.Sync(ctx, Options{Force: true, SkipIcons: true})
	require.NoError(t, err)

	raid, err := env.store.GetRaidBySourceZoneID(ctx, 38)
	require.NoError(t, err)
	assert.Equal(t, "2024-09-10", raid.RegionStartDates["us"])
	require.NotNil(t, raid.IconURL)
	assert.Equal(t, "https://icons/nerubar.jpg", *raid.IconURL)

	for _, b := range env.store.bossesFor(38) {
		if b.SourceEncounterID == 2902 {
			require.NotNil(t, b.IconURL)
			assert.Equal(t, "https://icons/ulgrax.jpg", *b.IconURL)
		}
	}
}

func TestSync_AbortsWithoutStructuralData(t *testing.T) {
	env := newTestEnv(t, nil)
	env.structure.errs[38] = apperrors.NewProviderStatusError(types.ProviderCombatLog, 503, "down")

	result, err := env.engine.Sync(context.Background(), Options{})
	require.ErrorIs(t, err, ErrNoStructuralData)
	require.NotNil(t, result)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "zone 38")
	assert.Empty(t, env.store.expansions)
	assert.Equal(t, 0, env.staticMeta.calls)
}

func TestSync_DropsZonesWithoutEncounters(t *testing.T) {
	env := newTestEnv(t, func(cfg *EngineConfig) {
		cfg.TrackedZoneIDs = []int{38, 99}
	})
	env.structure.zones[99] = &models.ZoneDetail{ID: 99, Name: "Future Raid", Expansion: models.ZoneExpansion{ID: 7, Name: "The War Within"}}

	result, err := env.engine.Sync(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counts[models.CountZonesFetched])
	assert.Equal(t, 1, result.Counts[models.CountZonesDropped])
	assert.Len(t, env.store.raids, 1)
}

func TestSync_AuthFailureStopsProviderForTheRun(t *testing.T) {
	env := newTestEnv(t, func(cfg *EngineConfig) {
		cfg.TrackedZoneIDs = []int{38, 42, 44}
	})
	env.structure.errs[38] = apperrors.NewProviderAuthError(types.ProviderCombatLog, 401)

	result, err := env.engine.Sync(context.Background(), Options{})
	require.ErrorIs(t, err, ErrNoStructuralData)
	assert.Equal(t, 1, env.structure.calls)
	assert.Len(t, result.Errors, 3)
}

func TestSync_ProviderFailuresAreAccumulated(t *testing.T) {
	env := newTestEnv(t, nil)
	env.staticMeta.err = apperrors.NewProviderStatusError(types.ProviderDungeon, 500, "boom")
	env.icons.indexErr = apperrors.NewProviderStatusError(types.ProviderProfile, 502, "bad gateway")

	result, err := env.engine.Sync(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], PhaseStaticMeta)
	assert.Contains(t, result.Errors[1], PhaseIcons)

	// the raid is still written, just without source-2 dates
	raid, err := env.store.GetRaidBySourceZoneID(context.Background(), 38)
	require.NoError(t, err)
	require.NotNil(t, raid)
	assert.Empty(t, raid.RegionStartDates)
	assert.Len(t, env.store.bossesFor(38), 8)
}

func TestSync_UnresolvableSeasonIsSkipped(t *testing.T) {
	env := newTestEnv(t, func(cfg *EngineConfig) {
		cfg.TrackedExpansionIDs = nil
		cfg.Seasons = append(twwSeasons(), models.SeasonDefinition{
			Slug: "legacy-s9", Number: 9, ZoneIDs: []int{1200}, SourceExpansionID: 99, StaticMetaExpansionID: 0,
		})
	})

	result, err := env.engine.Sync(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "season legacy-s9")
	assert.Equal(t, 1, result.Counts[models.CountSeasonsUpserted])
	assert.Len(t, env.store.raids, 1)
}

func TestSync_SeasonFallsBackToStoredExpansion(t *testing.T) {
	env := newTestEnv(t, func(cfg *EngineConfig) {
		cfg.Seasons = append(twwSeasons(), models.SeasonDefinition{
			Slug: "tww-s2", Number: 2, ZoneIDs: []int{42}, SourceExpansionID: 7, StaticMetaExpansionID: 10,
		})
	})

	result, err := env.engine.Sync(context.Background(), Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Errors)

	s1 := env.store.seasons["tww-s1"]
	s2 := env.store.seasons["tww-s2"]
	require.NotNil(t, s2)
	assert.Equal(t, s1.ExpansionID, s2.ExpansionID)
	assert.Nil(t, s2.ExternalSeasonSlug)
}

func TestSync_ZoneWithoutSeasonIsRecorded(t *testing.T) {
	env := newTestEnv(t, func(cfg *EngineConfig) {
		cfg.TrackedZoneIDs = []int{38, 42}
	})
	env.structure.zones[42] = &models.ZoneDetail{
		ID:         42,
		Name:       "Liberation of Undermine",
		Expansion:  models.ZoneExpansion{ID: 7, Name: "The War Within"},
		Encounters: []models.Encounter{{ID: 3009, Name: "Vexie and the Geargrinders"}},
	}

	result, err := env.engine.Sync(context.Background(), Options{SkipIcons: true})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "no season maps to this zone")
	assert.Len(t, env.store.raids, 1)
}

func TestSync_FrozenZonesUseLongTTL(t *testing.T) {
	env := newTestEnv(t, func(cfg *EngineConfig) {
		cfg.CurrentTierZoneIDs = nil
	})
	zone := nerubarZone()
	zone.Frozen = true
	env.structure.zones[38] = zone

	_, err := env.engine.Sync(context.Background(), Options{SkipIcons: true})
	require.NoError(t, err)
	assert.Equal(t, 24*365, int(env.engine.zoneTTL(zone).Hours()))

	current := nerubarZone()
	assert.Equal(t, 24, int(env.engine.zoneTTL(current).Hours()))
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(nil)
	assert.Error(t, err)

	_, err = NewEngine(&EngineConfig{Store: newMemStore()})
	assert.Error(t, err)
}

func TestTrackedSeasons(t *testing.T) {
	seasons := []models.SeasonDefinition{
		{Slug: "df-s4", SourceExpansionID: 6},
		{Slug: "tww-s1", SourceExpansionID: 7},
	}

	assert.Len(t, TrackedSeasons(seasons, nil), 2)
	tracked := TrackedSeasons(seasons, []int{7})
	require.Len(t, tracked, 1)
	assert.Equal(t, "tww-s1", tracked[0].Slug)
}

func TestUnitResult_String(t *testing.T) {
	ok := UnitResult{Phase: PhaseRaids, Unit: "raid 38"}
	assert.True(t, ok.OK())
	assert.Equal(t, "raids raid 38: ok", ok.String())

	failed := UnitResult{Phase: PhaseZones, Unit: "zone 1", Err: fmt.Errorf("timeout")}
	assert.False(t, failed.OK())
	assert.True(t, strings.HasSuffix(failed.String(), "timeout"))
}
