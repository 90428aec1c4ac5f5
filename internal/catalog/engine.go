// Package catalog reconciles the three providers' raid data into the internal
// expansion -> season -> raid -> boss hierarchy.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/raid-tracker/internal/adapter"
	apperrors "github.com/raid-tracker/internal/errors"
	"github.com/raid-tracker/internal/logging"
	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/storage"
	"github.com/raid-tracker/internal/types"
)

// ErrNoStructuralData aborts a sync when phase 1 yields no usable zone
var ErrNoStructuralData = errors.New("no usable zone structure from combat-log provider")

// Options controls one sync run
type Options struct {
	// Force bypasses cache reads; fetched payloads are still written back
	Force bool
	// SkipIcons skips achievement icon resolution
	SkipIcons bool
}

// EngineConfig holds the engine's collaborators and tracked content
type EngineConfig struct {
	Store      Store
	Cache      Cache
	Structure  adapter.StructureProvider
	StaticMeta adapter.StaticMetaProvider
	Icons      adapter.IconProvider
	Logger     *logging.Logger

	TrackedZoneIDs      []int
	CurrentTierZoneIDs  []int
	TrackedExpansionIDs []int
	Seasons             []models.SeasonDefinition
}

// Validate validates the engine configuration
func (c *EngineConfig) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("catalog store is required")
	}
	if c.Cache == nil {
		return fmt.Errorf("cache is required")
	}
	if c.Structure == nil || c.StaticMeta == nil || c.Icons == nil {
		return fmt.Errorf("structure, static meta and icon providers are required")
	}
	if len(c.TrackedZoneIDs) == 0 {
		return fmt.Errorf("at least one tracked zone id is required")
	}
	return nil
}

// Engine runs the six-phase catalog sync
type Engine struct {
	store      Store
	cache      Cache
	structure  adapter.StructureProvider
	staticMeta adapter.StaticMetaProvider
	icons      adapter.IconProvider
	logger     *logging.Logger

	trackedZoneIDs []int
	currentTier    map[int]bool
	seasons        []models.SeasonDefinition
}

// NewEngine creates a sync engine
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	currentTier := make(map[int]bool, len(cfg.CurrentTierZoneIDs))
	for _, id := range cfg.CurrentTierZoneIDs {
		currentTier[id] = true
	}

	return &Engine{
		store:          cfg.Store,
		cache:          cfg.Cache,
		structure:      cfg.Structure,
		staticMeta:     cfg.StaticMeta,
		icons:          cfg.Icons,
		logger:         logger.WithField("component", "catalog_sync"),
		trackedZoneIDs: append([]int(nil), cfg.TrackedZoneIDs...),
		currentTier:    currentTier,
		seasons:        TrackedSeasons(cfg.Seasons, cfg.TrackedExpansionIDs),
	}, nil
}

// TrackedSeasons keeps the seasons whose combat-log expansion is tracked.
// An empty tracked list keeps every season.
func TrackedSeasons(seasons []models.SeasonDefinition, trackedExpansionIDs []int) []models.SeasonDefinition {
	if len(trackedExpansionIDs) == 0 {
		return append([]models.SeasonDefinition(nil), seasons...)
	}
	tracked := make(map[int]bool, len(trackedExpansionIDs))
	for _, id := range trackedExpansionIDs {
		tracked[id] = true
	}
	var out []models.SeasonDefinition
	for _, s := range seasons {
		if tracked[s.SourceExpansionID] {
			out = append(out, s)
		}
	}
	return out
}

type seasonRef struct {
	id          int64
	slug        string
	expansionID int64
}

// syncRun is the mutable state of one Sync call
type syncRun struct {
	opts       Options
	result     *models.SyncResult
	units      unitLog
	authFailed map[types.Provider]error

	zones        []*models.ZoneDetail
	expansionIDs map[int]int64
	zoneSeasons  map[int]seasonRef
	metas        []models.RaidStaticMeta
	iconsByName  map[string]string
}

// blocked returns an error when the provider already rejected credentials in this run
func (r *syncRun) blocked(provider types.Provider) error {
	if err, ok := r.authFailed[provider]; ok {
		return fmt.Errorf("skipped after %s auth failure: %w", provider, err)
	}
	return nil
}

func (r *syncRun) observe(provider types.Provider, err error) {
	if apperrors.IsAuth(err) {
		if _, seen := r.authFailed[provider]; !seen {
			r.authFailed[provider] = err
		}
	}
}

// Sync runs all phases. A non-empty error list in the result is not a failure;
// only a phase 1 run without usable zones returns ErrNoStructuralData.
func (e *Engine) Sync(ctx context.Context, opts Options) (*models.SyncResult, error) {
	start := time.Now()
	run := &syncRun{
		opts:         opts,
		result:       models.NewSyncResult(),
		authFailed:   make(map[types.Provider]error),
		expansionIDs: make(map[int]int64),
		zoneSeasons:  make(map[int]seasonRef),
		iconsByName:  make(map[string]string),
	}

	e.logger.WithFields(map[string]interface{}{
		"force":      opts.Force,
		"skip_icons": opts.SkipIcons,
		"zones":      len(e.trackedZoneIDs),
		"seasons":    len(e.seasons),
	}).Info("Starting catalog sync")

	finish := func() *models.SyncResult {
		run.result.Errors = run.units.errorStrings()
		run.result.DurationMs = time.Since(start).Milliseconds()
		return run.result
	}

	e.fetchZones(ctx, run)
	if len(run.zones) == 0 {
		result := finish()
		e.logger.WithField("errors", len(result.Errors)).Error("Catalog sync aborted: no usable zones")
		return result, ErrNoStructuralData
	}

	e.upsertExpansions(ctx, run)
	e.upsertSeasons(ctx, run)
	e.fetchStaticMeta(ctx, run)
	if !opts.SkipIcons {
		e.resolveIcons(ctx, run)
	}
	e.upsertRaids(ctx, run)

	result := finish()
	e.logger.WithFields(map[string]interface{}{
		"counts":      result.Counts,
		"errors":      len(result.Errors),
		"duration_ms": result.DurationMs,
	}).Info("Catalog sync completed")
	return result, nil
}

// fetchOrCache loads key from the cache unless forced, otherwise calls fetch
// and stores the value with the TTL fetch chose. Cache failures degrade to a
// provider call.
func (e *Engine) fetchOrCache(ctx context.Context, run *syncRun, key string, dest interface{}, fetch func() (interface{}, time.Duration, error)) error {
	if !run.opts.Force {
		ok, err := e.cache.GetJSON(ctx, key, dest)
		if err != nil {
			e.logger.WithError(err).WithField("key", key).Warn("Cache read failed, fetching upstream")
		} else if ok {
			return nil
		}
	}

	value, ttl, err := fetch()
	if err != nil {
		return err
	}
	if err := e.cache.PutJSON(ctx, key, value, ttl); err != nil {
		e.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
	return copyInto(value, dest)
}

// copyInto moves value into dest through its JSON form, matching what a cache hit yields
func copyInto(value, dest interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return nil
}

// zoneTTL keeps frozen content for a year unless it is part of the current tier
func (e *Engine) zoneTTL(zone *models.ZoneDetail) time.Duration {
	if zone.Frozen && !e.currentTier[zone.ID] {
		return storage.TTLFrozen
	}
	return storage.TTLCurrent
}

// Phase 1
func (e *Engine) fetchZones(ctx context.Context, run *syncRun) {
	for _, zoneID := range e.trackedZoneIDs {
		unit := "zone " + strconv.Itoa(zoneID)
		if err := run.blocked(types.ProviderCombatLog); err != nil {
			run.units.record(PhaseZones, unit, err)
			continue
		}

		var zone *models.ZoneDetail
		err := e.fetchOrCache(ctx, run, storage.ZoneKey(zoneID), &zone, func() (interface{}, time.Duration, error) {
			z, err := e.structure.ZoneDetail(ctx, zoneID)
			if err != nil || z == nil {
				return nil, storage.TTLCurrent, err
			}
			return z, e.zoneTTL(z), nil
		})
		run.observe(types.ProviderCombatLog, err)
		if err != nil {
			run.units.record(PhaseZones, unit, err)
			continue
		}

		if zone == nil || len(zone.Encounters) == 0 {
			run.result.Counts[models.CountZonesDropped]++
			e.logger.WithField("zone_id", zoneID).Debug("Dropping zone without encounters")
			continue
		}

		run.zones = append(run.zones, zone)
		run.result.Counts[models.CountZonesFetched]++
		run.units.record(PhaseZones, unit, nil)
	}
}

// Phase 2
func (e *Engine) upsertExpansions(ctx context.Context, run *syncRun) {
	seen := make(map[int]models.ZoneExpansion)
	for _, z := range run.zones {
		if z.Expansion.ID == 0 {
			continue
		}
		if _, ok := seen[z.Expansion.ID]; !ok {
			seen[z.Expansion.ID] = z.Expansion
		}
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		exp := seen[id]
		slug := Slugify(exp.Name)
		if slug == "" {
			slug = "expansion-" + strconv.Itoa(id)
		}

		res, err := e.store.UpsertExpansion(ctx, &models.Expansion{Slug: slug, Name: exp.Name, SourceExpansionID: id})
		run.units.record(PhaseExpansions, "expansion "+slug, err)
		if err != nil {
			continue
		}
		run.expansionIDs[id] = res.ID
		run.result.Counts[models.CountExpansionsUpserted]++
	}
}

// Phase 3
func (e *Engine) upsertSeasons(ctx context.Context, run *syncRun) {
	zonesByID := make(map[int]*models.ZoneDetail, len(run.zones))
	for _, z := range run.zones {
		zonesByID[z.ID] = z
	}

	for _, def := range e.seasons {
		unit := "season " + def.Slug

		expansionID, err := e.resolveSeasonExpansion(ctx, run, def, zonesByID)
		if err != nil {
			run.units.record(PhaseSeasons, unit, err)
			continue
		}

		season := &models.Season{Slug: def.Slug, Number: def.Number, ExpansionID: expansionID}
		if def.ExternalSeasonSlug != "" {
			external := def.ExternalSeasonSlug
			season.ExternalSeasonSlug = &external
		}

		res, err := e.store.UpsertSeason(ctx, season)
		run.units.record(PhaseSeasons, unit, err)
		if err != nil {
			continue
		}
		run.result.Counts[models.CountSeasonsUpserted]++

		ref := seasonRef{id: res.ID, slug: def.Slug, expansionID: expansionID}
		for _, zoneID := range def.ZoneIDs {
			if _, taken := run.zoneSeasons[zoneID]; !taken {
				run.zoneSeasons[zoneID] = ref
			}
		}
	}
}

// resolveSeasonExpansion finds the internal expansion id through any member
// zone's detail, falling back to a stored expansion with the season's source id.
func (e *Engine) resolveSeasonExpansion(ctx context.Context, run *syncRun, def models.SeasonDefinition, zonesByID map[int]*models.ZoneDetail) (int64, error) {
	for _, zoneID := range def.ZoneIDs {
		zone, ok := zonesByID[zoneID]
		if !ok {
			continue
		}
		if id, ok := run.expansionIDs[zone.Expansion.ID]; ok {
			return id, nil
		}
	}

	if def.SourceExpansionID != 0 {
		exp, err := e.store.FindExpansionBySourceID(ctx, def.SourceExpansionID)
		if err != nil {
			return 0, err
		}
		if exp != nil {
			return exp.ID, nil
		}
	}

	return 0, apperrors.NewResolutionError("season "+def.Slug, "no expansion resolvable from member zones or stored expansions")
}

// Phase 4
func (e *Engine) fetchStaticMeta(ctx context.Context, run *syncRun) {
	seen := make(map[int]bool)
	var expansionIDs []int
	for _, def := range e.seasons {
		if def.StaticMetaExpansionID == 0 || seen[def.StaticMetaExpansionID] {
			continue
		}
		seen[def.StaticMetaExpansionID] = true
		expansionIDs = append(expansionIDs, def.StaticMetaExpansionID)
	}
	sort.Ints(expansionIDs)

	for _, id := range expansionIDs {
		unit := "expansion " + strconv.Itoa(id)
		if err := run.blocked(types.ProviderDungeon); err != nil {
			run.units.record(PhaseStaticMeta, unit, err)
			continue
		}

		var metas []models.RaidStaticMeta
		err := e.fetchOrCache(ctx, run, storage.RaidMetaKey(id), &metas, func() (interface{}, time.Duration, error) {
			m, err := e.staticMeta.StaticRaidMeta(ctx, id)
			if err != nil {
				return nil, 0, err
			}
			if m == nil {
				m = []models.RaidStaticMeta{}
			}
			return m, storage.TTLCurrent, nil
		})
		run.observe(types.ProviderDungeon, err)
		run.units.record(PhaseStaticMeta, unit, err)
		if err != nil {
			continue
		}

		run.metas = append(run.metas, metas...)
		run.result.Counts[models.CountStaticMetaFetched]++
	}
}

// Phase 5
func (e *Engine) resolveIcons(ctx context.Context, run *syncRun) {
	if err := run.blocked(types.ProviderProfile); err != nil {
		run.units.record(PhaseIcons, "achievement index", err)
		return
	}

	var index []models.AchievementIndexEntry
	err := e.fetchOrCache(ctx, run, storage.AchievementIndexKey(), &index, func() (interface{}, time.Duration, error) {
		idx, err := e.icons.AchievementIndex(ctx)
		if err != nil {
			return nil, 0, err
		}
		if idx == nil {
			idx = []models.AchievementIndexEntry{}
		}
		return idx, storage.TTLCurrent, nil
	})
	run.observe(types.ProviderProfile, err)
	if err != nil {
		run.units.record(PhaseIcons, "achievement index", err)
		return
	}
	if len(index) == 0 {
		return
	}

	for _, name := range distinctNames(run.zones) {
		entry, tier := MatchAchievement(name, index)
		if entry == nil {
			continue
		}

		unit := fmt.Sprintf("icon %q", name)
		if err := run.blocked(types.ProviderProfile); err != nil {
			run.units.record(PhaseIcons, unit, err)
			continue
		}

		achievementID := entry.ID
		var icon *string
		err := e.fetchOrCache(ctx, run, storage.AchievementIconKey(achievementID), &icon, func() (interface{}, time.Duration, error) {
			icon, err := e.icons.AchievementIcon(ctx, achievementID)
			return icon, storage.TTLCurrent, err
		})
		run.observe(types.ProviderProfile, err)
		if err != nil {
			run.units.record(PhaseIcons, unit, err)
			continue
		}
		if icon == nil || *icon == "" {
			continue
		}

		run.iconsByName[name] = *icon
		run.result.Counts[models.CountIconsFetched]++
		e.logger.WithFields(map[string]interface{}{
			"name":           name,
			"achievement_id": achievementID,
			"tier":           string(tier),
		}).Debug("Resolved icon")
	}
}

// distinctNames returns every raid and boss name in first-seen order
func distinctNames(zones []*models.ZoneDetail) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}
	for _, z := range zones {
		add(z.Name)
		for _, enc := range z.Encounters {
			add(enc.Name)
		}
	}
	return names
}

// Phase 6
func (e *Engine) upsertRaids(ctx context.Context, run *syncRun) {
	for _, zone := range run.zones {
		unit := fmt.Sprintf("raid %q (zone %d)", zone.Name, zone.ID)

		season, ok := run.zoneSeasons[zone.ID]
		if !ok {
			run.units.record(PhaseRaids, unit, apperrors.NewResolutionError(unit, "no season maps to this zone"))
			continue
		}

		previous, err := e.store.GetRaidBySourceZoneID(ctx, zone.ID)
		if err != nil {
			run.units.record(PhaseRaids, unit, err)
			continue
		}

		meta, tier := MatchRaidMeta(zone.Name, run.metas)
		raid := e.buildRaid(run, zone, season, meta, previous)

		res, err := e.store.UpsertRaid(ctx, raid)
		run.units.record(PhaseRaids, unit, err)
		if err != nil {
			continue
		}
		run.result.Counts[models.CountRaidsUpserted]++

		e.logger.WithFields(map[string]interface{}{
			"zone_id":    zone.ID,
			"raid_id":    res.ID,
			"season":     season.slug,
			"match_tier": string(tier),
			"inserted":   res.Inserted,
		}).Debug("Upserted raid")

		for i, enc := range zone.Encounters {
			e.upsertBoss(ctx, run, res.ID, i+1, enc)
		}
	}
}

// buildRaid takes name and slug from the combat-log zone, dates from static
// meta falling back to the stored row, and the icon from static meta, then
// the achievement icon, then the stored row.
func (e *Engine) buildRaid(run *syncRun, zone *models.ZoneDetail, season seasonRef, meta *models.RaidStaticMeta, previous *models.Raid) *models.Raid {
	raid := &models.Raid{
		SeasonID:         season.id,
		ExpansionID:      season.expansionID,
		SourceZoneID:     zone.ID,
		Name:             zone.Name,
		Slug:             Slugify(zone.Name),
		RegionStartDates: map[string]string{},
		RegionEndDates:   map[string]string{},
	}

	if meta != nil && len(meta.StartDatesByRegion) > 0 {
		raid.RegionStartDates = meta.StartDatesByRegion
	} else if previous != nil && previous.RegionStartDates != nil {
		raid.RegionStartDates = previous.RegionStartDates
	}
	if meta != nil && len(meta.EndDatesByRegion) > 0 {
		raid.RegionEndDates = meta.EndDatesByRegion
	} else if previous != nil && previous.RegionEndDates != nil {
		raid.RegionEndDates = previous.RegionEndDates
	}

	if !run.opts.SkipIcons {
		if meta != nil && meta.Icon != nil && *meta.Icon != "" {
			icon := *meta.Icon
			raid.IconURL = &icon
		} else if icon, ok := run.iconsByName[zone.Name]; ok {
			raid.IconURL = &icon
		}
	}
	if raid.IconURL == nil && previous != nil {
		raid.IconURL = previous.IconURL
	}

	return raid
}

func (e *Engine) upsertBoss(ctx context.Context, run *syncRun, raidID int64, position int, enc models.Encounter) {
	unit := fmt.Sprintf("boss %q (encounter %d)", enc.Name, enc.ID)

	previous, err := e.store.GetBoss(ctx, raidID, enc.ID)
	if err != nil {
		run.units.record(PhaseRaids, unit, err)
		return
	}

	boss := &models.Boss{
		RaidID:            raidID,
		SourceEncounterID: enc.ID,
		Name:              enc.Name,
		Slug:              Slugify(enc.Name),
		Position:          position,
	}
	if icon, ok := run.iconsByName[enc.Name]; ok && !run.opts.SkipIcons {
		boss.IconURL = &icon
	} else if previous != nil {
		boss.IconURL = previous.IconURL
	}

	_, err = e.store.UpsertBoss(ctx, boss)
	run.units.record(PhaseRaids, unit, err)
	if err == nil {
		run.result.Counts[models.CountBossesUpserted]++
	}
}

// ListRaids returns the stored catalog
func (e *Engine) ListRaids(ctx context.Context) ([]models.RaidWithBosses, error) {
	return e.store.ListRaidsWithBosses(ctx)
}
