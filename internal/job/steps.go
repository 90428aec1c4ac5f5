package job

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/raid-tracker/internal/adapter"
	apperrors "github.com/raid-tracker/internal/errors"
	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/storage"
	"github.com/raid-tracker/internal/types"
)

func (p *Pipeline) fetchProfile(ctx context.Context, character models.Character) error {
	summary, err := p.cfg.Profiles.Profile(ctx, character)
	if err != nil {
		return fmt.Errorf("failed to fetch profile: %w", err)
	}
	if summary == nil {
		return apperrors.NewProviderNotFoundError(types.ProviderProfile, fmt.Sprintf("character %s-%s", character.Name, character.Realm))
	}

	media, err := p.cfg.Profiles.Media(ctx, character)
	if err != nil {
		return fmt.Errorf("failed to fetch media: %w", err)
	}

	profile := &models.CharacterProfile{
		CharacterID:       character.ID,
		Name:              summary.Name,
		Realm:             character.Realm,
		Region:            string(types.NormalizeRegion(character.Region)),
		Level:             summary.Level,
		Class:             summary.Class,
		ActiveSpec:        summary.ActiveSpec,
		Race:              summary.Race,
		Faction:           summary.Faction,
		Guild:             summary.Guild,
		ItemLevel:         summary.ItemLevel,
		AchievementPoints: summary.AchievementPoints,
		UpdatedAt:         p.now(),
	}
	if profile.Name == "" {
		profile.Name = character.Name
	}
	if media != nil {
		if avatar, ok := media.Assets["avatar"]; ok && avatar != "" {
			profile.AvatarURL = &avatar
		}
	}

	existing, err := p.cfg.Characters.GetProfile(ctx, character.ID)
	if err != nil {
		return fmt.Errorf("failed to load stored profile: %w", err)
	}
	if existing != nil {
		profile.AchievementCount = existing.AchievementCount
	}

	return p.cfg.Characters.UpsertProfile(ctx, profile)
}

// fetchAchievements tolerates characters without achievement data
func (p *Pipeline) fetchAchievements(ctx context.Context, character models.Character) error {
	achievements, err := p.cfg.Profiles.Achievements(ctx, character)
	if err != nil {
		return fmt.Errorf("failed to fetch achievements: %w", err)
	}
	if achievements == nil {
		achievements = &models.CharacterAchievements{}
	}

	count := achievements.TotalQuantity
	if count == 0 {
		count = len(achievements.Achievements)
	}
	return p.cfg.Characters.UpdateAchievements(ctx, character.ID, achievements.TotalPoints, count)
}

// trackedSeasonSlugs returns the internal slugs of the tracked seasons
func (p *Pipeline) trackedSeasonSlugs() map[string]bool {
	slugs := make(map[string]bool, len(p.cfg.Seasons))
	for _, s := range p.cfg.Seasons {
		slugs[s.Slug] = true
	}
	return slugs
}

// fetchRankings replaces the character's rankings for every tracked raid.
// One provider call carries all of a raid's encounters per difficulty.
func (p *Pipeline) fetchRankings(ctx context.Context, character models.Character) error {
	if err := p.cfg.Characters.DeleteRankings(ctx, character.ID); err != nil {
		return fmt.Errorf("failed to delete rankings: %w", err)
	}

	raids, err := p.cfg.Catalog.ListRaidsWithBosses(ctx)
	if err != nil {
		return fmt.Errorf("failed to list raids: %w", err)
	}

	tracked := p.trackedSeasonSlugs()
	fetchedAt := p.now()
	var rows []models.CharacterRanking

	for _, raid := range raids {
		if !tracked[raid.SeasonSlug] || len(raid.Bosses) == 0 {
			continue
		}
		encounterIDs := make([]int, 0, len(raid.Bosses))
		for _, b := range raid.Bosses {
			encounterIDs = append(encounterIDs, b.SourceEncounterID)
		}

		for _, difficulty := range rankedDifficulties {
			sets, err := p.cfg.Rankings.Rankings(ctx, character, encounterIDs, difficulty)
			if err != nil {
				return fmt.Errorf("failed to fetch %s rankings for %s: %w", difficulty, raid.Name, err)
			}
			rows = append(rows, rankingRows(character.ID, raid.ID, sets, fetchedAt)...)
		}
	}

	if len(rows) == 0 {
		return nil
	}
	return p.cfg.Characters.InsertRankings(ctx, rows)
}

func rankingRows(characterID, raidID int64, sets map[int]models.RankingSet, fetchedAt time.Time) []models.CharacterRanking {
	encounterIDs := make([]int, 0, len(sets))
	for id := range sets {
		encounterIDs = append(encounterIDs, id)
	}
	sort.Ints(encounterIDs)

	rows := make([]models.CharacterRanking, 0, len(sets))
	for _, id := range encounterIDs {
		set := sets[id]
		rows = append(rows, models.CharacterRanking{
			CharacterID:   characterID,
			RaidID:        raidID,
			EncounterID:   id,
			Difficulty:    set.Difficulty,
			BestPercent:   set.BestPercent,
			MedianPercent: set.MedianPercent,
			Kills:         set.Kills,
			FastestKillMs: set.FastestKillMs,
			Spec:          set.Spec,
			FetchedAt:     fetchedAt,
		})
	}
	return rows
}

// fetchDungeonRuns replaces the character's keystone runs across the current
// and every historical season of the tracked expansions.
func (p *Pipeline) fetchDungeonRuns(ctx context.Context, character models.Character) error {
	if err := p.cfg.Characters.DeleteDungeonRuns(ctx, character.ID); err != nil {
		return fmt.Errorf("failed to delete dungeon runs: %w", err)
	}

	seasons, err := p.dungeonSeasons(ctx)
	if err != nil {
		return err
	}

	var runs []models.DungeonRun
	for i, season := range seasons {
		current := i == 0
		profile, err := p.cfg.Dungeons.CharacterProfile(ctx, character, adapter.SeasonFields(season, current))
		if err != nil {
			return fmt.Errorf("failed to fetch dungeon profile for %s: %w", season, err)
		}
		if profile == nil {
			continue
		}
		runs = append(runs, dungeonRows(character.ID, season, models.RunSourceBest, profile.BestRuns)...)
		runs = append(runs, dungeonRows(character.ID, season, models.RunSourceAlternate, profile.AlternateRuns)...)
		if current {
			runs = append(runs, dungeonRows(character.ID, season, models.RunSourceRecent, profile.RecentRuns)...)
		}
	}

	if len(runs) == 0 {
		return nil
	}
	return p.cfg.Characters.InsertDungeonRuns(ctx, runs)
}

// dungeonSeasons returns season slugs with the current season first.
// Season lists are discovered per static meta expansion and cached.
func (p *Pipeline) dungeonSeasons(ctx context.Context) ([]string, error) {
	var expansionIDs []int
	seen := make(map[int]bool)
	for _, s := range p.cfg.Seasons {
		if s.StaticMetaExpansionID == 0 || seen[s.StaticMetaExpansionID] {
			continue
		}
		seen[s.StaticMetaExpansionID] = true
		expansionIDs = append(expansionIDs, s.StaticMetaExpansionID)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(expansionIDs)))

	var current string
	var historical []string
	known := make(map[string]bool)

	for _, expansionID := range expansionIDs {
		meta, err := p.mplusMeta(ctx, expansionID)
		if err != nil {
			return nil, err
		}
		for _, season := range meta.Seasons {
			if season.Slug == "" || known[season.Slug] {
				continue
			}
			known[season.Slug] = true
			if season.IsMainSeason && current == "" {
				current = season.Slug
				continue
			}
			historical = append(historical, season.Slug)
		}
	}

	if current == "" && len(historical) > 0 {
		current, historical = historical[0], historical[1:]
	}
	if current == "" {
		return nil, nil
	}
	return append([]string{current}, historical...), nil
}

func (p *Pipeline) mplusMeta(ctx context.Context, expansionID int) (*models.MplusStaticMeta, error) {
	key := storage.MplusStaticKey(expansionID)

	var meta models.MplusStaticMeta
	if ok, err := p.cfg.Cache.GetJSON(ctx, key, &meta); err != nil {
		p.logger.WithError(err).WithField("key", key).Warn("Cache read failed, fetching season list")
	} else if ok {
		return &meta, nil
	}

	fetched, err := p.cfg.StaticMeta.StaticMplusMeta(ctx, expansionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch season list for expansion %d: %w", expansionID, err)
	}
	if fetched == nil {
		fetched = &models.MplusStaticMeta{}
	}
	if err := p.cfg.Cache.PutJSON(ctx, key, fetched, storage.TTLCurrent); err != nil {
		p.logger.WithError(err).WithField("key", key).Warn("Failed to cache season list")
	}
	return fetched, nil
}

func dungeonRows(characterID int64, season, source string, records []models.DungeonRunRecord) []models.DungeonRun {
	rows := make([]models.DungeonRun, 0, len(records))
	for _, r := range records {
		rows = append(rows, models.DungeonRun{
			CharacterID: characterID,
			Season:      season,
			Dungeon:     r.Dungeon,
			KeyLevel:    r.KeyLevel,
			Score:       r.Score,
			Timed:       r.Upgrades > 0,
			ClearTimeMs: r.ClearTimeMs,
			CompletedAt: r.CompletedAt,
			Source:      source,
		})
	}
	return rows
}

func (p *Pipeline) computeStatistics(ctx context.Context, characterID int64) error {
	rankings, err := p.cfg.Characters.ListRankings(ctx, characterID)
	if err != nil {
		return fmt.Errorf("failed to list rankings: %w", err)
	}
	runs, err := p.cfg.Characters.ListDungeonRuns(ctx, characterID)
	if err != nil {
		return fmt.Errorf("failed to list dungeon runs: %w", err)
	}
	profile, err := p.cfg.Characters.GetProfile(ctx, characterID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}

	stats := ComputeStatistics(characterID, profile, rankings, runs, p.now())
	return p.cfg.Characters.SaveStatistics(ctx, stats)
}

// fetchEvents is reserved for per-fight event analysis and does nothing yet
func (p *Pipeline) fetchEvents(_ context.Context) error {
	return nil
}

func (p *Pipeline) generateNarrative(ctx context.Context, characterID int64) error {
	profile, err := p.cfg.Characters.GetProfile(ctx, characterID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	rankings, err := p.cfg.Characters.ListRankings(ctx, characterID)
	if err != nil {
		return fmt.Errorf("failed to list rankings: %w", err)
	}
	runs, err := p.cfg.Characters.ListDungeonRuns(ctx, characterID)
	if err != nil {
		return fmt.Errorf("failed to list dungeon runs: %w", err)
	}

	stats := ComputeStatistics(characterID, profile, rankings, runs, p.now())
	text, err := p.cfg.Narrator.Generate(ctx, &NarrativeInput{Profile: profile, Statistics: stats})
	if err != nil {
		return fmt.Errorf("failed to generate narrative: %w", err)
	}

	return p.cfg.Characters.SaveSummary(ctx, &models.NarrativeSummary{
		CharacterID: characterID,
		Summary:     text,
		GeneratedAt: p.now(),
	})
}
