package job

import (
	"sort"
	"time"

	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/types"
)

// ComputeStatistics aggregates stored rankings and dungeon runs.
// Season scores sum the best-run score of each dungeon in the season.
func ComputeStatistics(characterID int64, profile *models.CharacterProfile, rankings []models.CharacterRanking, runs []models.DungeonRun, now time.Time) *models.CharacterStatistics {
	stats := &models.CharacterStatistics{
		CharacterID:  characterID,
		SeasonScores: []models.SeasonScore{},
		ComputedAt:   now,
	}
	if profile != nil {
		stats.AchievementPoints = profile.AchievementPoints
	}

	var percentSum float64
	var percentCount int
	for _, r := range rankings {
		if r.BestPercent == nil && r.Kills == 0 {
			continue
		}
		stats.EncountersRanked++
		switch types.Difficulty(r.Difficulty) {
		case types.DifficultyHeroic:
			stats.HeroicKills += r.Kills
		case types.DifficultyMythic:
			stats.MythicKills += r.Kills
		}
		if r.BestPercent != nil {
			best := *r.BestPercent
			if stats.BestRaidPercent == nil || best > *stats.BestRaidPercent {
				stats.BestRaidPercent = &best
			}
			percentSum += best
			percentCount++
		}
	}
	if percentCount > 0 {
		avg := percentSum / float64(percentCount)
		stats.AverageRaidPercent = &avg
	}

	// season -> dungeon -> best score
	bestByDungeon := make(map[string]map[string]float64)
	// a recent run may repeat a best or alternate run
	ranked := make(map[runKey]bool)
	for _, run := range runs {
		if run.Source != models.RunSourceRecent {
			ranked[keyOf(run)] = true
		}
	}

	for _, run := range runs {
		if run.Source == models.RunSourceRecent && ranked[keyOf(run)] {
			continue
		}

		stats.DungeonRuns++
		if run.Timed {
			stats.TimedRuns++
		}
		if run.KeyLevel > stats.HighestKeyLevel {
			stats.HighestKeyLevel = run.KeyLevel
		}

		if run.Source != models.RunSourceBest {
			continue
		}
		if bestByDungeon[run.Season] == nil {
			bestByDungeon[run.Season] = make(map[string]float64)
		}
		if run.Score > bestByDungeon[run.Season][run.Dungeon] {
			bestByDungeon[run.Season][run.Dungeon] = run.Score
		}
	}

	for season, dungeons := range bestByDungeon {
		var total float64
		for _, score := range dungeons {
			total += score
		}
		stats.SeasonScores = append(stats.SeasonScores, models.SeasonScore{Season: season, Score: total})
	}
	sort.Slice(stats.SeasonScores, func(i, j int) bool {
		return stats.SeasonScores[i].Season < stats.SeasonScores[j].Season
	})

	return stats
}

type runKey struct {
	season    string
	dungeon   string
	keyLevel  int
	clearTime int64
	completed int64
}

func keyOf(run models.DungeonRun) runKey {
	key := runKey{season: run.Season, dungeon: run.Dungeon, keyLevel: run.KeyLevel, clearTime: run.ClearTimeMs}
	if run.CompletedAt != nil {
		key.completed = run.CompletedAt.Unix()
	}
	return key
}
