package models

import "time"

// Dungeon run sources
const (
	RunSourceBest      = "best"
	RunSourceRecent    = "recent"
	RunSourceAlternate = "alternate"
)

// CharacterProfile is the persisted identity snapshot of a tracked character
type CharacterProfile struct {
	CharacterID       int64     `json:"characterId" db:"character_id"`
	Name              string    `json:"name" db:"name"`
	Realm             string    `json:"realm" db:"realm"`
	Region            string    `json:"region" db:"region"`
	Level             int       `json:"level" db:"level"`
	Class             *string   `json:"class,omitempty" db:"class"`
	ActiveSpec        *string   `json:"activeSpec,omitempty" db:"active_spec"`
	Race              *string   `json:"race,omitempty" db:"race"`
	Faction           *string   `json:"faction,omitempty" db:"faction"`
	Guild             *string   `json:"guild,omitempty" db:"guild"`
	ItemLevel         int       `json:"itemLevel" db:"item_level"`
	AvatarURL         *string   `json:"avatarUrl,omitempty" db:"avatar_url"`
	AchievementPoints int       `json:"achievementPoints" db:"achievement_points"`
	AchievementCount  int       `json:"achievementCount" db:"achievement_count"`
	UpdatedAt         time.Time `json:"updatedAt" db:"updated_at"`
}

// CharacterRanking is one stored encounter ranking row
type CharacterRanking struct {
	CharacterID   int64     `json:"characterId" db:"character_id"`
	RaidID        int64     `json:"raidId" db:"raid_id"`
	EncounterID   int       `json:"encounterId" db:"encounter_id"`
	Difficulty    int       `json:"difficulty" db:"difficulty"`
	BestPercent   *float64  `json:"bestPercent,omitempty" db:"best_percent"`
	MedianPercent *float64  `json:"medianPercent,omitempty" db:"median_percent"`
	Kills         int       `json:"kills" db:"kills"`
	FastestKillMs *int64    `json:"fastestKillMs,omitempty" db:"fastest_kill_ms"`
	Spec          *string   `json:"spec,omitempty" db:"spec"`
	FetchedAt     time.Time `json:"fetchedAt" db:"fetched_at"`
}

// DungeonRun is one stored keystone run
type DungeonRun struct {
	CharacterID int64      `json:"characterId" db:"character_id"`
	Season      string     `json:"season" db:"season"`
	Dungeon     string     `json:"dungeon" db:"dungeon"`
	KeyLevel    int        `json:"keyLevel" db:"key_level"`
	Score       float64    `json:"score" db:"score"`
	Timed       bool       `json:"timed" db:"timed"`
	ClearTimeMs int64      `json:"clearTimeMs" db:"clear_time_ms"`
	CompletedAt *time.Time `json:"completedAt,omitempty" db:"completed_at"`
	Source      string     `json:"source" db:"source"`
}

// SeasonScore is a character's dungeon score for one season
type SeasonScore struct {
	Season string  `json:"season"`
	Score  float64 `json:"score"`
}

// CharacterStatistics is the aggregate computed at the end of each stage
type CharacterStatistics struct {
	CharacterID        int64         `json:"characterId" db:"character_id"`
	EncountersRanked   int           `json:"encountersRanked" db:"encounters_ranked"`
	HeroicKills        int           `json:"heroicKills" db:"heroic_kills"`
	MythicKills        int           `json:"mythicKills" db:"mythic_kills"`
	BestRaidPercent    *float64      `json:"bestRaidPercent,omitempty" db:"best_raid_percent"`
	AverageRaidPercent *float64      `json:"averageRaidPercent,omitempty" db:"average_raid_percent"`
	DungeonRuns        int           `json:"dungeonRuns" db:"dungeon_runs"`
	TimedRuns          int           `json:"timedRuns" db:"timed_runs"`
	HighestKeyLevel    int           `json:"highestKeyLevel" db:"highest_key_level"`
	SeasonScores       []SeasonScore `json:"seasonScores" db:"season_scores"`
	AchievementPoints  int           `json:"achievementPoints" db:"achievement_points"`
	ComputedAt         time.Time     `json:"computedAt" db:"computed_at"`
}

// NarrativeSummary is the generated text summary of a character
type NarrativeSummary struct {
	CharacterID int64     `json:"characterId" db:"character_id"`
	Summary     string    `json:"summary" db:"summary"`
	GeneratedAt time.Time `json:"generatedAt" db:"generated_at"`
}
