package models

import "time"

// Records parsed from upstream provider payloads. Absent upstream fields are
// pointers or empty collections.

// ZoneDetail is the combat-log provider's structural view of one raid zone
type ZoneDetail struct {
	ID         int           `json:"id"`
	Name       string        `json:"name"`
	Frozen     bool          `json:"frozen"`
	Expansion  ZoneExpansion `json:"expansion"`
	Encounters []Encounter   `json:"encounters"`
}

// ZoneExpansion is the expansion reference carried by a zone
type ZoneExpansion struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Encounter is one boss fight as named by a provider
type Encounter struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// RaidStaticMeta is the dungeon provider's static description of one raid
type RaidStaticMeta struct {
	ID                 int               `json:"id"`
	Slug               string            `json:"slug"`
	Name               string            `json:"name"`
	Icon               *string           `json:"icon,omitempty"`
	StartDatesByRegion map[string]string `json:"startDatesByRegion"`
	EndDatesByRegion   map[string]string `json:"endDatesByRegion"`
	Encounters         []Encounter       `json:"encounters"`
}

// AchievementIndexEntry is one row of the profile provider's achievement catalog
type AchievementIndexEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// MplusStaticMeta is the dungeon provider's season and dungeon pool data
type MplusStaticMeta struct {
	Seasons []MplusSeason `json:"seasons"`
}

// MplusSeason is one mythic+ season
type MplusSeason struct {
	Slug         string            `json:"slug"`
	Name         string            `json:"name"`
	IsMainSeason bool              `json:"isMainSeason"`
	Starts       map[string]string `json:"starts"`
	Dungeons     []MplusDungeon    `json:"dungeons"`
}

// MplusDungeon is one dungeon in a season's pool
type MplusDungeon struct {
	ID        int    `json:"id"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
}

// RankingSet is a character's performance on one encounter at one difficulty
type RankingSet struct {
	EncounterID   int      `json:"encounterId"`
	Difficulty    int      `json:"difficulty"`
	BestPercent   *float64 `json:"bestPercent,omitempty"`
	MedianPercent *float64 `json:"medianPercent,omitempty"`
	Kills         int      `json:"kills"`
	FastestKillMs *int64   `json:"fastestKillMs,omitempty"`
	Spec          *string  `json:"spec,omitempty"`
}

// DungeonProfile is the dungeon provider's character profile for one season query
type DungeonProfile struct {
	ScoresBySeason map[string]float64 `json:"scoresBySeason"`
	BestRuns       []DungeonRunRecord `json:"bestRuns"`
	RecentRuns     []DungeonRunRecord `json:"recentRuns"`
	AlternateRuns  []DungeonRunRecord `json:"alternateRuns"`
}

// DungeonRunRecord is one keystone run as reported upstream
type DungeonRunRecord struct {
	Dungeon     string     `json:"dungeon"`
	ShortName   string     `json:"shortName"`
	KeyLevel    int        `json:"keyLevel"`
	Score       float64    `json:"score"`
	ClearTimeMs int64      `json:"clearTimeMs"`
	Upgrades    int        `json:"upgrades"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ProfileSummary is the profile provider's character summary
type ProfileSummary struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	Level             int     `json:"level"`
	Class             *string `json:"class,omitempty"`
	ActiveSpec        *string `json:"activeSpec,omitempty"`
	Race              *string `json:"race,omitempty"`
	Faction           *string `json:"faction,omitempty"`
	Guild             *string `json:"guild,omitempty"`
	ItemLevel         int     `json:"itemLevel"`
	AchievementPoints int     `json:"achievementPoints"`
}

// ProfileMedia holds the character render assets keyed by asset name (avatar, inset, main)
type ProfileMedia struct {
	Assets map[string]string `json:"assets"`
}

// AchievementRecord is one achievement earned by a character
type AchievementRecord struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// CharacterAchievements is the profile provider's achievement summary
type CharacterAchievements struct {
	TotalQuantity int                 `json:"totalQuantity"`
	TotalPoints   int                 `json:"totalPoints"`
	Achievements  []AchievementRecord `json:"achievements"`
}
