package models

import "time"

// Expansion is the top level of the internal raid catalog
type Expansion struct {
	ID                int64     `json:"id" db:"id"`
	Slug              string    `json:"slug" db:"slug"`
	Name              string    `json:"name" db:"name"`
	SourceExpansionID int       `json:"sourceExpansionId" db:"source_expansion_id"`
	UpdatedAt         time.Time `json:"updatedAt" db:"updated_at"`
}

// Season groups raids active over a fixed span; defined by static configuration
type Season struct {
	ID                 int64     `json:"id" db:"id"`
	Slug               string    `json:"slug" db:"slug"`
	Number             int       `json:"number" db:"number"`
	ExpansionID        int64     `json:"expansionId" db:"expansion_id"`
	ExternalSeasonSlug *string   `json:"externalSeasonSlug,omitempty" db:"external_season_slug"`
	UpdatedAt          time.Time `json:"updatedAt" db:"updated_at"`
}

// Raid is one raid instance, keyed by the combat-log zone id
type Raid struct {
	ID               int64             `json:"id" db:"id"`
	SeasonID         int64             `json:"seasonId" db:"season_id"`
	ExpansionID      int64             `json:"expansionId" db:"expansion_id"`
	SourceZoneID     int               `json:"sourceZoneId" db:"source_zone_id"`
	Name             string            `json:"name" db:"name"`
	Slug             string            `json:"slug" db:"slug"`
	IconURL          *string           `json:"iconUrl,omitempty" db:"icon_url"`
	RegionStartDates map[string]string `json:"regionStartDates" db:"region_start_dates"`
	RegionEndDates   map[string]string `json:"regionEndDates" db:"region_end_dates"`
	UpdatedAt        time.Time         `json:"updatedAt" db:"updated_at"`
}

// Boss is one encounter of a raid, keyed by (raid, combat-log encounter id)
type Boss struct {
	ID                int64     `json:"id" db:"id"`
	RaidID            int64     `json:"raidId" db:"raid_id"`
	SourceEncounterID int       `json:"sourceEncounterId" db:"source_encounter_id"`
	Name              string    `json:"name" db:"name"`
	Slug              string    `json:"slug" db:"slug"`
	Position          int       `json:"position" db:"position"`
	IconURL           *string   `json:"iconUrl,omitempty" db:"icon_url"`
	UpdatedAt         time.Time `json:"updatedAt" db:"updated_at"`
}

// RaidWithBosses is a raid joined with its bosses in encounter order
type RaidWithBosses struct {
	Raid
	SeasonSlug string `json:"seasonSlug"`
	Bosses     []Boss `json:"bosses"`
}

// SeasonDefinition is one statically configured season
type SeasonDefinition struct {
	Slug   string `json:"slug"`
	Number int    `json:"number"`
	// ZoneIDs are the combat-log zone ids that belong to the season
	ZoneIDs []int `json:"zoneIds"`
	// SourceExpansionID is the combat-log provider's expansion id
	SourceExpansionID int `json:"sourceExpansionId"`
	// StaticMetaExpansionID is the dungeon provider's expansion id for static raid and dungeon data
	StaticMetaExpansionID int    `json:"staticMetaExpansionId"`
	ExternalSeasonSlug    string `json:"externalSeasonSlug,omitempty"`
}

// HasZone reports whether zoneID is a member of the season
func (d SeasonDefinition) HasZone(zoneID int) bool {
	for _, id := range d.ZoneIDs {
		if id == zoneID {
			return true
		}
	}
	return false
}

// UpsertResult reports the row id written by an upsert and whether it was newly inserted
type UpsertResult struct {
	ID       int64
	Inserted bool
}
