package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/raid-tracker/internal/config"
	"github.com/raid-tracker/internal/logging"
	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/ratelimit"
	"github.com/raid-tracker/internal/types"
)

// IconURLTemplate turns a bare icon name into an image URL
const IconURLTemplate = "https://wow.zamimg.com/images/wow/icons/large/%s.jpg"

// Profile field prefixes accepted by CharacterProfile
const (
	FieldScoresBySeason = "mythic_plus_scores_by_season"
	FieldBestRuns       = "mythic_plus_best_runs"
	FieldAlternateRuns  = "mythic_plus_alternate_runs"
	FieldRecentRuns     = "mythic_plus_recent_runs"
)

// DungeonClient talks to the dungeon-ranking provider's REST API
type DungeonClient struct {
	api    *apiClient
	apiKey string
}

type raidStaticResponse struct {
	Raids []struct {
		ID         int               `json:"id"`
		Slug       string            `json:"slug"`
		Name       string            `json:"name"`
		Icon       string            `json:"icon"`
		Starts     map[string]string `json:"starts"`
		Ends       map[string]string `json:"ends"`
		Encounters []struct {
			ID   int    `json:"id"`
			Slug string `json:"slug"`
			Name string `json:"name"`
		} `json:"encounters"`
	} `json:"raids"`
}

type mplusStaticResponse struct {
	Seasons []struct {
		Slug         string            `json:"slug"`
		Name         string            `json:"name"`
		IsMainSeason bool              `json:"is_main_season"`
		Starts       map[string]string `json:"starts"`
		Dungeons     []struct {
			ID        int    `json:"id"`
			Slug      string `json:"slug"`
			Name      string `json:"name"`
			ShortName string `json:"short_name"`
		} `json:"dungeons"`
	} `json:"seasons"`
}

type dungeonRunPayload struct {
	Dungeon             string  `json:"dungeon"`
	ShortName           string  `json:"short_name"`
	MythicLevel         int     `json:"mythic_level"`
	Score               float64 `json:"score"`
	ClearTimeMs         int64   `json:"clear_time_ms"`
	NumKeystoneUpgrades int     `json:"num_keystone_upgrades"`
	CompletedAt         string  `json:"completed_at"`
}

type characterProfileResponse struct {
	ScoresBySeason []struct {
		Season string             `json:"season"`
		Scores map[string]float64 `json:"scores"`
	} `json:"mythic_plus_scores_by_season"`
	BestRuns      []dungeonRunPayload `json:"mythic_plus_best_runs"`
	RecentRuns    []dungeonRunPayload `json:"mythic_plus_recent_runs"`
	AlternateRuns []dungeonRunPayload `json:"mythic_plus_alternate_runs"`
}

// NewDungeonClient creates a dungeon-ranking client. The API key is optional.
func NewDungeonClient(cfg *config.ProviderConfig, coordinator *ratelimit.Coordinator, logger *logging.Logger) (*DungeonClient, error) {
	api, err := newAPIClient(types.ProviderDungeon, cfg, coordinator, logger)
	if err != nil {
		return nil, err
	}
	return &DungeonClient{api: api, apiKey: cfg.APIKey}, nil
}

func (c *DungeonClient) params() url.Values {
	q := url.Values{}
	if c.apiKey != "" {
		q.Set("access_key", c.apiKey)
	}
	return q
}

// StaticRaidMeta fetches the raid list of one expansion
func (c *DungeonClient) StaticRaidMeta(ctx context.Context, expansionID int) ([]models.RaidStaticMeta, error) {
	q := c.params()
	q.Set("expansion_id", strconv.Itoa(expansionID))

	var resp raidStaticResponse
	if err := c.api.doJSON(ctx, &apiRequest{path: "/raiding/static-data", query: q}, &resp); err != nil {
		return nil, notFoundAsEmpty(err)
	}

	raids := make([]models.RaidStaticMeta, 0, len(resp.Raids))
	for _, r := range resp.Raids {
		meta := models.RaidStaticMeta{
			ID:                 r.ID,
			Slug:               r.Slug,
			Name:               r.Name,
			Icon:               iconURL(r.Icon),
			StartDatesByRegion: datesOnly(r.Starts),
			EndDatesByRegion:   datesOnly(r.Ends),
			Encounters:         make([]models.Encounter, 0, len(r.Encounters)),
		}
		for _, e := range r.Encounters {
			meta.Encounters = append(meta.Encounters, models.Encounter{ID: e.ID, Name: e.Name})
		}
		raids = append(raids, meta)
	}
	return raids, nil
}

// StaticMplusMeta fetches the keystone seasons and dungeon pools of one expansion
func (c *DungeonClient) StaticMplusMeta(ctx context.Context, expansionID int) (*models.MplusStaticMeta, error) {
	q := c.params()
	q.Set("expansion_id", strconv.Itoa(expansionID))

	var resp mplusStaticResponse
	if err := c.api.doJSON(ctx, &apiRequest{path: "/mythic-plus/static-data", query: q}, &resp); err != nil {
		if err = notFoundAsEmpty(err); err != nil {
			return nil, err
		}
		return &models.MplusStaticMeta{Seasons: []models.MplusSeason{}}, nil
	}

	meta := &models.MplusStaticMeta{Seasons: make([]models.MplusSeason, 0, len(resp.Seasons))}
	for _, s := range resp.Seasons {
		season := models.MplusSeason{
			Slug:         s.Slug,
			Name:         s.Name,
			IsMainSeason: s.IsMainSeason,
			Starts:       datesOnly(s.Starts),
			Dungeons:     make([]models.MplusDungeon, 0, len(s.Dungeons)),
		}
		for _, d := range s.Dungeons {
			season.Dungeons = append(season.Dungeons, models.MplusDungeon{ID: d.ID, Slug: d.Slug, Name: d.Name, ShortName: d.ShortName})
		}
		meta.Seasons = append(meta.Seasons, season)
	}
	return meta, nil
}

// CharacterProfile fetches the requested keystone fields for a character.
// An unknown character returns an empty profile with no error.
func (c *DungeonClient) CharacterProfile(ctx context.Context, character models.Character, fields []string) (*models.DungeonProfile, error) {
	q := c.params()
	q.Set("region", strings.ToLower(character.Region))
	q.Set("realm", character.Realm)
	q.Set("name", character.Name)
	if len(fields) > 0 {
		q.Set("fields", strings.Join(fields, ","))
	}

	profile := &models.DungeonProfile{
		ScoresBySeason: map[string]float64{},
		BestRuns:       []models.DungeonRunRecord{},
		RecentRuns:     []models.DungeonRunRecord{},
		AlternateRuns:  []models.DungeonRunRecord{},
	}

	var resp characterProfileResponse
	if err := c.api.doJSON(ctx, &apiRequest{path: "/characters/profile", query: q}, &resp); err != nil {
		if err = notFoundAsEmpty(err); err != nil {
			return nil, err
		}
		return profile, nil
	}

	for _, s := range resp.ScoresBySeason {
		profile.ScoresBySeason[s.Season] = s.Scores["all"]
	}
	profile.BestRuns = convertRuns(resp.BestRuns)
	profile.RecentRuns = convertRuns(resp.RecentRuns)
	profile.AlternateRuns = convertRuns(resp.AlternateRuns)
	return profile, nil
}

// SeasonFields builds the profile fields for one season's scores and runs
func SeasonFields(seasonSlug string, includeRecent bool) []string {
	fields := []string{
		fmt.Sprintf("%s:%s", FieldScoresBySeason, seasonSlug),
		fmt.Sprintf("%s:%s", FieldBestRuns, seasonSlug),
		fmt.Sprintf("%s:%s", FieldAlternateRuns, seasonSlug),
	}
	if includeRecent {
		fields = append(fields, FieldRecentRuns)
	}
	return fields
}

// Health returns the provider's call health
func (c *DungeonClient) Health() *ProviderHealth {
	return c.api.Health()
}

func convertRuns(runs []dungeonRunPayload) []models.DungeonRunRecord {
	out := make([]models.DungeonRunRecord, 0, len(runs))
	for _, r := range runs {
		record := models.DungeonRunRecord{
			Dungeon:     r.Dungeon,
			ShortName:   r.ShortName,
			KeyLevel:    r.MythicLevel,
			Score:       r.Score,
			ClearTimeMs: r.ClearTimeMs,
			Upgrades:    r.NumKeystoneUpgrades,
		}
		if ts, err := time.Parse(time.RFC3339, r.CompletedAt); err == nil {
			ts = ts.UTC()
			record.CompletedAt = &ts
		}
		out = append(out, record)
	}
	return out
}

func iconURL(icon string) *string {
	if icon == "" {
		return nil
	}
	if strings.HasPrefix(icon, "http://") || strings.HasPrefix(icon, "https://") {
		return &icon
	}
	u := fmt.Sprintf(IconURLTemplate, icon)
	return &u
}

// datesOnly trims region timestamps to their calendar date
func datesOnly(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for region, ts := range in {
		if ts == "" {
			continue
		}
		if len(ts) > 10 {
			ts = ts[:10]
		}
		out[strings.ToLower(region)] = ts
	}
	return out
}
