package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/raid-tracker/internal/config"
	"github.com/raid-tracker/internal/logging"
	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/ratelimit"
	"github.com/raid-tracker/internal/types"
)

const (
	// RegionPlaceholder in a profile base URL is replaced by the request region
	RegionPlaceholder = "{region}"

	defaultLocale       = "en_US"
	defaultStaticRegion = "us"
	iconAssetKey        = "icon"
)

// ProfileClient talks to the character-profile provider's REST API
type ProfileClient struct {
	api          *apiClient
	locale       string
	staticRegion string
}

type namedRef struct {
	Name string `json:"name"`
}

type profileResponse struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Level             int       `json:"level"`
	CharacterClass    *namedRef `json:"character_class"`
	ActiveSpec        *namedRef `json:"active_spec"`
	Race              *namedRef `json:"race"`
	Faction           *namedRef `json:"faction"`
	Guild             *namedRef `json:"guild"`
	EquippedItemLevel int       `json:"equipped_item_level"`
	AchievementPoints int       `json:"achievement_points"`
}

type mediaResponse struct {
	Assets []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"assets"`
}

type achievementsResponse struct {
	TotalQuantity int `json:"total_quantity"`
	TotalPoints   int `json:"total_points"`
	Achievements  []struct {
		ID          int `json:"id"`
		Achievement struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"achievement"`
		CompletedTimestamp int64 `json:"completed_timestamp"`
	} `json:"achievements"`
}

type achievementIndexResponse struct {
	Achievements []models.AchievementIndexEntry `json:"achievements"`
}

// NewProfileClient creates a character-profile client authenticated with client credentials
func NewProfileClient(cfg *config.ProviderConfig, coordinator *ratelimit.Coordinator, logger *logging.Logger) (*ProfileClient, error) {
	api, err := newAPIClient(types.ProviderProfile, cfg, coordinator, logger)
	if err != nil {
		return nil, err
	}

	client := &ProfileClient{
		api:          api,
		locale:       cfg.Locale,
		staticRegion: strings.ToLower(cfg.StaticRegion),
	}
	if client.locale == "" {
		client.locale = defaultLocale
	}
	if client.staticRegion == "" {
		client.staticRegion = defaultStaticRegion
	}
	return client, nil
}

func (c *ProfileClient) regionURL(region, path string) string {
	return strings.ReplaceAll(c.api.baseURL, RegionPlaceholder, region) + path
}

func (c *ProfileClient) characterPath(character models.Character, suffix string) (string, url.Values) {
	region := strings.ToLower(character.Region)
	path := fmt.Sprintf("/profile/wow/character/%s/%s%s",
		url.PathEscape(strings.ToLower(character.Realm)),
		url.PathEscape(strings.ToLower(character.Name)),
		suffix)

	q := url.Values{}
	q.Set("namespace", "profile-"+region)
	q.Set("locale", c.locale)
	return c.regionURL(region, path), q
}

func (c *ProfileClient) staticQuery() url.Values {
	q := url.Values{}
	q.Set("namespace", "static-"+c.staticRegion)
	q.Set("locale", c.locale)
	return q
}

// Profile fetches the character summary; an unknown character returns nil with no error
func (c *ProfileClient) Profile(ctx context.Context, character models.Character) (*models.ProfileSummary, error) {
	target, q := c.characterPath(character, "")

	var resp profileResponse
	if err := c.api.doJSON(ctx, &apiRequest{path: target, query: q}, &resp); err != nil {
		return nil, notFoundAsEmpty(err)
	}

	return &models.ProfileSummary{
		ID:                resp.ID,
		Name:              resp.Name,
		Level:             resp.Level,
		Class:             refName(resp.CharacterClass),
		ActiveSpec:        refName(resp.ActiveSpec),
		Race:              refName(resp.Race),
		Faction:           refName(resp.Faction),
		Guild:             refName(resp.Guild),
		ItemLevel:         resp.EquippedItemLevel,
		AchievementPoints: resp.AchievementPoints,
	}, nil
}

// Media fetches the character render assets
func (c *ProfileClient) Media(ctx context.Context, character models.Character) (*models.ProfileMedia, error) {
	target, q := c.characterPath(character, "/character-media")

	media := &models.ProfileMedia{Assets: map[string]string{}}
	var resp mediaResponse
	if err := c.api.doJSON(ctx, &apiRequest{path: target, query: q}, &resp); err != nil {
		if err = notFoundAsEmpty(err); err != nil {
			return nil, err
		}
		return media, nil
	}

	for _, a := range resp.Assets {
		media.Assets[a.Key] = a.Value
	}
	return media, nil
}

// Achievements fetches the character's earned achievements.
// An unknown character or hidden profile yields an empty summary with no error.
func (c *ProfileClient) Achievements(ctx context.Context, character models.Character) (*models.CharacterAchievements, error) {
	target, q := c.characterPath(character, "/achievements")

	result := &models.CharacterAchievements{Achievements: []models.AchievementRecord{}}
	var resp achievementsResponse
	if err := c.api.doJSON(ctx, &apiRequest{path: target, query: q}, &resp); err != nil {
		if err = notFoundAsEmpty(err); err != nil {
			return nil, err
		}
		return result, nil
	}

	result.TotalQuantity = resp.TotalQuantity
	result.TotalPoints = resp.TotalPoints
	for _, a := range resp.Achievements {
		record := models.AchievementRecord{ID: a.Achievement.ID, Name: a.Achievement.Name}
		if record.ID == 0 {
			record.ID = a.ID
		}
		if a.CompletedTimestamp > 0 {
			completed := time.UnixMilli(a.CompletedTimestamp).UTC()
			record.CompletedAt = &completed
		}
		result.Achievements = append(result.Achievements, record)
	}
	return result, nil
}

// AchievementIndex fetches the full achievement catalog
func (c *ProfileClient) AchievementIndex(ctx context.Context) ([]models.AchievementIndexEntry, error) {
	target := c.regionURL(c.staticRegion, "/data/wow/achievement/index")

	var resp achievementIndexResponse
	if err := c.api.doJSON(ctx, &apiRequest{path: target, query: c.staticQuery()}, &resp); err != nil {
		return nil, notFoundAsEmpty(err)
	}
	if resp.Achievements == nil {
		return []models.AchievementIndexEntry{}, nil
	}
	return resp.Achievements, nil
}

// AchievementIcon resolves an achievement's icon URL; nil when it has none
func (c *ProfileClient) AchievementIcon(ctx context.Context, achievementID int) (*string, error) {
	target := c.regionURL(c.staticRegion, fmt.Sprintf("/data/wow/media/achievement/%d", achievementID))

	var resp mediaResponse
	if err := c.api.doJSON(ctx, &apiRequest{path: target, query: c.staticQuery()}, &resp); err != nil {
		return nil, notFoundAsEmpty(err)
	}

	for _, a := range resp.Assets {
		if a.Key == iconAssetKey && a.Value != "" {
			icon := a.Value
			return &icon, nil
		}
	}
	return nil, nil
}

// Health returns the provider's call health
func (c *ProfileClient) Health() *ProviderHealth {
	return c.api.Health()
}

func refName(ref *namedRef) *string {
	if ref == nil || ref.Name == "" {
		return nil
	}
	name := ref.Name
	return &name
}
