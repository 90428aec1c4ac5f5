package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/raid-tracker/internal/config"
	"github.com/raid-tracker/internal/errors"
	"github.com/raid-tracker/internal/logging"
	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/ratelimit"
	"github.com/raid-tracker/internal/types"
)

// MaxEncountersPerRequest caps the aliased encounter lookups in one query
const MaxEncountersPerRequest = 12

const zoneDetailQuery = `query ZoneDetail($id: Int!) {
  worldData {
    zone(id: $id) {
      id
      name
      frozen
      expansion { id name }
      encounters { id name }
    }
  }
}`

const rateLimitQuery = `query { rateLimitData { limitPerHour pointsSpentThisHour pointsResetIn } }`

// CombatLogClient talks to the combat-log provider's GraphQL API
type CombatLogClient struct {
	api *apiClient
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

type zoneDetailData struct {
	WorldData struct {
		Zone *models.ZoneDetail `json:"zone"`
	} `json:"worldData"`
}

type rankingsData struct {
	CharacterData struct {
		Character map[string]json.RawMessage `json:"character"`
	} `json:"characterData"`
}

// encounterRanking is the JSON scalar returned by encounterRankings
type encounterRanking struct {
	TotalKills        int      `json:"totalKills"`
	FastestKill       *int64   `json:"fastestKill"`
	MedianPerformance *float64 `json:"medianPerformance"`
	Ranks             []struct {
		RankPercent float64 `json:"rankPercent"`
		Spec        string  `json:"spec"`
	} `json:"ranks"`
}

type rateLimitData struct {
	RateLimitData struct {
		LimitPerHour        int     `json:"limitPerHour"`
		PointsSpentThisHour float64 `json:"pointsSpentThisHour"`
		PointsResetIn       int     `json:"pointsResetIn"`
	} `json:"rateLimitData"`
}

// NewCombatLogClient creates a combat-log client; credentials are exchanged
// for a bearer token through the configured token URL.
func NewCombatLogClient(cfg *config.ProviderConfig, coordinator *ratelimit.Coordinator, logger *logging.Logger) (*CombatLogClient, error) {
	api, err := newAPIClient(types.ProviderCombatLog, cfg, coordinator, logger)
	if err != nil {
		return nil, err
	}
	return &CombatLogClient{api: api}, nil
}

func (c *CombatLogClient) query(ctx context.Context, query string, variables map[string]interface{}, dest interface{}) error {
	var resp graphQLResponse
	err := c.api.doJSON(ctx, &apiRequest{
		method: http.MethodPost,
		body:   graphQLRequest{Query: query, Variables: variables},
	}, &resp)
	if err != nil {
		return err
	}

	if len(resp.Errors) > 0 {
		messages := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			messages = append(messages, e.Message)
		}
		return errors.NewProviderError(types.ProviderCombatLog, fmt.Errorf("graphql: %s", strings.Join(messages, "; ")))
	}

	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(resp.Data, dest); err != nil {
		return errors.NewProviderError(types.ProviderCombatLog, fmt.Errorf("failed to decode graphql data: %w", err))
	}
	return nil
}

// ZoneDetail fetches a zone's structure. An unknown zone returns nil with no error.
func (c *CombatLogClient) ZoneDetail(ctx context.Context, zoneID int) (*models.ZoneDetail, error) {
	var data zoneDetailData
	err := c.query(ctx, zoneDetailQuery, map[string]interface{}{"id": zoneID}, &data)
	if err != nil {
		return nil, notFoundAsEmpty(err)
	}
	return data.WorldData.Zone, nil
}

// Rankings fetches a character's rankings for the given encounters at one difficulty.
// Encounters are batched into aliased queries of at most MaxEncountersPerRequest.
// Encounters without kills are omitted from the result.
func (c *CombatLogClient) Rankings(ctx context.Context, character models.Character, encounterIDs []int, difficulty types.Difficulty) (map[int]models.RankingSet, error) {
	result := make(map[int]models.RankingSet)

	for start := 0; start < len(encounterIDs); start += MaxEncountersPerRequest {
		end := start + MaxEncountersPerRequest
		if end > len(encounterIDs) {
			end = len(encounterIDs)
		}
		chunk := encounterIDs[start:end]

		var data rankingsData
		err := c.query(ctx, buildRankingsQuery(chunk), map[string]interface{}{
			"name":       character.Name,
			"server":     strings.ToLower(character.Realm),
			"region":     strings.ToUpper(character.Region),
			"difficulty": int(difficulty),
		}, &data)
		if err != nil {
			if errors.IsNotFound(err) {
				return result, nil
			}
			return nil, err
		}
		// unknown character
		if data.CharacterData.Character == nil {
			return result, nil
		}

		for _, encounterID := range chunk {
			raw, ok := data.CharacterData.Character[rankingAlias(encounterID)]
			if !ok || len(raw) == 0 || string(raw) == "null" {
				continue
			}
			set, err := parseEncounterRanking(raw, encounterID, difficulty)
			if err != nil {
				return nil, errors.NewProviderError(types.ProviderCombatLog, err)
			}
			if set != nil {
				result[encounterID] = *set
			}
		}
	}

	return result, nil
}

func rankingAlias(encounterID int) string {
	return fmt.Sprintf("e%d", encounterID)
}

func buildRankingsQuery(encounterIDs []int) string {
	var b strings.Builder
	b.WriteString("query Rankings($name: String!, $server: String!, $region: String!, $difficulty: Int!) {\n")
	b.WriteString("  characterData {\n")
	b.WriteString("    character(name: $name, serverSlug: $server, serverRegion: $region) {\n")
	for _, id := range encounterIDs {
		fmt.Fprintf(&b, "      %s: encounterRankings(encounterID: %d, difficulty: $difficulty)\n", rankingAlias(id), id)
	}
	b.WriteString("    }\n  }\n}")
	return b.String()
}

func parseEncounterRanking(raw json.RawMessage, encounterID int, difficulty types.Difficulty) (*models.RankingSet, error) {
	var ranking encounterRanking
	if err := json.Unmarshal(raw, &ranking); err != nil {
		return nil, fmt.Errorf("failed to decode rankings for encounter %d: %w", encounterID, err)
	}
	if ranking.TotalKills == 0 && len(ranking.Ranks) == 0 {
		return nil, nil
	}

	set := &models.RankingSet{
		EncounterID:   encounterID,
		Difficulty:    int(difficulty),
		Kills:         ranking.TotalKills,
		MedianPercent: ranking.MedianPerformance,
	}
	if ranking.FastestKill != nil && *ranking.FastestKill > 0 {
		fastest := *ranking.FastestKill
		set.FastestKillMs = &fastest
	}

	best := -1.0
	for _, r := range ranking.Ranks {
		if r.RankPercent > best {
			best = r.RankPercent
			if r.Spec != "" {
				spec := r.Spec
				set.Spec = &spec
			}
		}
	}
	if best >= 0 {
		set.BestPercent = &best
	}

	return set, nil
}

// RefreshRateLimit reads the provider's own quota accounting and applies it
func (c *CombatLogClient) RefreshRateLimit(ctx context.Context) error {
	var data rateLimitData
	if err := c.query(ctx, rateLimitQuery, nil, &data); err != nil {
		return err
	}

	rl := data.RateLimitData
	if rl.LimitPerHour <= 0 {
		return nil
	}
	remaining := rl.LimitPerHour - int(math.Ceil(rl.PointsSpentThisHour))
	resetAt := c.api.now().Add(time.Duration(rl.PointsResetIn) * time.Second)
	c.api.coordinator.ApplyAuthoritative(types.ProviderCombatLog, remaining, rl.LimitPerHour, resetAt)

	c.api.logger.WithFields(map[string]interface{}{
		"remaining": remaining,
		"limit":     rl.LimitPerHour,
		"reset_in":  rl.PointsResetIn,
	}).Debug("Refreshed combat-log quota")
	return nil
}

// Health returns the provider's call health
func (c *CombatLogClient) Health() *ProviderHealth {
	return c.api.Health()
}
