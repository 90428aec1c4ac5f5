package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/types"
)

// StructureProvider fetches raid zone structure (zone -> encounters)
type StructureProvider interface {
	ZoneDetail(ctx context.Context, zoneID int) (*models.ZoneDetail, error)
}

// StaticMetaProvider fetches static raid and mythic+ metadata per expansion
type StaticMetaProvider interface {
	StaticRaidMeta(ctx context.Context, expansionID int) ([]models.RaidStaticMeta, error)
	StaticMplusMeta(ctx context.Context, expansionID int) (*models.MplusStaticMeta, error)
}

// IconProvider resolves achievement icons
type IconProvider interface {
	AchievementIndex(ctx context.Context) ([]models.AchievementIndexEntry, error)
	AchievementIcon(ctx context.Context, achievementID int) (*string, error)
}

// RankingsProvider fetches per-encounter performance for one character
type RankingsProvider interface {
	Rankings(ctx context.Context, character models.Character, encounterIDs []int, difficulty types.Difficulty) (map[int]models.RankingSet, error)
}

// DungeonProfileProvider fetches keystone scores and runs for one character
type DungeonProfileProvider interface {
	CharacterProfile(ctx context.Context, character models.Character, fields []string) (*models.DungeonProfile, error)
}

// CharacterProfileProvider fetches identity data for one character
type CharacterProfileProvider interface {
	Profile(ctx context.Context, character models.Character) (*models.ProfileSummary, error)
	Media(ctx context.Context, character models.Character) (*models.ProfileMedia, error)
	Achievements(ctx context.Context, character models.Character) (*models.CharacterAchievements, error)
}

// ProviderHealth represents the call health of one upstream provider
type ProviderHealth struct {
	Provider         types.Provider `json:"provider"`
	TotalRequests    int64          `json:"totalRequests"`
	SuccessfulReqs   int64          `json:"successfulRequests"`
	FailedReqs       int64          `json:"failedRequests"`
	SuccessRate      float64        `json:"successRate"`
	AverageLatency   time.Duration  `json:"averageLatency"`
	LastSuccess      time.Time      `json:"lastSuccess"`
	LastFailure      time.Time      `json:"lastFailure"`
	LastError        string         `json:"lastError,omitempty"`
	ConsecutiveFails int            `json:"consecutiveFails"`
	IsHealthy        bool           `json:"isHealthy"`
}

// HealthReporter is implemented by every provider client
type HealthReporter interface {
	Health() *ProviderHealth
}

// healthTracker records call outcomes for one provider
type healthTracker struct {
	mu sync.RWMutex

	provider            types.Provider
	totalRequests       int64
	successfulReqs      int64
	failedReqs          int64
	totalLatency        time.Duration
	lastSuccess         time.Time
	lastFailure         time.Time
	lastError           string
	consecutiveFails    int
	maxConsecutiveFails int
	minSuccessRate      float64
}

func newHealthTracker(provider types.Provider) *healthTracker {
	return &healthTracker{
		provider:            provider,
		maxConsecutiveFails: 5,
		minSuccessRate:      0.5,
	}
}

func (h *healthTracker) recordSuccess(duration time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalRequests++
	h.successfulReqs++
	h.totalLatency += duration
	h.lastSuccess = time.Now()
	h.consecutiveFails = 0
}

func (h *healthTracker) recordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalRequests++
	h.failedReqs++
	h.lastFailure = time.Now()
	h.consecutiveFails++
	if err != nil {
		h.lastError = err.Error()
	}
}

func (h *healthTracker) snapshot() *ProviderHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var successRate float64
	if h.totalRequests > 0 {
		successRate = float64(h.successfulReqs) / float64(h.totalRequests)
	}

	var avgLatency time.Duration
	if h.successfulReqs > 0 {
		avgLatency = h.totalLatency / time.Duration(h.successfulReqs)
	}

	healthy := h.consecutiveFails < h.maxConsecutiveFails
	// success rate only counts once there is enough data
	if h.totalRequests >= 10 && successRate < h.minSuccessRate {
		healthy = false
	}

	return &ProviderHealth{
		Provider:         h.provider,
		TotalRequests:    h.totalRequests,
		SuccessfulReqs:   h.successfulReqs,
		FailedReqs:       h.failedReqs,
		SuccessRate:      successRate,
		AverageLatency:   avgLatency,
		LastSuccess:      h.lastSuccess,
		LastFailure:      h.lastFailure,
		LastError:        h.lastError,
		ConsecutiveFails: h.consecutiveFails,
		IsHealthy:        healthy,
	}
}

var (
	_ StructureProvider        = (*CombatLogClient)(nil)
	_ RankingsProvider         = (*CombatLogClient)(nil)
	_ StaticMetaProvider       = (*DungeonClient)(nil)
	_ DungeonProfileProvider   = (*DungeonClient)(nil)
	_ IconProvider             = (*ProfileClient)(nil)
	_ CharacterProfileProvider = (*ProfileClient)(nil)
	_ HealthReporter           = (*CombatLogClient)(nil)
)
