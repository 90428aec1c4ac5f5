package job

import (
	"context"
	"time"

	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/storage"
	"github.com/raid-tracker/internal/types"
)

// ProcessingStore persists one ProcessingState per character.
// Get returns nil with no error when the character has never been enqueued.
// Reset starts a new generation; SaveStage reports false when the state it
// carries belongs to an older generation and nothing was written.
type ProcessingStore interface {
	CreateIfAbsent(ctx context.Context, state *models.ProcessingState) error
	Get(ctx context.Context, characterID int64) (*models.ProcessingState, error)
	Reset(ctx context.Context, characterID int64, totalSteps int, at time.Time) (*models.ProcessingState, error)
	SaveStage(ctx context.Context, state *models.ProcessingState, stage types.Stage) (bool, error)
}

// QueueStore is a durable FIFO per stage. Pop returns nil when the stage is empty.
type QueueStore interface {
	Push(ctx context.Context, job *models.QueueJob) error
	Pop(ctx context.Context, stage types.Stage) (*models.QueueJob, error)
	Len(ctx context.Context, stage types.Stage) (int, error)
}

// CharacterStore holds everything the pipeline fetches or computes for a character
type CharacterStore interface {
	UpsertProfile(ctx context.Context, p *models.CharacterProfile) error
	UpdateAchievements(ctx context.Context, characterID int64, points, count int) error
	GetProfile(ctx context.Context, characterID int64) (*models.CharacterProfile, error)
	DeleteRankings(ctx context.Context, characterID int64) error
	InsertRankings(ctx context.Context, rankings []models.CharacterRanking) error
	ListRankings(ctx context.Context, characterID int64) ([]models.CharacterRanking, error)
	DeleteDungeonRuns(ctx context.Context, characterID int64) error
	InsertDungeonRuns(ctx context.Context, runs []models.DungeonRun) error
	ListDungeonRuns(ctx context.Context, characterID int64) ([]models.DungeonRun, error)
	SaveStatistics(ctx context.Context, s *models.CharacterStatistics) error
	DeleteStatistics(ctx context.Context, characterID int64) error
	SaveSummary(ctx context.Context, s *models.NarrativeSummary) error
	DeleteSummary(ctx context.Context, characterID int64) error
}

// CatalogReader lists the raids whose encounters are fetched for rankings
type CatalogReader interface {
	ListRaidsWithBosses(ctx context.Context) ([]models.RaidWithBosses, error)
}

// Cache is the external API cache used for season slug discovery
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	PutJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

var (
	_ ProcessingStore = (*storage.ProcessingRepository)(nil)
	_ QueueStore      = (*storage.QueueRepository)(nil)
	_ CharacterStore  = (*storage.CharacterRepository)(nil)
	_ CatalogReader   = (*storage.CatalogRepository)(nil)
	_ Cache           = (*storage.CacheService)(nil)
)
