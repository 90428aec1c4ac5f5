package catalog

import (
	"context"
	"time"

	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/storage"
)

// Store persists the catalog hierarchy. Upserts are keyed by expansion slug,
// season slug, raid source zone id and (raid id, source encounter id).
// Lookups return nil with no error when the row is absent.
type Store interface {
	UpsertExpansion(ctx context.Context, exp *models.Expansion) (models.UpsertResult, error)
	FindExpansionBySourceID(ctx context.Context, sourceID int) (*models.Expansion, error)
	UpsertSeason(ctx context.Context, season *models.Season) (models.UpsertResult, error)
	GetRaidBySourceZoneID(ctx context.Context, zoneID int) (*models.Raid, error)
	UpsertRaid(ctx context.Context, raid *models.Raid) (models.UpsertResult, error)
	GetBoss(ctx context.Context, raidID int64, encounterID int) (*models.Boss, error)
	UpsertBoss(ctx context.Context, boss *models.Boss) (models.UpsertResult, error)
	ListRaidsWithBosses(ctx context.Context) ([]models.RaidWithBosses, error)
}

// Cache is the external API cache as seen by the sync engine
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	PutJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

var (
	_ Store = (*storage.CatalogRepository)(nil)
	_ Cache = (*storage.CacheService)(nil)
)
