package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/raid-tracker/internal/errors"
	"github.com/raid-tracker/internal/models"
)

// CatalogRepository handles the expansion, season, raid and boss hierarchy
type CatalogRepository struct {
	db *PostgresDB
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *PostgresDB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// upsertReturning runs an upsert ending in RETURNING id, (xmax = 0)
func (r *CatalogRepository) upsertReturning(ctx context.Context, what, query string, args ...interface{}) (models.UpsertResult, error) {
	var res models.UpsertResult
	if err := r.db.Pool().QueryRow(ctx, query, args...).Scan(&res.ID, &res.Inserted); err != nil {
		return res, apperrors.NewDatabaseError("upsert "+what, err)
	}
	return res, nil
}

// UpsertExpansion inserts or updates an expansion keyed by slug
func (r *CatalogRepository) UpsertExpansion(ctx context.Context, exp *models.Expansion) (models.UpsertResult, error) {
	query := `
		INSERT INTO expansions (slug, name, source_expansion_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			source_expansion_id = EXCLUDED.source_expansion_id,
			updated_at = NOW()
		RETURNING id, (xmax = 0)
	`
	return r.upsertReturning(ctx, "expansion", query, exp.Slug, exp.Name, exp.SourceExpansionID)
}

// FindExpansionBySourceID returns the expansion with the given combat-log id, or nil
func (r *CatalogRepository) FindExpansionBySourceID(ctx context.Context, sourceID int) (*models.Expansion, error) {
	query := `
		SELECT id, slug, name, source_expansion_id, updated_at
		FROM expansions
		WHERE source_expansion_id = $1
	`

	var exp models.Expansion
	err := r.db.Pool().QueryRow(ctx, query, sourceID).Scan(
		&exp.ID,
		&exp.Slug,
		&exp.Name,
		&exp.SourceExpansionID,
		&exp.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("get expansion", err)
	}

	return &exp, nil
}

// UpsertSeason inserts or updates a season keyed by slug
func (r *CatalogRepository) UpsertSeason(ctx context.Context, season *models.Season) (models.UpsertResult, error) {
	query := `
		INSERT INTO seasons (slug, number, expansion_id, external_season_slug, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (slug) DO UPDATE SET
			number = EXCLUDED.number,
			expansion_id = EXCLUDED.expansion_id,
			external_season_slug = EXCLUDED.external_season_slug,
			updated_at = NOW()
		RETURNING id, (xmax = 0)
	`
	return r.upsertReturning(ctx, "season", query,
		season.Slug, season.Number, season.ExpansionID, season.ExternalSeasonSlug)
}

// GetRaidBySourceZoneID returns the raid for a combat-log zone, or nil
func (r *CatalogRepository) GetRaidBySourceZoneID(ctx context.Context, zoneID int) (*models.Raid, error) {
	query := `
		SELECT id, season_id, expansion_id, source_zone_id, name, slug, icon_url,
			   region_start_dates, region_end_dates, updated_at
		FROM raids
		WHERE source_zone_id = $1
	`

	raid, err := scanRaid(r.db.Pool().QueryRow(ctx, query, zoneID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("get raid", err)
	}
	return raid, nil
}

func scanRaid(row pgx.Row) (*models.Raid, error) {
	var raid models.Raid
	err := row.Scan(
		&raid.ID,
		&raid.SeasonID,
		&raid.ExpansionID,
		&raid.SourceZoneID,
		&raid.Name,
		&raid.Slug,
		&raid.IconURL,
		&raid.RegionStartDates,
		&raid.RegionEndDates,
		&raid.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &raid, nil
}

// UpsertRaid inserts or updates a raid keyed by source zone id
func (r *CatalogRepository) UpsertRaid(ctx context.Context, raid *models.Raid) (models.UpsertResult, error) {
	query := `
		INSERT INTO raids (
			season_id, expansion_id, source_zone_id, name, slug, icon_url,
			region_start_dates, region_end_dates, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (source_zone_id) DO UPDATE SET
			season_id = EXCLUDED.season_id,
			expansion_id = EXCLUDED.expansion_id,
			name = EXCLUDED.name,
			slug = EXCLUDED.slug,
			icon_url = EXCLUDED.icon_url,
			region_start_dates = EXCLUDED.region_start_dates,
			region_end_dates = EXCLUDED.region_end_dates,
			updated_at = NOW()
		RETURNING id, (xmax = 0)
	`
	return r.upsertReturning(ctx, "raid", query,
		raid.SeasonID,
		raid.ExpansionID,
		raid.SourceZoneID,
		raid.Name,
		raid.Slug,
		raid.IconURL,
		nonNilMap(raid.RegionStartDates),
		nonNilMap(raid.RegionEndDates),
	)
}

// GetBoss returns the boss of a raid with the given encounter id, or nil
func (r *CatalogRepository) GetBoss(ctx context.Context, raidID int64, encounterID int) (*models.Boss, error) {
	query := `
		SELECT id, raid_id, source_encounter_id, name, slug, position, icon_url, updated_at
		FROM bosses
		WHERE raid_id = $1 AND source_encounter_id = $2
	`

	var boss models.Boss
	err := r.db.Pool().QueryRow(ctx, query, raidID, encounterID).Scan(
		&boss.ID,
		&boss.RaidID,
		&boss.SourceEncounterID,
		&boss.Name,
		&boss.Slug,
		&boss.Position,
		&boss.IconURL,
		&boss.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("get boss", err)
	}

	return &boss, nil
}

// UpsertBoss inserts or updates a boss keyed by (raid id, source encounter id)
func (r *CatalogRepository) UpsertBoss(ctx context.Context, boss *models.Boss) (models.UpsertResult, error) {
	query := `
		INSERT INTO bosses (raid_id, source_encounter_id, name, slug, position, icon_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (raid_id, source_encounter_id) DO UPDATE SET
			name = EXCLUDED.name,
			slug = EXCLUDED.slug,
			position = EXCLUDED.position,
			icon_url = EXCLUDED.icon_url,
			updated_at = NOW()
		RETURNING id, (xmax = 0)
	`
	return r.upsertReturning(ctx, "boss", query,
		boss.RaidID, boss.SourceEncounterID, boss.Name, boss.Slug, boss.Position, boss.IconURL)
}

// ListRaidsWithBosses returns every raid with its season slug and bosses in encounter order
func (r *CatalogRepository) ListRaidsWithBosses(ctx context.Context) ([]models.RaidWithBosses, error) {
	query := `
		SELECT r.id, r.season_id, r.expansion_id, r.source_zone_id, r.name, r.slug, r.icon_url,
			   r.region_start_dates, r.region_end_dates, r.updated_at, s.slug
		FROM raids r
		JOIN seasons s ON s.id = r.season_id
		ORDER BY s.number, r.source_zone_id
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list raids", err)
	}
	defer rows.Close()

	var raids []models.RaidWithBosses
	index := make(map[int64]int)
	for rows.Next() {
		var rw models.RaidWithBosses
		if err := rows.Scan(
			&rw.ID,
			&rw.SeasonID,
			&rw.ExpansionID,
			&rw.SourceZoneID,
			&rw.Name,
			&rw.Slug,
			&rw.IconURL,
			&rw.RegionStartDates,
			&rw.RegionEndDates,
			&rw.UpdatedAt,
			&rw.SeasonSlug,
		); err != nil {
			return nil, apperrors.NewDatabaseError("scan raid", err)
		}
		rw.Bosses = []models.Boss{}
		index[rw.ID] = len(raids)
		raids = append(raids, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate raids", err)
	}

	bossRows, err := r.db.Pool().Query(ctx, `
		SELECT id, raid_id, source_encounter_id, name, slug, position, icon_url, updated_at
		FROM bosses
		ORDER BY raid_id, position
	`)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list bosses", err)
	}
	defer bossRows.Close()

	for bossRows.Next() {
		var boss models.Boss
		if err := bossRows.Scan(
			&boss.ID,
			&boss.RaidID,
			&boss.SourceEncounterID,
			&boss.Name,
			&boss.Slug,
			&boss.Position,
			&boss.IconURL,
			&boss.UpdatedAt,
		); err != nil {
			return nil, apperrors.NewDatabaseError("scan boss", err)
		}
		if i, ok := index[boss.RaidID]; ok {
			raids[i].Bosses = append(raids[i].Bosses, boss)
		}
	}

	return raids, bossRows.Err()
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
