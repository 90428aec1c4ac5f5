package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/raid-tracker/internal/errors"
	"github.com/raid-tracker/internal/models"
)

// CharacterRepository handles fetched and computed per-character data
type CharacterRepository struct {
	db *PostgresDB
}

// NewCharacterRepository creates a new character data repository
func NewCharacterRepository(db *PostgresDB) *CharacterRepository {
	return &CharacterRepository{db: db}
}

// UpsertProfile writes the identity snapshot of a character, keeping achievement totals
func (r *CharacterRepository) UpsertProfile(ctx context.Context, p *models.CharacterProfile) error {
	query := `
		INSERT INTO character_profiles (
			character_id, name, realm, region, level, class, active_spec, race,
			faction, guild, item_level, avatar_url, achievement_points, achievement_count, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (character_id) DO UPDATE SET
			name = EXCLUDED.name,
			realm = EXCLUDED.realm,
			region = EXCLUDED.region,
			level = EXCLUDED.level,
			class = EXCLUDED.class,
			active_spec = EXCLUDED.active_spec,
			race = EXCLUDED.race,
			faction = EXCLUDED.faction,
			guild = EXCLUDED.guild,
			item_level = EXCLUDED.item_level,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = NOW()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		p.CharacterID, p.Name, p.Realm, p.Region, p.Level, p.Class, p.ActiveSpec, p.Race,
		p.Faction, p.Guild, p.ItemLevel, p.AvatarURL, p.AchievementPoints, p.AchievementCount,
	)
	if err != nil {
		return apperrors.NewDatabaseError("upsert character profile", err)
	}

	return nil
}

// UpdateAchievements stores achievement totals on the character's profile
func (r *CharacterRepository) UpdateAchievements(ctx context.Context, characterID int64, points, count int) error {
	query := `
		UPDATE character_profiles
		SET achievement_points = $2, achievement_count = $3, updated_at = NOW()
		WHERE character_id = $1
	`

	if _, err := r.db.Pool().Exec(ctx, query, characterID, points, count); err != nil {
		return apperrors.NewDatabaseError("update achievements", err)
	}
	return nil
}

// GetProfile returns the stored profile of a character, or nil
func (r *CharacterRepository) GetProfile(ctx context.Context, characterID int64) (*models.CharacterProfile, error) {
	query := `
		SELECT character_id, name, realm, region, level, class, active_spec, race,
			   faction, guild, item_level, avatar_url, achievement_points, achievement_count, updated_at
		FROM character_profiles
		WHERE character_id = $1
	`

	var p models.CharacterProfile
	err := r.db.Pool().QueryRow(ctx, query, characterID).Scan(
		&p.CharacterID, &p.Name, &p.Realm, &p.Region, &p.Level, &p.Class, &p.ActiveSpec, &p.Race,
		&p.Faction, &p.Guild, &p.ItemLevel, &p.AvatarURL, &p.AchievementPoints, &p.AchievementCount, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("get character profile", err)
	}

	return &p, nil
}

// DeleteRankings removes every stored ranking of a character
func (r *CharacterRepository) DeleteRankings(ctx context.Context, characterID int64) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM character_rankings WHERE character_id = $1`, characterID); err != nil {
		return apperrors.NewDatabaseError("delete rankings", err)
	}
	return nil
}

// InsertRankings stores ranking rows in one batch
func (r *CharacterRepository) InsertRankings(ctx context.Context, rankings []models.CharacterRanking) error {
	if len(rankings) == 0 {
		return nil
	}

	query := `
		INSERT INTO character_rankings (
			character_id, raid_id, encounter_id, difficulty, best_percent,
			median_percent, kills, fastest_kill_ms, spec, fetched_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (character_id, encounter_id, difficulty) DO UPDATE SET
			raid_id = EXCLUDED.raid_id,
			best_percent = EXCLUDED.best_percent,
			median_percent = EXCLUDED.median_percent,
			kills = EXCLUDED.kills,
			fastest_kill_ms = EXCLUDED.fastest_kill_ms,
			spec = EXCLUDED.spec,
			fetched_at = EXCLUDED.fetched_at
	`

	batch := &pgx.Batch{}
	for _, rk := range rankings {
		batch.Queue(query,
			rk.CharacterID, rk.RaidID, rk.EncounterID, rk.Difficulty, rk.BestPercent,
			rk.MedianPercent, rk.Kills, rk.FastestKillMs, rk.Spec, rk.FetchedAt,
		)
	}

	if err := r.db.sendBatch(ctx, batch); err != nil {
		return apperrors.NewDatabaseError("insert rankings", err)
	}
	return nil
}

// ListRankings returns the stored rankings of a character
func (r *CharacterRepository) ListRankings(ctx context.Context, characterID int64) ([]models.CharacterRanking, error) {
	query := `
		SELECT character_id, raid_id, encounter_id, difficulty, best_percent,
			   median_percent, kills, fastest_kill_ms, spec, fetched_at
		FROM character_rankings
		WHERE character_id = $1
		ORDER BY raid_id, encounter_id, difficulty
	`

	rows, err := r.db.Pool().Query(ctx, query, characterID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list rankings", err)
	}
	defer rows.Close()

	var rankings []models.CharacterRanking
	for rows.Next() {
		var rk models.CharacterRanking
		if err := rows.Scan(
			&rk.CharacterID, &rk.RaidID, &rk.EncounterID, &rk.Difficulty, &rk.BestPercent,
			&rk.MedianPercent, &rk.Kills, &rk.FastestKillMs, &rk.Spec, &rk.FetchedAt,
		); err != nil {
			return nil, apperrors.NewDatabaseError("scan ranking", err)
		}
		rankings = append(rankings, rk)
	}

	return rankings, rows.Err()
}

// DeleteDungeonRuns removes every stored dungeon run of a character
func (r *CharacterRepository) DeleteDungeonRuns(ctx context.Context, characterID int64) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM character_dungeon_runs WHERE character_id = $1`, characterID); err != nil {
		return apperrors.NewDatabaseError("delete dungeon runs", err)
	}
	return nil
}

// InsertDungeonRuns stores dungeon runs in one batch
func (r *CharacterRepository) InsertDungeonRuns(ctx context.Context, runs []models.DungeonRun) error {
	if len(runs) == 0 {
		return nil
	}

	query := `
		INSERT INTO character_dungeon_runs (
			character_id, season, dungeon, key_level, score, timed, clear_time_ms, completed_at, source
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	batch := &pgx.Batch{}
	for _, run := range runs {
		batch.Queue(query,
			run.CharacterID, run.Season, run.Dungeon, run.KeyLevel, run.Score,
			run.Timed, run.ClearTimeMs, run.CompletedAt, run.Source,
		)
	}

	if err := r.db.sendBatch(ctx, batch); err != nil {
		return apperrors.NewDatabaseError("insert dungeon runs", err)
	}
	return nil
}

// ListDungeonRuns returns the stored dungeon runs of a character
func (r *CharacterRepository) ListDungeonRuns(ctx context.Context, characterID int64) ([]models.DungeonRun, error) {
	query := `
		SELECT character_id, season, dungeon, key_level, score, timed, clear_time_ms, completed_at, source
		FROM character_dungeon_runs
		WHERE character_id = $1
		ORDER BY season, key_level DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, characterID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list dungeon runs", err)
	}
	defer rows.Close()

	var runs []models.DungeonRun
	for rows.Next() {
		var run models.DungeonRun
		if err := rows.Scan(
			&run.CharacterID, &run.Season, &run.Dungeon, &run.KeyLevel, &run.Score,
			&run.Timed, &run.ClearTimeMs, &run.CompletedAt, &run.Source,
		); err != nil {
			return nil, apperrors.NewDatabaseError("scan dungeon run", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// SaveStatistics writes the aggregate statistics of a character
func (r *CharacterRepository) SaveStatistics(ctx context.Context, s *models.CharacterStatistics) error {
	query := `
		INSERT INTO character_statistics (
			character_id, encounters_ranked, heroic_kills, mythic_kills, best_raid_percent,
			average_raid_percent, dungeon_runs, timed_runs, highest_key_level,
			season_scores, achievement_points, computed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (character_id) DO UPDATE SET
			encounters_ranked = EXCLUDED.encounters_ranked,
			heroic_kills = EXCLUDED.heroic_kills,
			mythic_kills = EXCLUDED.mythic_kills,
			best_raid_percent = EXCLUDED.best_raid_percent,
			average_raid_percent = EXCLUDED.average_raid_percent,
			dungeon_runs = EXCLUDED.dungeon_runs,
			timed_runs = EXCLUDED.timed_runs,
			highest_key_level = EXCLUDED.highest_key_level,
			season_scores = EXCLUDED.season_scores,
			achievement_points = EXCLUDED.achievement_points,
			computed_at = EXCLUDED.computed_at
	`

	scores := s.SeasonScores
	if scores == nil {
		scores = []models.SeasonScore{}
	}

	_, err := r.db.Pool().Exec(ctx, query,
		s.CharacterID, s.EncountersRanked, s.HeroicKills, s.MythicKills, s.BestRaidPercent,
		s.AverageRaidPercent, s.DungeonRuns, s.TimedRuns, s.HighestKeyLevel,
		scores, s.AchievementPoints, s.ComputedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseError("save statistics", err)
	}

	return nil
}

// DeleteStatistics removes the aggregate statistics of a character
func (r *CharacterRepository) DeleteStatistics(ctx context.Context, characterID int64) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM character_statistics WHERE character_id = $1`, characterID); err != nil {
		return apperrors.NewDatabaseError("delete statistics", err)
	}
	return nil
}

// SaveSummary writes the narrative summary of a character
func (r *CharacterRepository) SaveSummary(ctx context.Context, s *models.NarrativeSummary) error {
	query := `
		INSERT INTO character_summaries (character_id, summary, generated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (character_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			generated_at = EXCLUDED.generated_at
	`

	if _, err := r.db.Pool().Exec(ctx, query, s.CharacterID, s.Summary, s.GeneratedAt); err != nil {
		return apperrors.NewDatabaseError("save summary", err)
	}
	return nil
}

// DeleteSummary removes the narrative summary of a character
func (r *CharacterRepository) DeleteSummary(ctx context.Context, characterID int64) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM character_summaries WHERE character_id = $1`, characterID); err != nil {
		return apperrors.NewDatabaseError("delete summary", err)
	}
	return nil
}
