package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/raid-tracker/internal/errors"
	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/types"
)

const stateColumns = `character_id, lightweight_status, deep_scan_status, current_step,
			   steps_completed, total_steps, error_message,
			   lightweight_completed_at, deep_scan_completed_at, updated_at, generation`

// ProcessingRepository handles per-character processing state persistence
type ProcessingRepository struct {
	db *PostgresDB
}

// NewProcessingRepository creates a new processing state repository
func NewProcessingRepository(db *PostgresDB) *ProcessingRepository {
	return &ProcessingRepository{db: db}
}

// CreateIfAbsent inserts the state unless a row for the character already exists
func (r *ProcessingRepository) CreateIfAbsent(ctx context.Context, state *models.ProcessingState) error {
	query := `
		INSERT INTO processing_state (` + stateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (character_id) DO NOTHING
	`

	generation := state.Generation
	if generation == 0 {
		generation = 1
	}
	steps := state.StepsCompleted
	if steps == nil {
		steps = []string{}
	}

	_, err := r.db.Pool().Exec(ctx, query,
		state.CharacterID,
		string(state.LightweightStatus),
		string(state.DeepScanStatus),
		state.CurrentStep,
		steps,
		state.TotalSteps,
		state.ErrorMessage,
		state.LightweightCompletedAt,
		state.DeepScanCompletedAt,
		state.UpdatedAt,
		generation,
	)
	if err != nil {
		return apperrors.NewDatabaseError("create processing state", err)
	}

	return nil
}

// Get retrieves the processing state of a character, or nil if none exists
func (r *ProcessingRepository) Get(ctx context.Context, characterID int64) (*models.ProcessingState, error) {
	query := `SELECT ` + stateColumns + ` FROM processing_state WHERE character_id = $1`

	state, err := scanState(r.db.Pool().QueryRow(ctx, query, characterID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("get processing state", err)
	}

	return state, nil
}

// Reset returns both stages of the character to pending, clears progress and
// starts a new generation. The row is created if missing.
func (r *ProcessingRepository) Reset(ctx context.Context, characterID int64, totalSteps int, at time.Time) (*models.ProcessingState, error) {
	query := `
		INSERT INTO processing_state (
			character_id, lightweight_status, deep_scan_status, steps_completed,
			total_steps, updated_at, generation
		)
		VALUES ($1, $2, $2, '{}', $3, $4, 1)
		ON CONFLICT (character_id) DO UPDATE SET
			lightweight_status = EXCLUDED.lightweight_status,
			deep_scan_status = EXCLUDED.deep_scan_status,
			current_step = NULL,
			steps_completed = '{}',
			total_steps = EXCLUDED.total_steps,
			error_message = NULL,
			lightweight_completed_at = NULL,
			deep_scan_completed_at = NULL,
			updated_at = EXCLUDED.updated_at,
			generation = processing_state.generation + 1
		RETURNING ` + stateColumns

	state, err := scanState(r.db.Pool().QueryRow(ctx, query, characterID, string(types.StatusPending), totalSteps, at))
	if err != nil {
		return nil, apperrors.NewDatabaseError("reset processing state", err)
	}

	return state, nil
}

// SaveStage writes the columns owned by one stage run: the stage's status and
// completion time plus the shared progress fields. The update only applies
// while the row is still at state.Generation; it reports false otherwise.
func (r *ProcessingRepository) SaveStage(ctx context.Context, state *models.ProcessingState, stage types.Stage) (bool, error) {
	statusColumn, completedColumn := "lightweight_status", "lightweight_completed_at"
	completedAt := state.LightweightCompletedAt
	if stage == types.StageDeep {
		statusColumn, completedColumn = "deep_scan_status", "deep_scan_completed_at"
		completedAt = state.DeepScanCompletedAt
	}

	query := fmt.Sprintf(`
		UPDATE processing_state SET
			%s = $3,
			%s = $4,
			current_step = $5,
			steps_completed = $6,
			error_message = $7,
			updated_at = $8
		WHERE character_id = $1 AND generation = $2
	`, statusColumn, completedColumn)

	steps := state.StepsCompleted
	if steps == nil {
		steps = []string{}
	}

	tag, err := r.db.Pool().Exec(ctx, query,
		state.CharacterID,
		state.Generation,
		string(state.StatusFor(stage)),
		completedAt,
		state.CurrentStep,
		steps,
		state.ErrorMessage,
		state.UpdatedAt,
	)
	if err != nil {
		return false, apperrors.NewDatabaseError("save processing state", err)
	}

	return tag.RowsAffected() > 0, nil
}

func scanState(row pgx.Row) (*models.ProcessingState, error) {
	var state models.ProcessingState
	err := row.Scan(
		&state.CharacterID,
		&state.LightweightStatus,
		&state.DeepScanStatus,
		&state.CurrentStep,
		&state.StepsCompleted,
		&state.TotalSteps,
		&state.ErrorMessage,
		&state.LightweightCompletedAt,
		&state.DeepScanCompletedAt,
		&state.UpdatedAt,
		&state.Generation,
	)
	if err != nil {
		return nil, err
	}
	if state.StepsCompleted == nil {
		state.StepsCompleted = []string{}
	}
	return &state, nil
}
