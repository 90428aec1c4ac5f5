package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/raid-tracker/internal/errors"
	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/types"
)

// QueueRepository is the durable per-stage job queue, FIFO by enqueue time
type QueueRepository struct {
	db *PostgresDB
}

// NewQueueRepository creates a new queue repository
func NewQueueRepository(db *PostgresDB) *QueueRepository {
	return &QueueRepository{db: db}
}

func queueTable(stage types.Stage) (string, error) {
	switch stage {
	case types.StageLightweight:
		return "lightweight_queue", nil
	case types.StageDeep:
		return "deep_queue", nil
	default:
		return "", fmt.Errorf("unknown stage: %s", stage)
	}
}

// Push appends a job to its stage queue
func (r *QueueRepository) Push(ctx context.Context, job *models.QueueJob) error {
	table, err := queueTable(job.Stage)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, character_id, name, realm, region, priority, requested_by, enqueued_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
	`, table)

	_, err = r.db.Pool().Exec(ctx, query,
		job.ID,
		job.CharacterID,
		job.Name,
		job.Realm,
		job.Region,
		job.Priority,
		job.RequestedBy,
		job.EnqueuedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseError("enqueue "+string(job.Stage)+" job", err)
	}

	return nil
}

// Pop claims and returns the oldest unclaimed job of the stage, or nil when
// none is waiting. The job stays in the table until Ack.
func (r *QueueRepository) Pop(ctx context.Context, stage types.Stage) (*models.QueueJob, error) {
	table, err := queueTable(stage)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		UPDATE %[1]s SET claimed_at = NOW()
		WHERE id = (
			SELECT id FROM %[1]s
			WHERE claimed_at IS NULL
			ORDER BY enqueued_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id::text, character_id, name, realm, region, priority,
				  COALESCE(requested_by, ''), enqueued_at
	`, table)

	job := &models.QueueJob{Stage: stage}
	err = r.db.Pool().QueryRow(ctx, query).Scan(
		&job.ID,
		&job.CharacterID,
		&job.Name,
		&job.Realm,
		&job.Region,
		&job.Priority,
		&job.RequestedBy,
		&job.EnqueuedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("dequeue "+string(stage)+" job", err)
	}

	return job, nil
}

// Ack removes a finished job
func (r *QueueRepository) Ack(ctx context.Context, job *models.QueueJob) error {
	table, err := queueTable(job.Stage)
	if err != nil {
		return err
	}

	if _, err := r.db.Pool().Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), job.ID); err != nil {
		return apperrors.NewDatabaseError("ack "+string(job.Stage)+" job", err)
	}
	return nil
}

// Release returns every claimed job of the stage to the queue. It is called
// by the stage's single worker on start, when any claim left is orphaned.
func (r *QueueRepository) Release(ctx context.Context, stage types.Stage) (int, error) {
	table, err := queueTable(stage)
	if err != nil {
		return 0, err
	}

	tag, err := r.db.Pool().Exec(ctx, fmt.Sprintf(`UPDATE %s SET claimed_at = NULL WHERE claimed_at IS NOT NULL`, table))
	if err != nil {
		return 0, apperrors.NewDatabaseError("release "+string(stage)+" claims", err)
	}
	return int(tag.RowsAffected()), nil
}

// Len returns the number of unclaimed jobs waiting in the stage queue
func (r *QueueRepository) Len(ctx context.Context, stage types.Stage) (int, error) {
	table, err := queueTable(stage)
	if err != nil {
		return 0, err
	}

	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE claimed_at IS NULL`, table)
	if err := r.db.Pool().QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, apperrors.NewDatabaseError("count "+string(stage)+" queue", err)
	}
	return n, nil
}
