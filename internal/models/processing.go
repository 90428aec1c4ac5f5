package models

import (
	"time"

	"github.com/raid-tracker/internal/types"
)

// ProcessingState tracks both pipeline stages for one tracked character
type ProcessingState struct {
	CharacterID            int64                  `json:"characterId" db:"character_id"`
	LightweightStatus      types.ProcessingStatus `json:"lightweightStatus" db:"lightweight_status"`
	DeepScanStatus         types.ProcessingStatus `json:"deepScanStatus" db:"deep_scan_status"`
	CurrentStep            *string                `json:"currentStep,omitempty" db:"current_step"`
	StepsCompleted         []string               `json:"stepsCompleted" db:"steps_completed"`
	TotalSteps             int                    `json:"totalSteps" db:"total_steps"`
	ErrorMessage           *string                `json:"errorMessage,omitempty" db:"error_message"`
	LightweightCompletedAt *time.Time             `json:"lightweightCompletedAt,omitempty" db:"lightweight_completed_at"`
	DeepScanCompletedAt    *time.Time             `json:"deepScanCompletedAt,omitempty" db:"deep_scan_completed_at"`
	UpdatedAt              time.Time              `json:"updatedAt" db:"updated_at"`

	// Generation increments on every reset. A write carrying an older
	// generation is discarded.
	Generation int64 `json:"generation" db:"generation"`
}

// StatusFor returns the status of the given stage
func (s *ProcessingState) StatusFor(stage types.Stage) types.ProcessingStatus {
	if stage == types.StageDeep {
		return s.DeepScanStatus
	}
	return s.LightweightStatus
}

// NewProcessingState returns the initial state created on first enqueue
func NewProcessingState(characterID int64, totalSteps int) *ProcessingState {
	return &ProcessingState{
		CharacterID:       characterID,
		LightweightStatus: types.StatusPending,
		DeepScanStatus:    types.StatusPending,
		StepsCompleted:    []string{},
		TotalSteps:        totalSteps,
		UpdatedAt:         time.Now().UTC(),
		Generation:        1,
	}
}

// QueueJob is one unit of work for a stage worker
type QueueJob struct {
	ID          string      `json:"id" db:"id"`
	CharacterID int64       `json:"characterId" db:"character_id"`
	Name        string      `json:"name" db:"name"`
	Realm       string      `json:"realm" db:"realm"`
	Region      string      `json:"region" db:"region"`
	Stage       types.Stage `json:"stage" db:"stage"`
	Priority    int         `json:"priority" db:"priority"` // not used for ordering
	RequestedBy string      `json:"requestedBy,omitempty" db:"requested_by"`
	EnqueuedAt  time.Time   `json:"enqueuedAt" db:"enqueued_at"`
}

// Character identifies a tracked character on the upstream providers
type Character struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Realm  string `json:"realm"`
	Region string `json:"region"`
}

// Character returns the character identity carried by the job
func (j *QueueJob) Character() Character {
	return Character{ID: j.CharacterID, Name: j.Name, Realm: j.Realm, Region: j.Region}
}
