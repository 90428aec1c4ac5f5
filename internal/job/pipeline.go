// Package job implements the two-stage character processing pipeline.
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raid-tracker/internal/adapter"
	"github.com/raid-tracker/internal/broadcast"
	"github.com/raid-tracker/internal/logging"
	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/types"
)

// Step names recorded in ProcessingState.StepsCompleted
const (
	StepFetchProfile      = "fetch_profile"
	StepFetchAchievements = "fetch_achievements"
	StepFetchRankings     = "fetch_rankings"
	StepFetchDungeonRuns  = "fetch_dungeon_runs"
	StepComputeStatistics = "compute_statistics"
	StepFetchEvents       = "fetch_events"
	StepGenerateNarrative = "generate_narrative"
)

// LightweightSteps and DeepSteps are the ordered step lists of each stage
var (
	LightweightSteps = []string{StepFetchProfile, StepFetchAchievements, StepFetchRankings, StepFetchDungeonRuns, StepComputeStatistics}
	DeepSteps        = []string{StepFetchEvents, StepComputeStatistics, StepGenerateNarrative}
)

// TotalSteps is the number of step boundaries across both stages
var TotalSteps = len(LightweightSteps) + len(DeepSteps)

// errStateReset reports that the character was reset while a stage was
// running; the run is abandoned and the fresh lightweight job takes over.
var errStateReset = errors.New("processing state was reset")

// ranked difficulties fetched for every tracked raid
var rankedDifficulties = []types.Difficulty{types.DifficultyHeroic, types.DifficultyMythic}

// PipelineConfig holds the collaborators of a Pipeline
type PipelineConfig struct {
	Processing ProcessingStore
	Queue      QueueStore
	Characters CharacterStore
	Catalog    CatalogReader
	Cache      Cache

	Profiles   adapter.CharacterProfileProvider
	Rankings   adapter.RankingsProvider
	Dungeons   adapter.DungeonProfileProvider
	StaticMeta adapter.StaticMetaProvider
	Narrator   NarrativeGenerator

	Broadcaster *broadcast.Broadcaster
	Logger      *logging.Logger

	// Seasons are the tracked season definitions; rankings are fetched for
	// raids of these seasons and dungeon seasons are discovered per
	// StaticMetaExpansionID.
	Seasons []models.SeasonDefinition

	Now func() time.Time
}

// Validate checks that all required collaborators are set
func (c *PipelineConfig) Validate() error {
	switch {
	case c.Processing == nil:
		return fmt.Errorf("processing store cannot be nil")
	case c.Queue == nil:
		return fmt.Errorf("queue store cannot be nil")
	case c.Characters == nil:
		return fmt.Errorf("character store cannot be nil")
	case c.Catalog == nil:
		return fmt.Errorf("catalog reader cannot be nil")
	case c.Cache == nil:
		return fmt.Errorf("cache cannot be nil")
	case c.Profiles == nil:
		return fmt.Errorf("profile provider cannot be nil")
	case c.Rankings == nil:
		return fmt.Errorf("rankings provider cannot be nil")
	case c.Dungeons == nil:
		return fmt.Errorf("dungeon provider cannot be nil")
	case c.StaticMeta == nil:
		return fmt.Errorf("static meta provider cannot be nil")
	case c.Broadcaster == nil:
		return fmt.Errorf("broadcaster cannot be nil")
	}
	return nil
}

// Pipeline turns queue jobs into step-tracked processing runs.
// Each stage is executed by exactly one worker. A stage run only writes the
// generation of ProcessingState it loaded, so a Reenqueue issued mid-run wins.
type Pipeline struct {
	cfg    PipelineConfig
	logger *logging.Logger
	now    func() time.Time

	mu      sync.RWMutex
	onQueue []func(types.Stage)
}

// NewPipeline creates a pipeline from a validated config
func NewPipeline(cfg *PipelineConfig) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pipeline config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{cfg: *cfg, logger: cfg.Logger, now: cfg.Now}
	if p.logger == nil {
		p.logger = logging.GetGlobalLogger()
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	if p.cfg.Narrator == nil {
		p.cfg.Narrator = NewTemplateNarrator()
	}
	return p, nil
}

// OnEnqueue registers fn to be called after a job is pushed for a stage
func (p *Pipeline) OnEnqueue(fn func(types.Stage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onQueue = append(p.onQueue, fn)
}

// Enqueue creates the character's ProcessingState if absent and pushes the job
func (p *Pipeline) Enqueue(ctx context.Context, job *models.QueueJob) error {
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}
	if job.Stage == "" {
		job.Stage = types.StageLightweight
	}
	if !job.Stage.Valid() {
		return fmt.Errorf("unknown stage %q", job.Stage)
	}
	if job.CharacterID == 0 || job.Name == "" || job.Realm == "" || job.Region == "" {
		return fmt.Errorf("job requires character id, name, realm and region")
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = p.now()
	}

	if err := p.cfg.Processing.CreateIfAbsent(ctx, models.NewProcessingState(job.CharacterID, TotalSteps)); err != nil {
		return fmt.Errorf("failed to create processing state: %w", err)
	}
	if err := p.cfg.Queue.Push(ctx, job); err != nil {
		return fmt.Errorf("failed to push %s job: %w", job.Stage, err)
	}

	p.logger.WithFields(map[string]interface{}{
		"characterId": job.CharacterID,
		"stage":       string(job.Stage),
		"jobId":       job.ID,
	}).Debug("Job enqueued")

	p.publish(job)
	p.notify(job.Stage)
	return nil
}

// Reenqueue discards the character's computed statistics and narrative,
// resets both stages to pending and enqueues a fresh lightweight job.
func (p *Pipeline) Reenqueue(ctx context.Context, job *models.QueueJob) error {
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}

	if err := p.cfg.Characters.DeleteStatistics(ctx, job.CharacterID); err != nil {
		return fmt.Errorf("failed to delete statistics: %w", err)
	}
	if err := p.cfg.Characters.DeleteSummary(ctx, job.CharacterID); err != nil {
		return fmt.Errorf("failed to delete narrative summary: %w", err)
	}

	// A stage still running for the previous generation loses its next write
	state, err := p.cfg.Processing.Reset(ctx, job.CharacterID, TotalSteps, p.now())
	if err != nil {
		return fmt.Errorf("failed to reset processing state: %w", err)
	}
	p.logger.WithFields(map[string]interface{}{
		"characterId": job.CharacterID,
		"generation":  state.Generation,
	}).Info("Processing state reset")

	reset := *job
	reset.ID = ""
	reset.Stage = types.StageLightweight
	reset.EnqueuedAt = time.Time{}
	return p.Enqueue(ctx, &reset)
}

// Process runs the stage named by the job
func (p *Pipeline) Process(ctx context.Context, job *models.QueueJob) error {
	switch job.Stage {
	case types.StageLightweight:
		return p.RunLightweight(ctx, job)
	case types.StageDeep:
		return p.RunDeep(ctx, job)
	default:
		return fmt.Errorf("unknown stage %q", job.Stage)
	}
}

// RunLightweight fetches profile, achievements, rankings and dungeon runs,
// computes statistics, then enqueues the deep stage.
func (p *Pipeline) RunLightweight(ctx context.Context, job *models.QueueJob) error {
	character := job.Character()
	steps := []stageStep{
		{StepFetchProfile, func(ctx context.Context) error { return p.fetchProfile(ctx, character) }},
		{StepFetchAchievements, func(ctx context.Context) error { return p.fetchAchievements(ctx, character) }},
		{StepFetchRankings, func(ctx context.Context) error { return p.fetchRankings(ctx, character) }},
		{StepFetchDungeonRuns, func(ctx context.Context) error { return p.fetchDungeonRuns(ctx, character) }},
		{StepComputeStatistics, func(ctx context.Context) error { return p.computeStatistics(ctx, character.ID) }},
	}

	ran, err := p.runStage(ctx, job, types.StageLightweight, steps)
	if err != nil || !ran {
		return err
	}

	deep := &models.QueueJob{
		CharacterID: job.CharacterID,
		Name:        job.Name,
		Realm:       job.Realm,
		Region:      job.Region,
		Stage:       types.StageDeep,
		Priority:    job.Priority,
		RequestedBy: job.RequestedBy,
	}
	if err := p.Enqueue(ctx, deep); err != nil {
		return fmt.Errorf("failed to enqueue deep stage: %w", err)
	}
	return nil
}

// RunDeep recomputes statistics and generates the narrative summary
func (p *Pipeline) RunDeep(ctx context.Context, job *models.QueueJob) error {
	character := job.Character()
	steps := []stageStep{
		{StepFetchEvents, p.fetchEvents},
		{StepComputeStatistics, func(ctx context.Context) error { return p.computeStatistics(ctx, character.ID) }},
		{StepGenerateNarrative, func(ctx context.Context) error { return p.generateNarrative(ctx, character.ID) }},
	}

	_, err := p.runStage(ctx, job, types.StageDeep, steps)
	return err
}

type stageStep struct {
	name string
	run  func(ctx context.Context) error
}

// runStage drives one stage through pending -> in_progress -> completed|failed.
// It reports false without error when the stage had already completed or the
// character was reset while it ran.
func (p *Pipeline) runStage(ctx context.Context, job *models.QueueJob, stage types.Stage, steps []stageStep) (bool, error) {
	log := p.logger.WithFields(map[string]interface{}{
		"characterId": job.CharacterID,
		"stage":       string(stage),
		"jobId":       job.ID,
	})

	state, err := p.loadState(ctx, job.CharacterID)
	if err != nil {
		return false, err
	}
	if state.StatusFor(stage) == types.StatusCompleted {
		log.Debug("Stage already completed, skipping")
		return false, nil
	}
	log = log.WithField("generation", state.Generation)

	abandon := func(err error) (bool, error) {
		if errors.Is(err, errStateReset) {
			log.Info("Processing state reset during stage, abandoning run")
			return false, nil
		}
		return false, err
	}

	setStatus(state, stage, types.StatusInProgress)
	state.ErrorMessage = nil
	if err := p.checkpoint(ctx, state, stage, job); err != nil {
		return abandon(err)
	}

	started := p.now()
	for _, step := range steps {
		name := step.name
		state.CurrentStep = &name
		if err := p.checkpoint(ctx, state, stage, job); err != nil {
			return abandon(err)
		}

		if err := step.run(ctx); err != nil {
			stepErr := fmt.Errorf("%s: %w", name, err)
			if p.fail(ctx, state, stage, job, stepErr) {
				log.WithError(stepErr).Info("Step failed after processing state reset, abandoning run")
				return false, nil
			}
			log.WithError(stepErr).Warn("Stage failed")
			return false, stepErr
		}

		state.StepsCompleted = append(state.StepsCompleted, name)
		if err := p.checkpoint(ctx, state, stage, job); err != nil {
			return abandon(err)
		}
	}

	completedAt := p.now()
	setStatus(state, stage, types.StatusCompleted)
	if stage == types.StageDeep {
		state.DeepScanCompletedAt = &completedAt
	} else {
		state.LightweightCompletedAt = &completedAt
	}
	state.CurrentStep = nil
	if err := p.checkpoint(ctx, state, stage, job); err != nil {
		return abandon(err)
	}

	log.WithField("durationMs", completedAt.Sub(started).Milliseconds()).Info("Stage completed")
	return true, nil
}

// fail records the stage failure; the original error is returned by the caller.
// It reports true when the state was reset meanwhile and the failure was dropped.
func (p *Pipeline) fail(ctx context.Context, state *models.ProcessingState, stage types.Stage, job *models.QueueJob, cause error) bool {
	msg := cause.Error()
	setStatus(state, stage, types.StatusFailed)
	state.ErrorMessage = &msg
	err := p.checkpoint(ctx, state, stage, job)
	switch {
	case errors.Is(err, errStateReset):
		return true
	case err != nil:
		p.logger.WithError(err).WithField("characterId", job.CharacterID).Error("Failed to record stage failure")
	}
	return false
}

func setStatus(state *models.ProcessingState, stage types.Stage, status types.ProcessingStatus) {
	if stage == types.StageDeep {
		state.DeepScanStatus = status
		return
	}
	state.LightweightStatus = status
}

// checkpoint persists the stage's progress and announces the change
func (p *Pipeline) checkpoint(ctx context.Context, state *models.ProcessingState, stage types.Stage, job *models.QueueJob) error {
	state.UpdatedAt = p.now()
	saved, err := p.cfg.Processing.SaveStage(ctx, state, stage)
	if err != nil {
		return fmt.Errorf("failed to save processing state: %w", err)
	}
	if !saved {
		return errStateReset
	}
	p.publish(job)
	return nil
}

// loadState returns the character's state, creating the initial one if absent
func (p *Pipeline) loadState(ctx context.Context, characterID int64) (*models.ProcessingState, error) {
	state, err := p.cfg.Processing.Get(ctx, characterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load processing state: %w", err)
	}
	if state != nil {
		return state, nil
	}

	if err := p.cfg.Processing.CreateIfAbsent(ctx, models.NewProcessingState(characterID, TotalSteps)); err != nil {
		return nil, fmt.Errorf("failed to create processing state: %w", err)
	}
	state, err = p.cfg.Processing.Get(ctx, characterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load processing state: %w", err)
	}
	if state == nil {
		return nil, fmt.Errorf("processing state for character %d missing after create", characterID)
	}
	return state, nil
}

func (p *Pipeline) publish(job *models.QueueJob) {
	p.cfg.Broadcaster.Publish(broadcast.ChannelProcessing, broadcast.GlobalKey)
	if job.RequestedBy != "" {
		p.cfg.Broadcaster.Publish(broadcast.ChannelQueue, job.RequestedBy)
	}
}

func (p *Pipeline) notify(stage types.Stage) {
	p.mu.RLock()
	hooks := make([]func(types.Stage), len(p.onQueue))
	copy(hooks, p.onQueue)
	p.mu.RUnlock()
	for _, fn := range hooks {
		fn(stage)
	}
}

// State returns the character's processing state, or nil if never enqueued
func (p *Pipeline) State(ctx context.Context, characterID int64) (*models.ProcessingState, error) {
	return p.cfg.Processing.Get(ctx, characterID)
}

// QueueLengths returns the number of waiting jobs per stage
func (p *Pipeline) QueueLengths(ctx context.Context) (map[types.Stage]int, error) {
	out := make(map[types.Stage]int, 2)
	for _, stage := range []types.Stage{types.StageLightweight, types.StageDeep} {
		n, err := p.cfg.Queue.Len(ctx, stage)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s queue: %w", stage, err)
		}
		out[stage] = n
	}
	return out, nil
}
