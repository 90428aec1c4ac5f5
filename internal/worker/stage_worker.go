package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/raid-tracker/internal/logging"
	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/ratelimit"
	"github.com/raid-tracker/internal/types"
)

// JobSource hands out queued jobs for one stage; nil means the stage is empty.
// A popped job stays claimed until Ack; Release returns unacknowledged jobs.
type JobSource interface {
	Pop(ctx context.Context, stage types.Stage) (*models.QueueJob, error)
	Ack(ctx context.Context, job *models.QueueJob) error
	Release(ctx context.Context, stage types.Stage) (int, error)
}

// Processor runs one job to completion
type Processor interface {
	Process(ctx context.Context, job *models.QueueJob) error
}

// StageWorker drains one stage's queue one job at a time.
// It stops pulling jobs while any provider it depends on is paused.
type StageWorker struct {
	stage        types.Stage
	source       JobSource
	processor    Processor
	pollInterval time.Duration
	stopTimeout  time.Duration
	logger       *logging.Logger

	mu            sync.RWMutex
	running       bool
	paused        map[types.Provider]bool
	lastPollTime  time.Time
	jobsProcessed int64
	jobsFailed    int64
	currentJob    *models.QueueJob

	wakeCh chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

// StageWorkerConfig holds configuration for a stage worker
type StageWorkerConfig struct {
	Stage        types.Stage
	Source       JobSource
	Processor    Processor
	PollInterval time.Duration
	StopTimeout  time.Duration
	Logger       *logging.Logger

	// Coordinator and Providers wire pause/resume: the worker pauses while
	// any listed provider is below its low-water-mark.
	Coordinator *ratelimit.Coordinator
	Providers   []types.Provider
}

// StageWorkerStatus is a point-in-time view of a worker
type StageWorkerStatus struct {
	Stage           types.Stage      `json:"stage"`
	Running         bool             `json:"running"`
	Paused          bool             `json:"paused"`
	PausedProviders []types.Provider `json:"pausedProviders"`
	LastPollTime    time.Time        `json:"lastPollTime"`
	JobsProcessed   int64            `json:"jobsProcessed"`
	JobsFailed      int64            `json:"jobsFailed"`
	CurrentJobID    string           `json:"currentJobId,omitempty"`
}

// NewStageWorker creates a new stage worker
func NewStageWorker(cfg *StageWorkerConfig) (*StageWorker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("stage worker config cannot be nil")
	}
	if !cfg.Stage.Valid() {
		return nil, fmt.Errorf("unknown stage %q", cfg.Stage)
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("job source cannot be nil")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("processor cannot be nil")
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	stopTimeout := cfg.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	w := &StageWorker{
		stage:        cfg.Stage,
		source:       cfg.Source,
		processor:    cfg.Processor,
		pollInterval: pollInterval,
		stopTimeout:  stopTimeout,
		logger:       logger.WithField("stage", string(cfg.Stage)),
		paused:       make(map[types.Provider]bool),
		wakeCh:       make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}

	if cfg.Coordinator != nil {
		for _, provider := range cfg.Providers {
			provider := provider
			cfg.Coordinator.RegisterPauseResume(provider,
				func() { w.Pause(provider) },
				func() { w.Resume(provider) },
			)
		}
	}

	return w, nil
}

// Start begins polling the stage queue
func (w *StageWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("%s worker is already running", w.stage)
	}
	w.running = true
	w.mu.Unlock()

	// Claims left by a previous process belong to jobs it never finished
	released, err := w.source.Release(ctx, w.stage)
	if err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("failed to release %s claims: %w", w.stage, err)
	}
	if released > 0 {
		w.logger.WithField("jobs", released).Info("Requeued interrupted jobs")
	}

	w.logger.WithField("pollInterval", w.pollInterval.String()).Info("Starting stage worker")

	go w.pollLoop(ctx)
	return nil
}

// Stop signals the loop and waits for the current job to finish
func (w *StageWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("%s worker is not running", w.stage)
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)

	select {
	case <-w.doneCh:
		w.logger.Info("Stage worker stopped gracefully")
	case <-ctx.Done():
		w.logger.Warn("Stage worker stop cancelled")
		return ctx.Err()
	case <-time.After(w.stopTimeout):
		w.logger.Warn("Stage worker stop timed out")
		return fmt.Errorf("stop timeout")
	}
	return nil
}

// Wake triggers an immediate poll; extra wakes while one is pending are dropped
func (w *StageWorker) Wake() {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

// Pause stops the worker pulling new jobs until the provider resumes
func (w *StageWorker) Pause(provider types.Provider) {
	w.mu.Lock()
	w.paused[provider] = true
	w.mu.Unlock()

	w.logger.WithField("provider", string(provider)).Warn("Stage worker paused")
}

// Resume clears the provider's pause and wakes the worker
func (w *StageWorker) Resume(provider types.Provider) {
	w.mu.Lock()
	delete(w.paused, provider)
	stillPaused := len(w.paused) > 0
	w.mu.Unlock()

	w.logger.WithField("provider", string(provider)).Info("Stage worker resumed")
	if !stillPaused {
		w.Wake()
	}
}

// Paused reports whether any provider currently holds the worker
func (w *StageWorker) Paused() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.paused) > 0
}

// pollLoop is the main polling loop that runs in a goroutine
func (w *StageWorker) pollLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Context cancelled, stage worker exiting")
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
		case <-w.wakeCh:
		}

		w.mu.Lock()
		w.lastPollTime = time.Now()
		w.mu.Unlock()

		w.drain(ctx)
	}
}

// drain processes queued jobs until the queue is empty, the worker is paused
// or it is asked to stop.
func (w *StageWorker) drain(ctx context.Context) {
	for {
		if w.Paused() || w.stopping() || ctx.Err() != nil {
			return
		}

		processed, err := w.ProcessNext(ctx)
		if err != nil {
			w.logger.WithError(err).Warn("Failed to pull job")
			return
		}
		if !processed {
			return
		}
	}
}

func (w *StageWorker) stopping() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

// ProcessNext pops and runs one job. It reports false when the queue was empty.
// A job failure is recorded by the processor and does not return an error.
// A job cut short by cancellation is left claimed for the next Start.
func (w *StageWorker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.source.Pop(ctx, w.stage)
	if err != nil {
		return false, fmt.Errorf("failed to pop %s job: %w", w.stage, err)
	}
	if job == nil {
		return false, nil
	}

	w.mu.Lock()
	w.currentJob = job
	w.mu.Unlock()

	log := w.logger.WithFields(map[string]interface{}{
		"jobId":       job.ID,
		"characterId": job.CharacterID,
	})
	log.Debug("Processing job")

	procErr := w.processor.Process(ctx, job)

	w.mu.Lock()
	w.currentJob = nil
	w.jobsProcessed++
	if procErr != nil {
		w.jobsFailed++
	}
	w.mu.Unlock()

	if procErr != nil {
		log.WithError(procErr).Warn("Job failed")
	}

	if ctx.Err() != nil {
		log.Info("Job interrupted, left claimed")
		return true, nil
	}
	if err := w.source.Ack(ctx, job); err != nil {
		log.WithError(err).Warn("Failed to acknowledge job")
	}
	return true, nil
}

// GetStatus returns current worker status
func (w *StageWorker) GetStatus() *StageWorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := &StageWorkerStatus{
		Stage:           w.stage,
		Running:         w.running,
		Paused:          len(w.paused) > 0,
		PausedProviders: make([]types.Provider, 0, len(w.paused)),
		LastPollTime:    w.lastPollTime,
		JobsProcessed:   w.jobsProcessed,
		JobsFailed:      w.jobsFailed,
	}
	for p := range w.paused {
		status.PausedProviders = append(status.PausedProviders, p)
	}
	sort.Slice(status.PausedProviders, func(i, j int) bool {
		return status.PausedProviders[i] < status.PausedProviders[j]
	})
	if w.currentJob != nil {
		status.CurrentJobID = w.currentJob.ID
	}
	return status
}
