package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/raid-tracker/internal/errors"
	"github.com/raid-tracker/internal/logging"
	"github.com/raid-tracker/internal/models"
)

// ErrSyncInProgress is returned, wrapped in a conflict error, when a sync is
// requested while one is running
var ErrSyncInProgress = errors.New("catalog sync already in progress")

// CodeSyncInProgress is the conflict code carried by a rejected RunNow
const CodeSyncInProgress = "SYNC_IN_PROGRESS"

// Syncer runs one catalog sync
type Syncer interface {
	Sync(ctx context.Context, opts Options) (*models.SyncResult, error)
}

// SchedulerConfig configures the background sync task
type SchedulerConfig struct {
	Syncer Syncer
	Logger *logging.Logger
	// OnBoot runs a sync as soon as the scheduler starts
	OnBoot bool
	// DailyHour is the local hour (0-23) of the daily sync
	DailyHour int
	// Now overrides the clock. Optional.
	Now func() time.Time
}

// Scheduler owns the background catalog sync: on boot, daily at a fixed
// hour, and on demand. At most one sync runs at a time; failures are kept
// as LastError instead of being dropped.
type Scheduler struct {
	syncer    Syncer
	logger    *logging.Logger
	onBoot    bool
	dailyHour int
	now       func() time.Time

	mu         sync.Mutex
	running    bool
	started    bool
	lastResult *models.SyncResult
	lastErr    error
	lastRunAt  time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler; call Start to begin the background task
func NewScheduler(cfg *SchedulerConfig) (*Scheduler, error) {
	if cfg == nil || cfg.Syncer == nil {
		return nil, fmt.Errorf("syncer is required")
	}
	if cfg.DailyHour < 0 || cfg.DailyHour > 23 {
		return nil, fmt.Errorf("daily hour must be between 0 and 23, got %d", cfg.DailyHour)
	}

	s := &Scheduler{
		syncer:    cfg.Syncer,
		logger:    cfg.Logger,
		onBoot:    cfg.OnBoot,
		dailyHour: cfg.DailyHour,
		now:       cfg.Now,
		stopCh:    make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = logging.GetGlobalLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.logger = s.logger.WithField("component", "catalog_scheduler")
	return s, nil
}

// Start launches the background task. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop ends the background task and waits for an in-flight sync to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	if s.onBoot {
		s.runScheduled(ctx, "boot")
	}

	for {
		wait := NextRun(s.now(), s.dailyHour).Sub(s.now())
		s.logger.WithField("next_run_in", wait.String()).Debug("Scheduled next catalog sync")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			s.runScheduled(ctx, "daily")
		}
	}
}

func (s *Scheduler) runScheduled(ctx context.Context, trigger string) {
	_, err := s.RunNow(ctx, Options{})
	if errors.Is(err, ErrSyncInProgress) {
		s.logger.WithField("trigger", trigger).Info("Skipping scheduled sync, one is already running")
	}
}

// RunNow runs a sync synchronously unless one is already running
func (s *Scheduler) RunNow(ctx context.Context, opts Options) (*models.SyncResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, apperrors.NewConflictError(CodeSyncInProgress, "A catalog sync is already running", ErrSyncInProgress)
	}
	s.running = true
	s.mu.Unlock()

	result, err := s.syncer.Sync(ctx, opts)

	s.mu.Lock()
	s.running = false
	s.lastResult = result
	s.lastErr = err
	s.lastRunAt = s.now()
	s.mu.Unlock()

	if err != nil {
		s.logger.WithError(err).Error("Catalog sync failed")
	} else if result != nil && len(result.Errors) > 0 {
		s.logger.WithField("errors", result.Errors).Warn("Catalog sync finished with errors")
	}
	return result, err
}

// Running reports whether a sync is in flight
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastError returns the error of the most recent run, if any
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// LastResult returns the most recent run's report and when it finished
func (s *Scheduler) LastResult() (*models.SyncResult, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult, s.lastRunAt
}

// NextRun returns the first time strictly after now at the given hour
func NextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
