package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/raid-tracker/internal/errors"
	"github.com/raid-tracker/internal/logging"
	"github.com/raid-tracker/internal/models"
)

// blockingSyncer holds every sync until release is closed
type blockingSyncer struct {
	started chan struct{}
	release chan struct{}
	calls   int32
	once    sync.Once
	err     error
}

func newBlockingSyncer() *blockingSyncer {
	return &blockingSyncer{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingSyncer) Sync(ctx context.Context, _ Options) (*models.SyncResult, error) {
	atomic.AddInt32(&b.calls, 1)
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return models.NewSyncResult(), b.err
}

func TestScheduler_SingleFlight(t *testing.T) {
	syncer := newBlockingSyncer()
	s, err := NewScheduler(&SchedulerConfig{Syncer: syncer, Logger: logging.NewNopLogger(), DailyHour: 4})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background(), Options{})
		done <- err
	}()
	<-syncer.started

	assert.True(t, s.Running())
	_, err = s.RunNow(context.Background(), Options{Force: true})
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, CodeSyncInProgress, apperrors.Categorize(err).Code)

	close(syncer.release)
	require.NoError(t, <-done)
	assert.False(t, s.Running())
	assert.Equal(t, int32(1), atomic.LoadInt32(&syncer.calls))

	result, at := s.LastResult()
	assert.NotNil(t, result)
	assert.False(t, at.IsZero())
}

func TestScheduler_RecordsLastError(t *testing.T) {
	syncer := newBlockingSyncer()
	syncer.err = ErrNoStructuralData
	close(syncer.release)

	s, err := NewScheduler(&SchedulerConfig{Syncer: syncer, Logger: logging.NewNopLogger()})
	require.NoError(t, err)

	_, err = s.RunNow(context.Background(), Options{})
	assert.True(t, errors.Is(err, ErrNoStructuralData))
	assert.ErrorIs(t, s.LastError(), ErrNoStructuralData)
}

func TestScheduler_RunsOnBoot(t *testing.T) {
	syncer := newBlockingSyncer()
	close(syncer.release)

	s, err := NewScheduler(&SchedulerConfig{Syncer: syncer, Logger: logging.NewNopLogger(), OnBoot: true, DailyHour: 3})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&syncer.calls) == 1
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&syncer.calls))
}

func TestScheduler_NoBootRun(t *testing.T) {
	syncer := newBlockingSyncer()
	close(syncer.release)

	s, err := NewScheduler(&SchedulerConfig{Syncer: syncer, Logger: logging.NewNopLogger(), DailyHour: 3})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(0), atomic.LoadInt32(&syncer.calls))
}

func TestNewScheduler_Validation(t *testing.T) {
	_, err := NewScheduler(nil)
	assert.Error(t, err)

	_, err = NewScheduler(&SchedulerConfig{Syncer: newBlockingSyncer(), DailyHour: 24})
	assert.Error(t, err)
}

func TestNextRun(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{"later today", time.Date(2024, 9, 10, 1, 30, 0, 0, loc), 4, time.Date(2024, 9, 10, 4, 0, 0, 0, loc)},
		{"already passed", time.Date(2024, 9, 10, 5, 0, 0, 0, loc), 4, time.Date(2024, 9, 11, 4, 0, 0, 0, loc)},
		{"exactly on the hour", time.Date(2024, 9, 10, 4, 0, 0, 0, loc), 4, time.Date(2024, 9, 11, 4, 0, 0, 0, loc)},
		{"month rollover", time.Date(2024, 9, 30, 23, 0, 0, 0, loc), 0, time.Date(2024, 10, 1, 0, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextRun(tt.now, tt.hour))
		})
	}
}
