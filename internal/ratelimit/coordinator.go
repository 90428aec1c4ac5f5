package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/raid-tracker/internal/logging"
	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/types"
)

// ErrContextCancelled is returned when the context is cancelled while waiting for quota.
var ErrContextCancelled = errors.New("context cancelled while waiting for quota")

// minAdmissionWait bounds the polling interval when a provider's reset time has already passed.
const minAdmissionWait = time.Second

// Coordinator tracks advisory quota per provider and drives pause/resume
// handlers registered by consumers. All updates are single-provider; the
// optimistic decrement and the authoritative overwrite may interleave.
type Coordinator struct {
	mu       sync.Mutex
	states   map[types.Provider]*providerState
	handlers map[types.Provider][]pauseResume
	configs  map[types.Provider]ProviderConfig
	now      func() time.Time
	logger   *logging.Logger
}

type providerState struct {
	cfg              ProviderConfig
	remaining        int
	limit            int
	resetAt          time.Time
	requestsThisHour int
	paused           bool
	resumeTimer      *time.Timer
}

type pauseResume struct {
	onPause  func()
	onResume func()
}

// CoordinatorConfig holds configuration for the coordinator.
type CoordinatorConfig struct {
	// Providers maps each provider to its quota settings. Unknown providers get defaults.
	Providers map[types.Provider]ProviderConfig

	// Logger receives pause/resume events. Optional.
	Logger *logging.Logger

	// Now overrides the clock. Optional.
	Now func() time.Time
}

// NewCoordinator creates a coordinator with every configured provider at full quota.
func NewCoordinator(cfg *CoordinatorConfig) (*Coordinator, error) {
	if cfg == nil {
		cfg = &CoordinatorConfig{}
	}

	c := &Coordinator{
		states:   make(map[types.Provider]*providerState),
		handlers: make(map[types.Provider][]pauseResume),
		configs:  make(map[types.Provider]ProviderConfig),
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = logging.GetGlobalLogger()
	}

	for provider, pc := range cfg.Providers {
		if err := pc.Validate(); err != nil {
			return nil, err
		}
		c.configs[provider] = pc.withDefaults()
	}

	return c, nil
}

// state returns the provider's state, creating it at full quota. Caller holds mu.
func (c *Coordinator) state(provider types.Provider) *providerState {
	st, ok := c.states[provider]
	if !ok {
		cfg, known := c.configs[provider]
		if !known {
			cfg = ProviderConfig{LowWaterMark: DefaultLowWaterMark}.withDefaults()
		}
		st = &providerState{
			cfg:       cfg,
			remaining: cfg.HourlyLimit,
			limit:     cfg.HourlyLimit,
			resetAt:   c.now().Add(time.Hour),
		}
		c.states[provider] = st
	}
	return st
}

// rollover restores quota once the reset time has passed. Caller holds mu.
func (c *Coordinator) rollover(st *providerState, now time.Time) {
	if now.Before(st.resetAt) {
		return
	}
	st.remaining = st.limit
	st.requestsThisHour = 0
	for !now.Before(st.resetAt) {
		st.resetAt = st.resetAt.Add(time.Hour)
	}
}

// RecordConsumption decrements the provider's remaining quota by one.
func (c *Coordinator) RecordConsumption(provider types.Provider) {
	c.mu.Lock()
	st := c.state(provider)
	c.rollover(st, c.now())
	st.remaining--
	if st.remaining < 0 {
		st.remaining = 0
	}
	st.requestsThisHour++
	fire := c.checkLowWaterMark(provider, st)
	c.mu.Unlock()

	fire()
}

// ApplyAuthoritative overwrites the provider's state with values reported by the provider.
func (c *Coordinator) ApplyAuthoritative(provider types.Provider, remaining, limit int, resetAt time.Time) {
	c.mu.Lock()
	st := c.state(provider)
	if remaining < 0 {
		remaining = 0
	}
	st.remaining = remaining
	if limit > 0 {
		st.limit = limit
	}
	if !resetAt.IsZero() {
		st.resetAt = resetAt
	}
	fire := c.checkLowWaterMark(provider, st)
	c.mu.Unlock()

	fire()
}

// CanAdmit reports whether the provider has quota left.
func (c *Coordinator) CanAdmit(provider types.Provider) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state(provider)
	c.rollover(st, c.now())
	return st.remaining > 0
}

// WaitForAdmission blocks until the provider has quota or the context is cancelled.
func (c *Coordinator) WaitForAdmission(ctx context.Context, provider types.Provider) error {
	for {
		select {
		case <-ctx.Done():
			return ErrContextCancelled
		default:
		}

		if c.CanAdmit(provider) {
			return nil
		}

		c.mu.Lock()
		wait := c.states[provider].resetAt.Sub(c.now())
		c.mu.Unlock()
		if wait < minAdmissionWait {
			wait = minAdmissionWait
		}

		c.logger.WithFields(map[string]interface{}{
			"provider": string(provider),
			"wait":     wait.String(),
		}).Warn("Provider quota exhausted, waiting for reset")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ErrContextCancelled
		case <-timer.C:
		}
	}
}

// RegisterPauseResume adds a handler pair for the provider. onPause fires once
// when remaining drops below the low-water-mark; onResume fires once when the
// resume timer scheduled at that moment expires.
func (c *Coordinator) RegisterPauseResume(provider types.Provider, onPause, onResume func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state(provider)
	c.handlers[provider] = append(c.handlers[provider], pauseResume{onPause: onPause, onResume: onResume})
}

// checkLowWaterMark marks the provider paused on a downward crossing and
// schedules its resume. Caller holds mu; the returned func runs the pause
// handlers and must be called after unlocking.
func (c *Coordinator) checkLowWaterMark(provider types.Provider, st *providerState) func() {
	if st.paused || st.remaining >= st.cfg.LowWaterMark {
		return func() {}
	}

	st.paused = true
	delay := st.resetAt.Add(st.cfg.ResumeBuffer).Sub(c.now())
	if delay < 0 {
		delay = 0
	}
	st.resumeTimer = time.AfterFunc(delay, func() { c.resume(provider) })

	c.logger.WithFields(map[string]interface{}{
		"provider":  string(provider),
		"remaining": st.remaining,
		"resumeIn":  delay.String(),
	}).Warn("Provider below low water mark, pausing consumers")

	handlers := append([]pauseResume(nil), c.handlers[provider]...)
	return func() {
		for _, h := range handlers {
			if h.onPause != nil {
				h.onPause()
			}
		}
	}
}

// resume restores the provider's window and runs the resume handlers.
func (c *Coordinator) resume(provider types.Provider) {
	c.mu.Lock()
	st := c.state(provider)
	if !st.paused {
		c.mu.Unlock()
		return
	}
	now := c.now()
	st.paused = false
	st.resumeTimer = nil
	st.remaining = st.limit
	st.requestsThisHour = 0
	if !now.Before(st.resetAt) {
		st.resetAt = now.Add(time.Hour)
	}
	handlers := append([]pauseResume(nil), c.handlers[provider]...)
	c.mu.Unlock()

	c.logger.WithField("provider", string(provider)).Info("Provider quota reset, resuming consumers")

	for _, h := range handlers {
		if h.onResume != nil {
			h.onResume()
		}
	}
}

// Snapshot returns the current state of one provider.
func (c *Coordinator) Snapshot(provider types.Provider) models.RateLimitState {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state(provider)
	return models.RateLimitState{
		Provider:         provider,
		Remaining:        st.remaining,
		Limit:            st.limit,
		ResetAt:          st.resetAt,
		RequestsThisHour: st.requestsThisHour,
		Paused:           st.paused,
	}
}

// States returns a snapshot of every known provider in a stable order.
func (c *Coordinator) States() []models.RateLimitState {
	states := make([]models.RateLimitState, 0, len(types.AllProviders))
	for _, p := range types.AllProviders {
		states = append(states, c.Snapshot(p))
	}
	return states
}

// Stop cancels any pending resume timers.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, st := range c.states {
		if st.resumeTimer != nil {
			st.resumeTimer.Stop()
		}
	}
}
