// Package ratelimit provides advisory per-provider quota tracking and call pacing.
package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// Default provider configuration values.
const (
	DefaultHourlyLimit  = 1000
	DefaultLowWaterMark = 10
	DefaultResumeBuffer = 5 * time.Second
)

// ProviderConfig holds the quota settings for one provider.
type ProviderConfig struct {
	// HourlyLimit is the assumed quota until the provider reports its own. Default: 1000
	HourlyLimit int

	// LowWaterMark pauses consumers once remaining quota drops below it.
	// Zero is taken literally and disables the proactive pause; the
	// environment loader and unconfigured providers use DefaultLowWaterMark.
	LowWaterMark int

	// ResumeBuffer is added to the reset time before consumers resume. Default: 5s
	ResumeBuffer time.Duration

	// CallDelay is the minimum spacing between two outbound calls. Default: none
	CallDelay time.Duration
}

// Validate checks if the configuration is valid.
func (c *ProviderConfig) Validate() error {
	if c.HourlyLimit < 0 {
		return errors.New("hourly limit cannot be negative")
	}
	if c.LowWaterMark < 0 {
		return errors.New("low water mark cannot be negative")
	}
	if c.HourlyLimit > 0 && c.LowWaterMark > c.HourlyLimit {
		return fmt.Errorf("low water mark (%d) cannot exceed hourly limit (%d)", c.LowWaterMark, c.HourlyLimit)
	}
	if c.ResumeBuffer < 0 {
		return errors.New("resume buffer cannot be negative")
	}
	if c.CallDelay < 0 {
		return errors.New("call delay cannot be negative")
	}
	return nil
}

// withDefaults fills zero values, except LowWaterMark where zero is meaningful.
func (c ProviderConfig) withDefaults() ProviderConfig {
	if c.HourlyLimit == 0 {
		c.HourlyLimit = DefaultHourlyLimit
	}
	if c.ResumeBuffer == 0 {
		c.ResumeBuffer = DefaultResumeBuffer
	}
	return c
}

// String returns a string representation of the configuration for logging.
func (c ProviderConfig) String() string {
	return fmt.Sprintf("ProviderConfig{HourlyLimit: %d, LowWaterMark: %d, ResumeBuffer: %s, CallDelay: %s}",
		c.HourlyLimit, c.LowWaterMark, c.ResumeBuffer, c.CallDelay)
}
