package models

import (
	"encoding/json"
	"time"

	"github.com/raid-tracker/internal/types"
)

// CacheEntry is one cached upstream payload
type CacheEntry struct {
	Key        string          `json:"key" db:"key"`
	Payload    json.RawMessage `json:"payload" db:"payload"`
	CachedAt   time.Time       `json:"cachedAt" db:"cached_at"`
	TTLSeconds int             `json:"ttlSeconds" db:"ttl_seconds"`
}

// FreshAt reports whether the entry is still within its TTL at now
func (e *CacheEntry) FreshAt(now time.Time) bool {
	return now.Sub(e.CachedAt) <= time.Duration(e.TTLSeconds)*time.Second
}

// RateLimitState is the advisory quota view of one provider
type RateLimitState struct {
	Provider         types.Provider `json:"provider"`
	Remaining        int            `json:"remaining"`
	Limit            int            `json:"limit"`
	ResetAt          time.Time      `json:"resetAt"`
	RequestsThisHour int            `json:"requestsThisHour"`
	Paused           bool           `json:"paused"`
}
