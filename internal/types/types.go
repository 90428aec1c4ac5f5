// Package types provides common type definitions for the raid tracker system.
package types

import "strings"

// Provider identifies one of the third-party data providers
type Provider string

const (
	// ProviderCombatLog is the combat-log provider (zone structure, encounter rankings)
	ProviderCombatLog Provider = "combatlog"
	// ProviderDungeon is the dungeon-ranking provider (static raid meta, dungeon runs)
	ProviderDungeon Provider = "dungeon"
	// ProviderProfile is the character-profile provider (profiles, achievements, icons)
	ProviderProfile Provider = "profile"
)

// AllProviders lists every provider in a stable order
var AllProviders = []Provider{ProviderCombatLog, ProviderDungeon, ProviderProfile}

// Stage identifies one of the two processing stages
type Stage string

const (
	// StageLightweight is the core fetch-and-aggregate stage
	StageLightweight Stage = "lightweight"
	// StageDeep is reserved for fine-grained event analysis
	StageDeep Stage = "deep"
)

// Valid reports whether s is a known stage
func (s Stage) Valid() bool {
	return s == StageLightweight || s == StageDeep
}

// ProcessingStatus represents the status of one processing stage
type ProcessingStatus string

const (
	// StatusPending represents a stage waiting to be processed
	StatusPending ProcessingStatus = "pending"
	// StatusInProgress represents a stage currently being processed
	StatusInProgress ProcessingStatus = "in_progress"
	// StatusCompleted represents a successfully completed stage
	StatusCompleted ProcessingStatus = "completed"
	// StatusFailed represents a failed stage
	StatusFailed ProcessingStatus = "failed"
)

// Region is a game region code (us, eu, kr, tw)
type Region string

// NormalizeRegion lowercases and trims a region code
func NormalizeRegion(r string) Region {
	return Region(strings.ToLower(strings.TrimSpace(r)))
}

// Difficulty is the combat-log provider's raid difficulty id
type Difficulty int

const (
	// DifficultyNormal is normal raid difficulty
	DifficultyNormal Difficulty = 3
	// DifficultyHeroic is heroic raid difficulty
	DifficultyHeroic Difficulty = 4
	// DifficultyMythic is mythic raid difficulty
	DifficultyMythic Difficulty = 5
)

// String returns a string representation of the difficulty
func (d Difficulty) String() string {
	switch d {
	case DifficultyNormal:
		return "normal"
	case DifficultyHeroic:
		return "heroic"
	case DifficultyMythic:
		return "mythic"
	default:
		return "unknown"
	}
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
