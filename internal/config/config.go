// Package config provides configuration management for the raid tracker.
// It loads configuration from environment variables and .env files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/raid-tracker/internal/models"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Providers ProvidersConfig
	Catalog   CatalogConfig
	Sync      SyncConfig
	Queue     QueueConfig
	Logging   LoggingConfig
}

// ServerConfig holds admin server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// CacheConfig selects and tunes the external API cache
type CacheConfig struct {
	Backend string // redis or postgres
	// Grace is added to an entry's TTL to form the Redis key expiry
	Grace time.Duration
}

// ProvidersConfig holds one block per upstream provider
type ProvidersConfig struct {
	CombatLog ProviderConfig
	Dungeon   ProviderConfig
	Profile   ProviderConfig
}

// ProviderConfig holds credentials, endpoints and quota settings for one provider
type ProviderConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	APIKey       string
	StaticRegion string
	Locale       string
	HourlyLimit  int
	LowWaterMark int
	CallDelay    time.Duration
	ResumeBuffer time.Duration
	Timeout      time.Duration
}

// CatalogConfig holds the static catalog definitions
type CatalogConfig struct {
	TrackedExpansionIDs []int
	TrackedZoneIDs      []int
	CurrentTierZoneIDs  []int
	Seasons             []models.SeasonDefinition
}

// SyncConfig holds catalog sync scheduling
type SyncConfig struct {
	OnBoot    bool
	DailyHour int
}

// QueueConfig holds stage worker configuration
type QueueConfig struct {
	PollInterval time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "raid_tracker"),
				User:           getEnv("POSTGRES_USER", "tracker"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Cache: CacheConfig{
			Backend: strings.ToLower(getEnv("CACHE_BACKEND", "redis")),
			Grace:   getEnvAsDuration("CACHE_GRACE", time.Hour),
		},
		Providers: ProvidersConfig{
			CombatLog: loadProviderConfig("COMBATLOG", ProviderConfig{
				BaseURL:     "https://www.warcraftlogs.com/api/v2/client",
				TokenURL:    "https://www.warcraftlogs.com/oauth/token",
				HourlyLimit: 3600,
				CallDelay:   250 * time.Millisecond,
			}),
			Dungeon: loadProviderConfig("DUNGEON", ProviderConfig{
				BaseURL:     "https://raider.io/api/v1",
				HourlyLimit: 1000,
				CallDelay:   500 * time.Millisecond,
			}),
			Profile: loadProviderConfig("PROFILE", ProviderConfig{
				BaseURL:      "https://{region}.api.blizzard.com",
				TokenURL:     "https://oauth.battle.net/token",
				StaticRegion: "us",
				Locale:       "en_US",
				HourlyLimit:  36000,
				CallDelay:    100 * time.Millisecond,
			}),
		},
		Catalog: CatalogConfig{
			TrackedExpansionIDs: getEnvAsIntSlice("TRACKED_EXPANSION_IDS", []int{7}),
			TrackedZoneIDs:      getEnvAsIntSlice("TRACKED_ZONE_IDS", []int{38, 42, 44}),
			CurrentTierZoneIDs:  getEnvAsIntSlice("CURRENT_TIER_ZONE_IDS", []int{44}),
		},
		Sync: SyncConfig{
			OnBoot:    getEnvAsBool("SYNC_ON_BOOT", true),
			DailyHour: getEnvAsInt("SYNC_DAILY_HOUR", 4),
		},
		Queue: QueueConfig{
			PollInterval: getEnvAsDuration("QUEUE_POLL_INTERVAL", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	seasons, err := loadSeasons(getEnv("SEASONS_FILE", ""))
	if err != nil {
		return nil, err
	}
	config.Catalog.Seasons = seasons

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.Cache.Backend != "redis" && c.Cache.Backend != "postgres" {
		return fmt.Errorf("CACHE_BACKEND must be redis or postgres, got %q", c.Cache.Backend)
	}
	if c.Sync.DailyHour < 0 || c.Sync.DailyHour > 23 {
		return fmt.Errorf("SYNC_DAILY_HOUR must be within 0-23, got %d", c.Sync.DailyHour)
	}
	if len(c.Catalog.TrackedZoneIDs) == 0 {
		return fmt.Errorf("TRACKED_ZONE_IDS must not be empty")
	}
	for _, s := range c.Catalog.Seasons {
		if s.Slug == "" || len(s.ZoneIDs) == 0 {
			return fmt.Errorf("season definition %q requires a slug and member zones", s.Slug)
		}
	}
	return nil
}

// loadProviderConfig reads <PREFIX>_* variables over the given defaults
func loadProviderConfig(prefix string, defaults ProviderConfig) ProviderConfig {
	return ProviderConfig{
		BaseURL:      getEnv(prefix+"_BASE_URL", defaults.BaseURL),
		TokenURL:     getEnv(prefix+"_TOKEN_URL", defaults.TokenURL),
		ClientID:     getEnv(prefix+"_CLIENT_ID", ""),
		ClientSecret: getEnv(prefix+"_CLIENT_SECRET", ""),
		APIKey:       getEnv(prefix+"_API_KEY", ""),
		StaticRegion: getEnv(prefix+"_STATIC_REGION", defaults.StaticRegion),
		Locale:       getEnv(prefix+"_LOCALE", defaults.Locale),
		HourlyLimit:  getEnvAsInt(prefix+"_HOURLY_LIMIT", defaults.HourlyLimit),
		LowWaterMark: getEnvAsInt(prefix+"_LOW_WATER_MARK", 10),
		CallDelay:    getEnvAsDuration(prefix+"_CALL_DELAY", defaults.CallDelay),
		ResumeBuffer: getEnvAsDuration(prefix+"_RESUME_BUFFER", 5*time.Second),
		Timeout:      getEnvAsDuration(prefix+"_TIMEOUT", 30*time.Second),
	}
}

// loadSeasons reads season definitions from a JSON file, or returns the built-in list
func loadSeasons(path string) ([]models.SeasonDefinition, error) {
	if path == "" {
		return DefaultSeasons(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seasons file: %w", err)
	}

	var seasons []models.SeasonDefinition
	if err := json.Unmarshal(data, &seasons); err != nil {
		return nil, fmt.Errorf("failed to parse seasons file: %w", err)
	}
	return seasons, nil
}

// DefaultSeasons returns the built-in season definitions
func DefaultSeasons() []models.SeasonDefinition {
	return []models.SeasonDefinition{
		{Slug: "tww-s1", Number: 1, ZoneIDs: []int{38}, SourceExpansionID: 7, StaticMetaExpansionID: 10, ExternalSeasonSlug: "season-tww-1"},
		{Slug: "tww-s2", Number: 2, ZoneIDs: []int{42}, SourceExpansionID: 7, StaticMetaExpansionID: 10, ExternalSeasonSlug: "season-tww-2"},
		{Slug: "tww-s3", Number: 3, ZoneIDs: []int{44}, SourceExpansionID: 7, StaticMetaExpansionID: 10, ExternalSeasonSlug: "season-tww-3"},
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsIntSlice parses a comma separated list of integers; invalid entries are skipped
func getEnvAsIntSlice(key string, defaultValue []int) []int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var values []int
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
