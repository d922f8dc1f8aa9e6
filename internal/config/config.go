package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pauljones0/creator-deal-tracker/internal/util"
)

const (
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
)

type Config struct {
	Port           string
	StorageBackend string
	ProjectID      string
	DatabaseURL    string

	GeminiAPIKey   string
	GeminiModel    string
	AIServiceURL   string
	AIServiceToken string
	AITimeout      time.Duration
	AIMaxRetries   int

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	EnrichmentCacheTTL time.Duration

	DefaultFollowUpDays int
	BriefAllowedHosts   []string
	BriefAllowPrivate   bool

	DiscordWebhookURL string
	DigestSchedule    string
	DigestOwnerIDs    []string
	DigestConcurrency int

	LogLevel  string
	LogFormat string

	CORSAllowedOrigins []string
	RequestTimeout     time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:              getenv("PORT", "8080"),
		StorageBackend:    strings.ToLower(getenv("STORAGE_BACKEND", BackendFirestore)),
		ProjectID:         os.Getenv("GOOGLE_CLOUD_PROJECT"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getenv("GEMINI_MODEL", "gemini-2.5-flash"),
		AIServiceURL:      os.Getenv("AI_SERVICE_URL"),
		AIServiceToken:    os.Getenv("AI_SERVICE_TOKEN"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		BriefAllowedHosts: util.SplitList(os.Getenv("BRIEF_ALLOWED_HOSTS")),
		DiscordWebhookURL: os.Getenv("DISCORD_WEBHOOK_URL"),
		DigestSchedule:    os.Getenv("DIGEST_SCHEDULE"),
		DigestOwnerIDs:    util.SplitList(os.Getenv("DIGEST_OWNER_IDS")),
		LogLevel:          strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getenv("LOG_FORMAT", "text")),
	}
	cfg.CORSAllowedOrigins = util.SplitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	switch cfg.StorageBackend {
	case BackendFirestore:
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT environment variable is required for the firestore backend")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required for the postgres backend")
		}
	default:
		return nil, fmt.Errorf("invalid STORAGE_BACKEND %q: must be %s or %s", cfg.StorageBackend, BackendFirestore, BackendPostgres)
	}

	var err error
	if cfg.AITimeout, err = durationEnv("AI_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.EnrichmentCacheTTL, err = durationEnv("ENRICHMENT_CACHE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT", 90*time.Second); err != nil {
		return nil, err
	}
	if cfg.AIMaxRetries, err = intEnv("AI_MAX_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.DefaultFollowUpDays, err = intEnv("DEFAULT_FOLLOW_UP_DAYS", 7); err != nil {
		return nil, err
	}
	if cfg.DefaultFollowUpDays < 1 || cfg.DefaultFollowUpDays > 365 {
		return nil, fmt.Errorf("invalid DEFAULT_FOLLOW_UP_DAYS %d: must be between 1 and 365", cfg.DefaultFollowUpDays)
	}
	if cfg.DigestConcurrency, err = intEnv("DIGEST_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.DigestConcurrency < 1 {
		return nil, fmt.Errorf("invalid DIGEST_CONCURRENCY %d: must be at least 1", cfg.DigestConcurrency)
	}
	if cfg.BriefAllowPrivate, err = boolEnv("BRIEF_ALLOW_PRIVATE_NETWORKS", false); err != nil {
		return nil, err
	}
	if cfg.AIMaxRetries < 0 {
		return nil, fmt.Errorf("invalid AI_MAX_RETRIES %d: must not be negative", cfg.AIMaxRetries)
	}

	if cfg.AIServiceURL == "" && cfg.GeminiAPIKey == "" {
		slog.Warn("Neither AI_SERVICE_URL nor GEMINI_API_KEY set, enrichment will use fallback results")
	}
	if cfg.DiscordWebhookURL == "" {
		slog.Warn("DISCORD_WEBHOOK_URL not set, attention digests will not be delivered")
	}
	if cfg.DigestSchedule != "" && len(cfg.DigestOwnerIDs) == 0 {
		slog.Warn("DIGEST_SCHEDULE set without DIGEST_OWNER_IDS, scheduled digests cover no owners")
	}

	return cfg, nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}
