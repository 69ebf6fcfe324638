package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig holds HTTP and session settings.
type ServerConfig struct {
	Port           string
	MaxUploadBytes int64
	SessionIdleTTL time.Duration
	APIKey         string
	// MaxInflight bounds concurrent loads, combines and assembles, per kind.
	MaxInflight    int
	// AllowLocalRefs lets API clients load sessions from server-side paths.
	AllowLocalRefs bool
}

// CacheConfig configures the Redis page text cache. An empty URL disables it.
type CacheConfig struct {
	RedisURL    string
	PageTextTTL time.Duration
}

// S3Config configures the S3 export sink and s3:// sources.
type S3Config struct {
	Bucket         string
	ExportPrefix   string
	ExportPassword string
	UploadAttempts int
}

// ExportConfig configures the local export directory.
type ExportConfig struct {
	Dir       string
	Retention time.Duration
}

// SegmenterConfig configures part detection.
type SegmenterConfig struct {
	InstrumentsFile string
	HeaderChars     int
}

// RenderConfig configures thumbnails and artifact regeneration.
type RenderConfig struct {
	ThumbDPI             int
	ThumbQuality         int
	ArtifactCacheEntries int
}

// Config is the top-level configuration.
type Config struct {
	Logging   LoggingConfig
	Axiom     AxiomConfig
	Server    ServerConfig
	Cache     CacheConfig
	S3        S3Config
	Export    ExportConfig
	Segmenter SegmenterConfig
	Render    RenderConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/partkit.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_partkit",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Port:           getEnv("PORT", "8080"),
		MaxUploadBytes: int64(parseInt(getEnv("MAX_UPLOAD_MB", "64"), 64)) << 20,
		SessionIdleTTL: parseDuration(getEnv("SESSION_IDLE_TTL", "2h"), 2*time.Hour),
		APIKey:         getEnv("API_KEY", ""),
		MaxInflight:    parseInt(getEnv("MAX_INFLIGHT", "4"), 4),
		AllowLocalRefs: parseBool(getEnv("ALLOW_LOCAL_REFS", "0")),
	}

	cfg.Cache = CacheConfig{
		RedisURL:    getEnv("REDIS_URL", ""),
		PageTextTTL: parseDuration(getEnv("PAGE_TEXT_TTL", "24h"), 24*time.Hour),
	}

	cfg.S3 = S3Config{
		Bucket:         getEnv("AWS_S3_BUCKET", ""),
		ExportPrefix:   getEnv("S3_EXPORT_PREFIX", "exports"),
		ExportPassword: getEnv("S3_EXPORT_PASSWORD", ""),
		UploadAttempts: parseInt(getEnv("S3_UPLOAD_ATTEMPTS", "3"), 3),
	}

	cfg.Export = ExportConfig{
		Dir:       getEnv("EXPORT_DIR", "exports"),
		Retention: parseDuration(getEnv("EXPORT_RETENTION", "24h"), 24*time.Hour),
	}

	cfg.Segmenter = SegmenterConfig{
		InstrumentsFile: getEnv("INSTRUMENTS_FILE", ""),
		HeaderChars:     parseInt(getEnv("SEGMENTER_HEADER_CHARS", "400"), 400),
	}

	cfg.Render = RenderConfig{
		ThumbDPI:             parseInt(getEnv("THUMB_DPI", "50"), 50),
		ThumbQuality:         parseInt(getEnv("THUMB_QUALITY", "80"), 80),
		ArtifactCacheEntries: parseInt(getEnv("ARTIFACT_CACHE_ENTRIES", "256"), 256),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
