package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const DefaultMigrationsDir = "migrations"

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	Port                 string
	DatabaseURL          string
	MigrationsDir        string
	JWTSecret            string
	JWTIssuer            string
	AccessTTLSeconds     int64
	RefreshTTLSeconds    int64
	MediaStoragePath     string
	MaxUploadBytes       int64
	StorageBackend       string
	S3                   S3Config
	Redis                RedisConfig
	LogLevel             string
	LogDir               string
	LogRetentionDays     int
	MetricsDiskPath      string
	MetricsSampleSeconds int
	CorsOrigins          []string
	LoginRatePerMinute   int
	UploadRatePerMinute  int
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func Load() Config {
	return Config{
		Port:                 envOr("PORT", "8080"),
		DatabaseURL:          mustEnv("DATABASE_URL"),
		MigrationsDir:        envOr("MIGRATIONS_DIR", DefaultMigrationsDir),
		JWTSecret:            mustEnv("JWT_SECRET"),
		JWTIssuer:            envOr("JWT_ISSUER", "fieldwork"),
		AccessTTLSeconds:     int64(envOrInt("ACCESS_TTL_SECONDS", 14400)),
		RefreshTTLSeconds:    int64(envOrInt("REFRESH_TTL_SECONDS", 1209600)),
		MediaStoragePath:     envOr("MEDIA_STORAGE_PATH", "storage/media"),
		MaxUploadBytes:       int64(envOrInt("MAX_UPLOAD_BYTES", 5<<20)),
		StorageBackend:       strings.ToLower(envOr("STORAGE_BACKEND", StorageLocal)),
		S3: S3Config{
			Endpoint:  envOr("S3_ENDPOINT", ""),
			AccessKey: envOr("S3_ACCESS_KEY", ""),
			SecretKey: envOr("S3_SECRET_KEY", ""),
			Bucket:    envOr("S3_BUCKET", "fieldwork-media"),
			UseSSL:    envOrBool("S3_USE_SSL", false),
		},
		Redis: RedisConfig{
			Addr:     envOr("REDIS_ADDR", ""),
			Password: envOr("REDIS_PASSWORD", ""),
			DB:       envOrInt("REDIS_DB", 0),
		},
		LogLevel:             envOr("LOG_LEVEL", "info"),
		LogDir:               envOr("LOG_DIR", "storage/logs"),
		LogRetentionDays:     envOrInt("LOG_RETENTION_DAYS", 7),
		MetricsDiskPath:      envOr("METRICS_DISK_PATH", "storage/media"),
		MetricsSampleSeconds: envOrInt("METRICS_SAMPLE_INTERVAL", 15),
		CorsOrigins:          parseCSV(envOr("CORS_ORIGINS", "")),
		LoginRatePerMinute:   envOrInt("LOGIN_RATE_PER_MINUTE", 10),
		UploadRatePerMinute:  envOrInt("UPLOAD_RATE_PER_MINUTE", 30),
		ReadTimeout:          time.Duration(envOrInt("HTTP_READ_TIMEOUT_SECONDS", 30)) * time.Second,
		WriteTimeout:         time.Duration(envOrInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)) * time.Second,
	}
}

// Validate reports values that Load accepted but the server cannot run with.
func (c Config) Validate() error {
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	switch c.StorageBackend {
	case StorageLocal:
		if c.MediaStoragePath == "" {
			return fmt.Errorf("MEDIA_STORAGE_PATH is required for local storage")
		}
	case StorageS3:
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			return fmt.Errorf("S3_ENDPOINT and S3_BUCKET are required for s3 storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.AccessTTLSeconds <= 0 || c.RefreshTTLSeconds <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.MetricsSampleSeconds <= 0 {
		return fmt.Errorf("METRICS_SAMPLE_INTERVAL must be positive")
	}
	return nil
}

func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLSeconds) * time.Second
}

func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLSeconds) * time.Second
}

func mustEnv(key string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		panic("missing env var: " + key)
	}
	return value
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}
