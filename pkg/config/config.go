package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

// Config holds the application configuration.
type Config struct {
	DataDir   string `toml:"data_dir"`
	MediaRoot string `toml:"media_root"`
	IndexDir  string `toml:"index_dir"`
	ExportDir string `toml:"export_dir"`
	UploadDir string `toml:"upload_dir"`
	MusicDir  string `toml:"music_dir"`

	StorageBackend     string `toml:"storage_backend"`
	S3Endpoint         string `toml:"s3_endpoint"`
	S3Region           string `toml:"s3_region"`
	S3Bucket           string `toml:"s3_bucket"`
	S3Prefix           string `toml:"s3_prefix"`
	S3AccessKeyID      string `toml:"s3_access_key_id"`
	S3SecretAccessKey  string `toml:"s3_secret_access_key"`
	PresignExpiryHours int    `toml:"presign_expiry_hours"`

	StoreDriver string `toml:"store_driver"`
	DatabaseURL string `toml:"database_url"`
	NATSURL     string `toml:"nats_url"`

	BatchSize               int    `toml:"batch_size"`
	KeepFailedArtifacts     bool   `toml:"keep_failed_artifacts"`
	ArchiveCompression      string `toml:"archive_compression"`
	IndexRefreshIntervalSec int    `toml:"index_refresh_interval"`

	AppKey        string `toml:"app_key"`
	AdminPassword string `toml:"admin_password"`
	ListenAddr    string `toml:"listen_addr"`
	LogLevel      string `toml:"log_level"`
}

// AppConfig is the global application configuration.
var AppConfig Config

// defaults mirrors the values used when neither the config file nor the
// environment sets a field.
func defaults() Config {
	return Config{
		DataDir:                 "data",
		StorageBackend:          "local",
		PresignExpiryHours:      168,
		StoreDriver:             "sqlite",
		BatchSize:               200,
		KeepFailedArtifacts:     true,
		ArchiveCompression:      "deflate",
		IndexRefreshIntervalSec: 3600,
		ListenAddr:              ":8080",
		LogLevel:                "info",
	}
}

// GetFFmpegLogPath returns the path to the ffmpeg log file for the current day.
func GetFFmpegLogPath() string {
	today := time.Now().Format("2006-01-02")
	return filepath.Join(AppConfig.DataDir, fmt.Sprintf("ffmpeg_log_%s.txt", today))
}

// PresignExpiry returns how long presigned archive URLs stay valid.
func (c *Config) PresignExpiry() time.Duration {
	if c.PresignExpiryHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.PresignExpiryHours) * time.Hour
}

// LoadConfig loads the configuration from the optional CONFIG_FILE and then
// from environment variables, which take precedence.
func LoadConfig() {
	cfg, err := Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("FATAL: invalid configuration")
	}
	AppConfig = cfg
	log.Info().
		Str("data_dir", AppConfig.DataDir).
		Str("storage", AppConfig.StorageBackend).
		Str("store", AppConfig.StoreDriver).
		Msg("Configuration loaded")
}

// Load builds a Config without touching the global. An empty path skips the
// TOML file.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.MediaRoot = getEnv("MEDIA_ROOT", cfg.MediaRoot)
	cfg.IndexDir = getEnv("INDEX_DIR", cfg.IndexDir)
	cfg.ExportDir = getEnv("EXPORT_DIR", cfg.ExportDir)
	cfg.UploadDir = getEnv("UPLOAD_DIR", cfg.UploadDir)
	cfg.MusicDir = getEnv("MUSIC_DIR", cfg.MusicDir)

	cfg.StorageBackend = strings.ToLower(getEnv("STORAGE_BACKEND", cfg.StorageBackend))
	cfg.S3Endpoint = getEnv("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Prefix = getEnv("S3_PREFIX", cfg.S3Prefix)
	cfg.S3AccessKeyID = getEnv("S3_ACCESS_KEY_ID", cfg.S3AccessKeyID)
	cfg.S3SecretAccessKey = getEnv("S3_SECRET_ACCESS_KEY", cfg.S3SecretAccessKey)
	cfg.PresignExpiryHours = getEnvAsInt("PRESIGN_EXPIRY_HOURS", cfg.PresignExpiryHours)

	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", cfg.StoreDriver))
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.NATSURL = getEnv("NATS_URL", cfg.NATSURL)

	cfg.BatchSize = getEnvAsInt("BATCH_SIZE", cfg.BatchSize)
	cfg.KeepFailedArtifacts = getEnvAsBool("KEEP_FAILED_ARTIFACTS", cfg.KeepFailedArtifacts)
	cfg.ArchiveCompression = strings.ToLower(getEnv("ARCHIVE_COMPRESSION", cfg.ArchiveCompression))
	cfg.IndexRefreshIntervalSec = getEnvAsInt("INDEX_REFRESH_INTERVAL", cfg.IndexRefreshIntervalSec)

	cfg.AppKey = getEnv("APP_KEY", cfg.AppKey)
	cfg.AdminPassword = getEnv("ADMIN_PASSWORD", cfg.AdminPassword)
	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if cfg.AppKey == "" {
		return cfg, fmt.Errorf("APP_KEY must be set")
	}
	if _, err := base64.StdEncoding.DecodeString(cfg.AppKey); err != nil {
		return cfg, fmt.Errorf("APP_KEY is not a valid base64 encoded string: %w", err)
	}
	if cfg.BatchSize <= 0 {
		return cfg, fmt.Errorf("BATCH_SIZE must be positive, got %d", cfg.BatchSize)
	}

	switch cfg.StorageBackend {
	case "local":
	case "s3":
		if cfg.S3Bucket == "" {
			return cfg, fmt.Errorf("S3_BUCKET must be set when STORAGE_BACKEND=s3")
		}
	default:
		return cfg, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	switch cfg.StoreDriver {
	case "sqlite":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL must be set when STORE_DRIVER=postgres")
		}
	default:
		return cfg, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	// Directories default to locations under DataDir.
	if cfg.MediaRoot == "" {
		cfg.MediaRoot = filepath.Join(cfg.DataDir, "media")
	}
	if cfg.IndexDir == "" {
		cfg.IndexDir = filepath.Join(cfg.DataDir, "camerapics")
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = filepath.Join(cfg.DataDir, "exports")
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(cfg.DataDir, "uploads")
	}
	if cfg.MusicDir == "" {
		cfg.MusicDir = filepath.Join(cfg.MediaRoot, "music")
	}

	return cfg, nil
}

// Dirs lists the directories the service writes to.
func (c *Config) Dirs() []string {
	return []string{c.DataDir, c.MediaRoot, c.IndexDir, c.ExportDir, c.UploadDir}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
