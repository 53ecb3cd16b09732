package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AWS      AWSConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadHeaderTimeout  int
	ReadTimeout        int    // 0 disables; covers the whole body, so it would cut off large uploads
	WriteTimeout       int    // 0 disables; a long stream must not be cut off
	CORSAllowedOrigins string // comma-separated, or "*" for all (e.g. http://localhost:3000,http://localhost:5173)
}

// StorageConfig holds on-disk locations and streaming limits.
type StorageConfig struct {
	VideoDir         string
	DataDir          string
	StreamChunkBytes int
	MaxUploadMB      int
	RecentLimit      int
}

// MaxUploadBytes returns the upload body cap in bytes.
func (c StorageConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string // empty keeps user libraries in DataDir
}

// Enabled reports whether libraries live in PostgreSQL.
func (c DatabaseConfig) Enabled() bool { return c.URL != "" }

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string // empty disables the job queue and cross-instance feed
	Password string
	DB       int
}

// Enabled reports whether Redis is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// AWSConfig holds AWS credentials and the mirror bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	VideosBucket         string // empty disables mirroring
	PresignExpireMinutes int
}

// LogConfig holds log level and optional rotating file output.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadHeaderTimeout:  getEnvInt("READ_HEADER_TIMEOUT_SEC", 10),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 0),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 0),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Storage: StorageConfig{
			VideoDir:         getEnv("VIDEO_DIR", "videos"),
			DataDir:          getEnv("DATA_DIR", "user_data"),
			StreamChunkBytes: getEnvInt("STREAM_CHUNK_BYTES", 1<<20),
			MaxUploadMB:      getEnvInt("MAX_UPLOAD_MB", 5000),
			RecentLimit:      getEnvInt("RECENT_LIMIT", 20),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			VideosBucket:         getEnv("AWS_S3_VIDEOS_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string
	if c.Storage.VideoDir == "" {
		problems = append(problems, "VIDEO_DIR must not be empty")
	}
	if c.Storage.StreamChunkBytes <= 0 {
		problems = append(problems, "STREAM_CHUNK_BYTES must be positive")
	}
	if c.Storage.MaxUploadMB <= 0 {
		problems = append(problems, "MAX_UPLOAD_MB must be positive")
	}
	if c.Storage.RecentLimit <= 0 {
		problems = append(problems, "RECENT_LIMIT must be positive")
	}
	if c.Server.ReadHeaderTimeout < 0 || c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		problems = append(problems, "timeouts must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// AllowedOrigins returns the CORS origins as a list.
func (c ServerConfig) AllowedOrigins() []string {
	return splitTrim(c.CORSAllowedOrigins, ",")
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
