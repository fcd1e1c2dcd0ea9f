package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds the configuration for all services
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Download  DownloadConfig  `yaml:"download"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig holds blob storage configuration
type StorageConfig struct {
	Type      string            `yaml:"type"` // s3, local
	Bucket    string            `yaml:"bucket"`
	Region    string            `yaml:"region"`
	Endpoint  string            `yaml:"endpoint"`
	AccessKey string            `yaml:"access_key"`
	SecretKey string            `yaml:"secret_key"`
	LocalPath string            `yaml:"local_path"`
	Options   map[string]string `yaml:"options"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	JWTExpiration time.Duration `yaml:"jwt_expiration"`
	BCryptCost    int           `yaml:"bcrypt_cost"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// SessionsConfig controls the lifecycle of in-memory upload sessions.
// A zero IdleTimeout disables automatic expiry of abandoned sessions.
type SessionsConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// BroadcastConfig controls progress fan-out
type BroadcastConfig struct {
	Mode               string        `yaml:"mode"` // local, redis
	SubscriberBuffer   int           `yaml:"subscriber_buffer"`
	SendTimeout        time.Duration `yaml:"send_timeout"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	RedisChannelPrefix string        `yaml:"redis_channel_prefix"`
}

// DownloadConfig bounds batch archive requests
type DownloadConfig struct {
	MaxPhotos          int    `yaml:"max_photos"`
	MaxTotalBytes      int64  `yaml:"max_total_bytes"`
	Compression        string `yaml:"compression"` // deflate, store, zstd
	ResolveConcurrency int    `yaml:"resolve_concurrency"`
	CopyBufferSize     int    `yaml:"copy_buffer_size"`
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// Load reads an optional YAML file and then applies environment overrides.
// An empty path behaves like LoadFromEnv.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // archive downloads stream for as long as they need
			IdleTimeout:  120 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "picstorm",
			Password: "password",
			DBName:   "picstorm",
			SSLMode:  "disable",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Storage: StorageConfig{
			Type:      "local",
			Bucket:    "picstorm-uploads",
			Region:    "us-east-1",
			LocalPath: "./uploads",
		},
		Auth: AuthConfig{
			JWTSecret:     "your-secret-key",
			JWTExpiration: 24 * time.Hour,
			BCryptCost:    12,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Sessions: SessionsConfig{
			IdleTimeout:   0,
			Retention:     15 * time.Minute,
			SweepInterval: time.Minute,
		},
		Broadcast: BroadcastConfig{
			Mode:               "local",
			SubscriberBuffer:   64,
			SendTimeout:        250 * time.Millisecond,
			HeartbeatInterval:  30 * time.Second,
			RedisChannelPrefix: "picstorm:",
		},
		Download: DownloadConfig{
			MaxPhotos:          50,
			MaxTotalBytes:      500 * 1024 * 1024,
			Compression:        "deflate",
			ResolveConcurrency: 8,
			CopyBufferSize:     32 * 1024,
		},
	}
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.Host = getEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = getEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	c.Storage.Type = getEnv("STORAGE_TYPE", c.Storage.Type)
	c.Storage.Bucket = getEnv("STORAGE_BUCKET", c.Storage.Bucket)
	c.Storage.Region = getEnv("STORAGE_REGION", c.Storage.Region)
	c.Storage.Endpoint = getEnv("STORAGE_ENDPOINT", c.Storage.Endpoint)
	c.Storage.AccessKey = getEnv("STORAGE_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = getEnv("STORAGE_SECRET_KEY", c.Storage.SecretKey)
	c.Storage.LocalPath = getEnv("STORAGE_LOCAL_PATH", c.Storage.LocalPath)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTExpiration = getEnvDuration("JWT_EXPIRATION", c.Auth.JWTExpiration)
	c.Auth.BCryptCost = getEnvInt("BCRYPT_COST", c.Auth.BCryptCost)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)

	c.Sessions.IdleTimeout = getEnvDuration("SESSION_IDLE_TIMEOUT", c.Sessions.IdleTimeout)
	c.Sessions.Retention = getEnvDuration("SESSION_RETENTION", c.Sessions.Retention)
	c.Sessions.SweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", c.Sessions.SweepInterval)

	c.Broadcast.Mode = getEnv("BROADCAST_MODE", c.Broadcast.Mode)
	c.Broadcast.SubscriberBuffer = getEnvInt("BROADCAST_SUBSCRIBER_BUFFER", c.Broadcast.SubscriberBuffer)
	c.Broadcast.SendTimeout = getEnvDuration("BROADCAST_SEND_TIMEOUT", c.Broadcast.SendTimeout)
	c.Broadcast.HeartbeatInterval = getEnvDuration("BROADCAST_HEARTBEAT_INTERVAL", c.Broadcast.HeartbeatInterval)
	c.Broadcast.RedisChannelPrefix = getEnv("BROADCAST_REDIS_PREFIX", c.Broadcast.RedisChannelPrefix)

	c.Download.MaxPhotos = getEnvInt("DOWNLOAD_MAX_PHOTOS", c.Download.MaxPhotos)
	c.Download.MaxTotalBytes = getEnvInt64("DOWNLOAD_MAX_TOTAL_BYTES", c.Download.MaxTotalBytes)
	c.Download.Compression = getEnv("DOWNLOAD_COMPRESSION", c.Download.Compression)
	c.Download.ResolveConcurrency = getEnvInt("DOWNLOAD_RESOLVE_CONCURRENCY", c.Download.ResolveConcurrency)
	c.Download.CopyBufferSize = getEnvInt("DOWNLOAD_COPY_BUFFER_SIZE", c.Download.CopyBufferSize)
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	switch c.Broadcast.Mode {
	case "local", "redis":
	default:
		return fmt.Errorf("unsupported broadcast mode: %s", c.Broadcast.Mode)
	}
	switch c.Download.Compression {
	case "deflate", "store", "zstd":
	default:
		return fmt.Errorf("unsupported download compression: %s", c.Download.Compression)
	}
	if c.Download.MaxPhotos < 1 {
		return fmt.Errorf("download max_photos must be at least 1")
	}
	if c.Broadcast.SubscriberBuffer < 1 {
		return fmt.Errorf("broadcast subscriber_buffer must be at least 1")
	}
	if c.Sessions.SweepInterval <= 0 {
		return fmt.Errorf("sessions sweep_interval must be positive")
	}
	return nil
}

// DatabaseURL returns a PostgreSQL connection string
func (d *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RedisAddr returns the Redis address
func (r *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// SetupLogging configures the global zerolog logger
func (l *LoggingConfig) SetupLogging() {
	level, err := zerolog.ParseLevel(strings.ToLower(l.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if l.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
