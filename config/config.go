package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the engine
type Config struct {
	Telegram TelegramConfig
	Auth     AuthConfig
	Vault    VaultConfig
	Sessions SessionStoreConfig
	Redis    RedisConfig
	RateLimit RateLimitConfig
	Transfer TransferConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	S3       S3Config
	Logging  LoggingConfig
	Service  ServiceConfig
}

// TelegramConfig holds provider API credentials
type TelegramConfig struct {
	APIID   int
	APIHash string
}

// AuthConfig holds login-flow policy
type AuthConfig struct {
	// MaxAttempts bounds invalid code/password retries per login session
	MaxAttempts int
	// SessionTimeout is the inactivity window after which an in-progress
	// login is considered stale and may be evicted
	SessionTimeout time.Duration
}

// VaultConfig holds key-derivation parameters for session encryption
type VaultConfig struct {
	KDFIterations int
}

// SessionStoreConfig holds encrypted-record storage parameters
type SessionStoreConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// RedisConfig holds the networked session-store backend parameters.
// When Addr is empty the in-memory backend is used instead.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig holds the shared outbound-call token bucket parameters
type RateLimitConfig struct {
	Capacity      int
	RefillPerSec  int
}

// TransferConfig holds transfer orchestration parameters
type TransferConfig struct {
	MaxConcurrent    int
	ChunkSize        int
	ProgressInterval time.Duration
	RetryAttempts    int
	DownloadDir      string
	TaskRetention    time.Duration
}

// DatabaseConfig holds PostgreSQL configuration for the account repository
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// GetDSN builds a postgres DSN from the config
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// KafkaConfig holds the task-event publisher configuration.
// When Brokers is empty, publishing is disabled.
type KafkaConfig struct {
	Brokers    []string
	TopicTasks string
}

// S3Config holds the optional media-archive configuration.
// When Endpoint is empty, archiving is disabled.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Name            string
	Port            string
	ShutdownTimeout time.Duration
}

// Result groups config sections for fx providers
type Result struct {
	Config    *Config
	Telegram  *TelegramConfig
	Auth      *AuthConfig
	Vault     *VaultConfig
	Sessions  *SessionStoreConfig
	Redis     *RedisConfig
	RateLimit *RateLimitConfig
	Transfer  *TransferConfig
	Database  *DatabaseConfig
	Kafka     *KafkaConfig
	S3        *S3Config
	Logging   *LoggingConfig
	Service   *ServiceConfig
}

// Out loads configuration and exposes the sections for fx DI
func Out() (Result, error) {
	cfg, err := Load()
	if err != nil {
		return Result{}, err
	}

	return Result{
		Config:    cfg,
		Telegram:  &cfg.Telegram,
		Auth:      &cfg.Auth,
		Vault:     &cfg.Vault,
		Sessions:  &cfg.Sessions,
		Redis:     &cfg.Redis,
		RateLimit: &cfg.RateLimit,
		Transfer:  &cfg.Transfer,
		Database:  &cfg.Database,
		Kafka:     &cfg.Kafka,
		S3:        &cfg.S3,
		Logging:   &cfg.Logging,
		Service:   &cfg.Service,
	}, nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	apiID, err := strconv.Atoi(getEnv("TELEGRAM_API_ID", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_API_ID: %w", err)
	}

	brokers := []string{}
	if brokersStr := getEnv("KAFKA_BROKERS", ""); brokersStr != "" {
		brokers = strings.Split(brokersStr, ",")
	}

	cfg := &Config{
		Telegram: TelegramConfig{
			APIID:   apiID,
			APIHash: getEnv("TELEGRAM_API_HASH", ""),
		},
		Auth: AuthConfig{
			MaxAttempts:    getEnvInt("AUTH_MAX_ATTEMPTS", 5),
			SessionTimeout: getEnvDuration("AUTH_SESSION_TIMEOUT", 10*time.Minute),
		},
		Vault: VaultConfig{
			KDFIterations: getEnvInt("VAULT_KDF_ITERATIONS", 100000),
		},
		Sessions: SessionStoreConfig{
			TTL:           getEnvDuration("SESSION_TTL", 7*24*time.Hour),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Capacity:     getEnvInt("RATE_LIMIT_CAPACITY", 30),
			RefillPerSec: getEnvInt("RATE_LIMIT_REFILL_PER_SEC", 30),
		},
		Transfer: TransferConfig{
			MaxConcurrent:    getEnvInt("TRANSFER_MAX_CONCURRENT", 3),
			ChunkSize:        getEnvInt("TRANSFER_CHUNK_SIZE", 512*1024),
			ProgressInterval: getEnvDuration("TRANSFER_PROGRESS_INTERVAL", 1500*time.Millisecond),
			RetryAttempts:    getEnvInt("TRANSFER_RETRY_ATTEMPTS", 3),
			DownloadDir:      getEnv("TRANSFER_DOWNLOAD_DIR", "./downloads"),
			TaskRetention:    getEnvDuration("TRANSFER_TASK_RETENTION", time.Hour),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DATABASE_HOST", "localhost"),
			Port:     getEnv("DATABASE_PORT", "5432"),
			User:     getEnv("DATABASE_USER", "televault"),
			Password: getEnv("DATABASE_PASSWORD", "televault"),
			DBName:   getEnv("DATABASE_NAME", "televault"),
			SSLMode:  getEnv("DATABASE_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:    brokers,
			TopicTasks: getEnv("KAFKA_TOPIC_TASKS", "transfer-task-events"),
		},
		S3: S3Config{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Bucket:    getEnv("S3_BUCKET", "media-archive"),
			UseSSL:    getEnvBool("S3_USE_SSL", false),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Service: ServiceConfig{
			Name:            getEnv("SERVICE_NAME", "televault"),
			Port:            getEnv("SERVICE_PORT", "8085"),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Telegram.APIID == 0 {
		return fmt.Errorf("TELEGRAM_API_ID is required")
	}
	if c.Telegram.APIHash == "" {
		return fmt.Errorf("TELEGRAM_API_HASH is required")
	}
	if c.Vault.KDFIterations < 100000 {
		return fmt.Errorf("VAULT_KDF_ITERATIONS must be at least 100000")
	}
	if c.RateLimit.Capacity <= 0 || c.RateLimit.RefillPerSec <= 0 {
		return fmt.Errorf("rate limit capacity and refill rate must be positive")
	}
	if c.Transfer.MaxConcurrent <= 0 {
		return fmt.Errorf("TRANSFER_MAX_CONCURRENT must be positive")
	}
	return nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable with default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// getEnvBool gets a boolean environment variable with default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.EqualFold(value, "true") || value == "1"
}

// getEnvDuration gets a duration environment variable with default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
