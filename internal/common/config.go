package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Worker   WorkerConfig
	Ledger   LedgerConfig
	Gemini   GeminiConfig
}

// DatabaseConfig holds database-related configuration. DSN selects the
// Postgres backend; SQLitePath selects the single-node SQLite backend when
// no DSN is set.
type DatabaseConfig struct {
	DSN              string
	SQLitePath       string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// WorkerConfig holds the receipt worker configuration
type WorkerConfig struct {
	CronSecret     string
	MaxFilesPerRun int
	MaxFileBytes   int64
	LockTTL        time.Duration
	RetryBackoff   time.Duration
	FetchTimeout   time.Duration
}

// LedgerConfig holds accounting defaults for committed entries
type LedgerConfig struct {
	DefaultDebitAccount  string
	DefaultCreditAccount string
}

// GeminiConfig holds extraction-service configuration
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			SQLitePath:       getEnv("SQLITE_PATH", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			Addr:         getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:  getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("HTTP_WRITE_TIMEOUT", 120*time.Second),
		},
		Worker: WorkerConfig{
			CronSecret:     getEnv("CRON_SECRET", ""),
			MaxFilesPerRun: getEnvAsInt("MAX_FILES_PER_RUN", 50),
			MaxFileBytes:   getEnvAsInt64("MAX_FILE_BYTES", 10*1024*1024),
			LockTTL:        time.Duration(getEnvAsInt("CRON_LOCK_TTL_SECONDS", 600)) * time.Second,
			RetryBackoff:   time.Duration(getEnvAsInt("RETRY_BACKOFF_SECONDS", 600)) * time.Second,
			FetchTimeout:   getEnvAsDuration("BLOB_FETCH_TIMEOUT", 30*time.Second),
		},
		Ledger: LedgerConfig{
			DefaultDebitAccount:  getEnv("DEFAULT_DEBIT_ACCOUNT", "雑費"),
			DefaultCreditAccount: getEnv("DEFAULT_CREDIT_ACCOUNT", "普通預金"),
		},
		Gemini: GeminiConfig{
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			Model:   getEnv("GEMINI_MODEL", "gemini-3-flash-preview"),
			BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Timeout: getEnvAsDuration("GEMINI_TIMEOUT", 60*time.Second),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" && c.Database.SQLitePath == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL or SQLITE_PATH is required", ErrInvalidInput)
	}
	if len(c.Worker.CronSecret) < 16 {
		return NewAppError("CONFIG_ERROR", "CRON_SECRET must be at least 16 characters", ErrInvalidInput)
	}
	if c.Gemini.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "GEMINI_API_KEY is required", ErrInvalidInput)
	}
	if c.Worker.MaxFilesPerRun <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_FILES_PER_RUN must be positive", ErrInvalidInput)
	}
	if c.Worker.MaxFileBytes <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_FILE_BYTES must be positive", ErrInvalidInput)
	}
	return nil
}
