package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all process-level configuration
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Trading host
	LiveMode        bool    // true면 Nuclear Flatten 시 프로세스 종료
	Instrument      string  // ES, NQ ...
	Profile         string  // futures, ...
	StrategyConfig  string  // base.yaml 경로
	StartingEquity  float64 // 초기 자본 (0 = 전략 설정 값 사용)
	SessionTimezone string  // 세션 타임존 ("" = 전략 설정 값 사용)

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Market data feed
	Feed FeedConfig

	// Journal
	Journal JournalConfig

	// Economic calendar
	CalendarURL string

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// FeedConfig holds live tick feed configuration
type FeedConfig struct {
	URL              string
	HeartbeatTimeout time.Duration // 이 시간 동안 틱이 없으면 stale
	ReplayRate       int           // replay 시 초당 레코드 수 (0 = 무제한)
}

// JournalConfig holds trade journal storage configuration
type JournalConfig struct {
	Driver     string // postgres, sqlite, memory
	SQLitePath string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		LiveMode:        getEnvAsBool("LIVE_MODE", false),
		Instrument:      getEnv("INSTRUMENT", "ES"),
		Profile:         getEnv("PROFILE", "futures"),
		StrategyConfig:  getEnv("STRATEGY_CONFIG", "config/base.yaml"),
		StartingEquity:  getEnvAsFloat("STARTING_EQUITY", 0),
		SessionTimezone: getEnv("SESSION_TIMEZONE", ""),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Feed: FeedConfig{
			URL:              getEnv("FEED_URL", ""),
			HeartbeatTimeout: getEnvAsDuration("FEED_HEARTBEAT_TIMEOUT", "5s"),
			ReplayRate:       getEnvAsInt("FEED_REPLAY_RATE", 0),
		},

		Journal: JournalConfig{
			Driver:     getEnv("JOURNAL_DRIVER", "memory"),
			SQLitePath: getEnv("SQLITE_PATH", "flof_journal.db"),
		},

		CalendarURL: getEnv("CALENDAR_URL", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Journal.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when JOURNAL_DRIVER=postgres")
		}
	case "sqlite":
		if c.Journal.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when JOURNAL_DRIVER=sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("JOURNAL_DRIVER must be one of: postgres, sqlite, memory")
	}

	if c.StartingEquity < 0 {
		return fmt.Errorf("STARTING_EQUITY must be >= 0")
	}

	if c.SessionTimezone != "" {
		if _, err := time.LoadLocation(c.SessionTimezone); err != nil {
			return fmt.Errorf("SESSION_TIMEZONE invalid: %w", err)
		}
	}

	return nil
}

// StrategyOverrides returns the dotted strategy config keys set by the environment
func (c *Config) StrategyOverrides() map[string]interface{} {
	out := make(map[string]interface{})
	if c.StartingEquity > 0 {
		out["system.starting_equity"] = c.StartingEquity
	}
	if c.SessionTimezone != "" {
		out["system.timezone"] = c.SessionTimezone
	}
	if c.Instrument != "" {
		out["system.instrument"] = c.Instrument
	}
	return out
}

// Location returns the session timezone (UTC on failure or when unset)
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.SessionTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
