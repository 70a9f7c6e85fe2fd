package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const minJWTSecretLength = 32

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory" // process-local, seeded with demo data
)

var digitsOnly = regexp.MustCompile(`^\d+$`)

// Config holds application configuration read from the environment.
type Config struct {
	Storage     string
	DatabaseURL string

	RedisAddr     string // empty disables Redis; an in-process cache is used instead
	RedisPassword string
	RedisDB       int

	JWTSecret string

	TwelveDataAPIKey  string
	TwelveDataBaseURL string

	InitialBalance      decimal.Decimal
	MaxTradeQuantity    int64
	MarketDataRateLimit int
	MarketTimezone      string

	Port      int
	GinMode   string
	LogLevel  string
	LogPretty bool
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var problems []string

	initialBalance := getEnv("INITIAL_BALANCE", "100000")
	if !digitsOnly.MatchString(initialBalance) {
		problems = append(problems, "INITIAL_BALANCE must be a number")
		initialBalance = "0"
	}

	cfg := &Config{
		Storage:             strings.ToLower(getEnv("STORAGE", StoragePostgres)),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvAsInt("REDIS_DB", 0),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		TwelveDataAPIKey:    getEnv("TWELVEDATA_API_KEY", ""),
		TwelveDataBaseURL:   getEnv("TWELVEDATA_BASE_URL", "https://api.twelvedata.com"),
		InitialBalance:      decimal.RequireFromString(initialBalance),
		MaxTradeQuantity:    int64(getEnvAsInt("MAX_TRADE_QUANTITY", 10000)),
		MarketDataRateLimit: getEnvAsInt("MARKETDATA_RATE_LIMIT", 8),
		MarketTimezone:      getEnv("MARKET_TIMEZONE", "America/New_York"),
		Port:                getEnvAsInt("PORT", 8080),
		GinMode:             getEnv("GIN_MODE", "release"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogPretty:           getEnvAsBool("LOG_PRETTY", false),
	}
	if cfg.DatabaseURL == "" && os.Getenv("DB_HOST") != "" {
		cfg.DatabaseURL = postgresDSN()
	}

	problems = append(problems, cfg.validate()...)
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid environment variables:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return cfg, nil
}

func (c *Config) validate() []string {
	var problems []string
	switch {
	case c.Storage != StoragePostgres && c.Storage != StorageMemory:
		problems = append(problems, fmt.Sprintf("STORAGE must be %q or %q", StoragePostgres, StorageMemory))
	case c.Storage == StoragePostgres && c.DatabaseURL == "":
		problems = append(problems, "DATABASE_URL (or DB_HOST/DB_USER/DB_PASSWORD/DB_NAME/DB_PORT) is required")
	}
	if len(c.JWTSecret) < minJWTSecretLength {
		problems = append(problems, fmt.Sprintf("JWT_SECRET must be at least %d characters", minJWTSecretLength))
	}
	if c.TwelveDataAPIKey == "" {
		problems = append(problems, "TWELVEDATA_API_KEY is required")
	}
	if c.MaxTradeQuantity < 1 {
		problems = append(problems, "MAX_TRADE_QUANTITY must be positive")
	}
	if c.MarketDataRateLimit < 1 {
		problems = append(problems, "MARKETDATA_RATE_LIMIT must be positive")
	}
	if _, err := time.LoadLocation(c.MarketTimezone); err != nil {
		problems = append(problems, fmt.Sprintf("MARKET_TIMEZONE %q is not a known time zone", c.MarketTimezone))
	}
	return problems
}

// MarketLocation is the time zone used for market-close timestamps.
func (c *Config) MarketLocation() *time.Location {
	loc, err := time.LoadLocation(c.MarketTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// postgresDSN builds a DSN from the discrete DB_* variables.
func postgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		getEnv("DB_PORT", "5432"),
	)
}

// InitDB opens the PostgreSQL connection.
func InitDB(cfg *Config) (*gorm.DB, error) {
	level := logger.Warn
	if cfg.LogLevel == "debug" {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}
	return db, nil
}

// InitRedis connects to Redis. It returns a nil client when no address is configured.
func InitRedis(ctx context.Context, cfg *Config, log zerolog.Logger) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		log.Info().Msg("REDIS_ADDR not set, using in-process cache")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
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
