package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Application settings
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Sync     SyncConfig
	External ExternalConfig
	Storage  StorageConfig
	Report   ReportConfig
}

// Server settings
type ServerConfig struct {
	Port string
}

type SyncConfig struct {
	WorkerPoolSize     int
	ShardThreshold     int
	RequestTimeout     time.Duration
	RateLimitPerSecond int
}

type ExternalConfig struct {
	TransactionsAPIURL string
	SinkURL            string
	SinkSecret         string
}

type StorageConfig struct {
	Backend         string
	DatabaseURL     string
	DBMaxConns      int
	ArsenalStore    string
	RedisURL        string
	ArsenalSeedFile string
}

// ReportConfig holds the derived-metric policy and page limits
type ReportConfig struct {
	AllowanceRate      decimal.Decimal
	RefundRateGood     decimal.Decimal
	RefundRateCritical decimal.Decimal
	DefaultPageSize    int
	MaxPageSize        int
}

// Logging settings
type LoggingConfig struct {
	Level string
}

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("WORKER_POOL_SIZE", 4)
	v.SetDefault("SHARD_THRESHOLD", 50000)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("RATE_LIMIT_PER_SECOND", 100)
	v.SetDefault("TRANSACTIONS_API_URL", "")
	v.SetDefault("SINK_URL", "")
	v.SetDefault("SINK_SECRET", "")
	v.SetDefault("STORAGE_BACKEND", BackendMemory)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("ARSENAL_STORE", BackendMemory)
	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("ARSENAL_SEED_FILE", "")
	v.SetDefault("ALLOWANCE_RATE", "0.10")
	v.SetDefault("REFUND_RATE_GOOD", "1")
	v.SetDefault("REFUND_RATE_CRITICAL", "3")
	v.SetDefault("DEFAULT_PAGE_SIZE", 50)
	v.SetDefault("MAX_PAGE_SIZE", 500)
}

// Load reads defaults, then the optional config file, then the environment.
// An empty path falls back to CONFIG_FILE.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile == "" {
		configFile = v.GetString("CONFIG_FILE")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: v.GetString("PORT"),
		},
		Sync: SyncConfig{
			WorkerPoolSize:     v.GetInt("WORKER_POOL_SIZE"),
			ShardThreshold:     v.GetInt("SHARD_THRESHOLD"),
			RequestTimeout:     v.GetDuration("REQUEST_TIMEOUT"),
			RateLimitPerSecond: v.GetInt("RATE_LIMIT_PER_SECOND"),
		},
		External: ExternalConfig{
			TransactionsAPIURL: v.GetString("TRANSACTIONS_API_URL"),
			SinkURL:            v.GetString("SINK_URL"),
			SinkSecret:         v.GetString("SINK_SECRET"),
		},
		Storage: StorageConfig{
			Backend:         strings.ToLower(v.GetString("STORAGE_BACKEND")),
			DatabaseURL:     v.GetString("DATABASE_URL"),
			DBMaxConns:      v.GetInt("DB_MAX_CONNS"),
			ArsenalStore:    strings.ToLower(v.GetString("ARSENAL_STORE")),
			RedisURL:        v.GetString("REDIS_URL"),
			ArsenalSeedFile: v.GetString("ARSENAL_SEED_FILE"),
		},
		Report: ReportConfig{
			DefaultPageSize: v.GetInt("DEFAULT_PAGE_SIZE"),
			MaxPageSize:     v.GetInt("MAX_PAGE_SIZE"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	var err error
	if config.Report.AllowanceRate, err = getDecimal(v, "ALLOWANCE_RATE"); err != nil {
		return nil, err
	}
	if config.Report.RefundRateGood, err = getDecimal(v, "REFUND_RATE_GOOD"); err != nil {
		return nil, err
	}
	if config.Report.RefundRateCritical, err = getDecimal(v, "REFUND_RATE_CRITICAL"); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}

	switch c.Storage.ArsenalStore {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown ARSENAL_STORE %q", c.Storage.ArsenalStore)
	}

	if c.Report.RefundRateGood.GreaterThan(c.Report.RefundRateCritical) {
		return errors.New("REFUND_RATE_GOOD must not exceed REFUND_RATE_CRITICAL")
	}
	if c.Report.DefaultPageSize < 1 || c.Report.MaxPageSize < c.Report.DefaultPageSize {
		return fmt.Errorf("invalid page sizes: default %d, max %d", c.Report.DefaultPageSize, c.Report.MaxPageSize)
	}
	if c.Sync.WorkerPoolSize < 1 {
		c.Sync.WorkerPoolSize = 1
	}
	return nil
}

func getDecimal(v *viper.Viper, key string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.GetString(key))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
