package config

import (
	"fmt"
	"time"

	"github.com/rpattn/stockflow/internal/db"
	"github.com/rpattn/stockflow/internal/importer"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// RedisConfig holds the job status cache settings. An empty Addr disables
// the Redis layer entirely.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Config aggregates all runtime configuration.
type Config struct {
	Database db.Config
	Server   ServerConfig
	Redis    RedisConfig
	Batch    importer.BatchConfig
	Cache    importer.CacheConfig
}

// Load reads config.yaml from configPath, with environment overrides under
// the STOCKFLOW prefix (STOCKFLOW_DATABASE_HOST, STOCKFLOW_REDIS_ADDR, ...).
func Load(configPath string) (Config, error) {
	cfg := Config{
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Redis: RedisConfig{TTL: 10 * time.Minute},
		Batch: importer.DefaultBatchConfig(),
		Cache: importer.DefaultCacheConfig(),
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv() // allow environment overrides
	v.SetEnvPrefix("STOCKFLOW")

	// Map nested keys to flat env vars
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")
	v.BindEnv("redis.addr")
	v.BindEnv("redis.password")
	v.BindEnv("redis.db")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	// Override defaults if values exist
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}

	if v.IsSet("redis.addr") {
		cfg.Redis.Addr = v.GetString("redis.addr")
	}
	if v.IsSet("redis.password") {
		cfg.Redis.Password = v.GetString("redis.password")
	}
	if v.IsSet("redis.db") {
		cfg.Redis.DB = v.GetInt("redis.db")
	}
	if v.IsSet("redis.ttl") {
		cfg.Redis.TTL = v.GetDuration("redis.ttl")
	}

	if v.IsSet("import.retry_attempts") {
		cfg.Batch.RetryAttempts = v.GetInt("import.retry_attempts")
	}
	if v.IsSet("import.backoff_delay") {
		cfg.Batch.BackoffDelay = v.GetDuration("import.backoff_delay")
	}
	if v.IsSet("import.batch_timeout") {
		cfg.Batch.BatchTimeout = v.GetDuration("import.batch_timeout")
	}
	if v.IsSet("import.memory_ceiling_bytes") {
		cfg.Batch.MemoryCeilingBytes = v.GetUint64("import.memory_ceiling_bytes")
	}

	if v.IsSet("cache.ttl") {
		cfg.Cache.TTL = v.GetDuration("cache.ttl")
	}
	if v.IsSet("cache.max_entries") {
		cfg.Cache.MaxEntries = v.GetInt("cache.max_entries")
	}
	if v.IsSet("cache.max_bytes") {
		cfg.Cache.MaxBytes = v.GetInt64("cache.max_bytes")
	}
	if v.IsSet("cache.sweep_interval") {
		cfg.Cache.SweepInterval = v.GetDuration("cache.sweep_interval")
	}

	return cfg, nil
}
