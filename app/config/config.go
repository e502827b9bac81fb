package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pacs-databridge/internal/matcher"
	"github.com/pacs-databridge/internal/parcels"
	"github.com/pacs-databridge/internal/search"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Env            string        `mapstructure:"env"`
	Port           string        `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// MatchingConfig holds scoring weights and status thresholds.
type MatchingConfig struct {
	Weights       matcher.Weights `mapstructure:"weights"`
	MinConfidence float64         `mapstructure:"min_confidence"`
	ReviewLow     float64         `mapstructure:"review_low"`
	MatchedHigh   float64         `mapstructure:"matched_high"`
	MaxResults    int             `mapstructure:"max_results"`
	CacheSize     int             `mapstructure:"cache_size"`
}

type RedisConfig struct {
	URL string        `mapstructure:"url"`
	TTL time.Duration `mapstructure:"ttl"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
	L1Size   int    `mapstructure:"l1_size"`
}

// CacheConfig selects the result cache: memory, redis, mongo or hybrid.
type CacheConfig struct {
	Type string        `mapstructure:"type"`
	TTL  time.Duration `mapstructure:"ttl"`
	Size int           `mapstructure:"size"`
}

type WorkerConfig struct {
	Concurrency       int     `mapstructure:"concurrency"`
	LookupsPerSecond  float64 `mapstructure:"lookups_per_second"`
	OutputPath        string  `mapstructure:"output_path"`
	SummaryPath       string  `mapstructure:"summary_path"`
	MaxBatchAddresses int     `mapstructure:"max_batch_addresses"`
}

type LibpostalConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config is the full service configuration.
type Config struct {
	App         AppConfig           `mapstructure:"app"`
	Matching    MatchingConfig      `mapstructure:"matching"`
	Database    parcels.SQLConfig   `mapstructure:"database"`
	Meilisearch search.SearchConfig `mapstructure:"meilisearch"`
	Redis       RedisConfig         `mapstructure:"redis"`
	Mongo       MongoConfig         `mapstructure:"mongo"`
	Cache       CacheConfig         `mapstructure:"cache"`
	Worker      WorkerConfig        `mapstructure:"worker"`
	Libpostal   LibpostalConfig     `mapstructure:"libpostal"`
}

// Load reads .env (if present), then config/databridge.yaml, then
// DATABRIDGE_* environment variables. path, when non-empty, names the
// config file explicitly.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("databridge")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("DATABRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.request_timeout", "1500ms")

	w := matcher.DefaultWeights
	v.SetDefault("matching.weights.street_number", w.StreetNumber)
	v.SetDefault("matching.weights.street_name", w.StreetName)
	v.SetDefault("matching.weights.street_type", w.StreetType)
	v.SetDefault("matching.weights.unit", w.Unit)
	v.SetDefault("matching.weights.city", w.City)
	v.SetDefault("matching.weights.state", w.State)
	v.SetDefault("matching.weights.zip", w.Zip)
	v.SetDefault("matching.min_confidence", matcher.DefaultMinConfidence)
	v.SetDefault("matching.review_low", 70)
	v.SetDefault("matching.matched_high", 90)
	v.SetDefault("matching.max_results", 5)
	v.SetDefault("matching.cache_size", 10000)

	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.table", "property")
	v.SetDefault("database.limit", 10)
	v.SetDefault("database.columns.parcel_id", parcels.DefaultColumns.ParcelID)
	v.SetDefault("database.columns.street_number", parcels.DefaultColumns.StreetNumber)
	v.SetDefault("database.columns.street_name", parcels.DefaultColumns.StreetName)
	v.SetDefault("database.columns.city", parcels.DefaultColumns.City)
	v.SetDefault("database.columns.state", parcels.DefaultColumns.State)
	v.SetDefault("database.columns.zip", parcels.DefaultColumns.Zip)
	v.SetDefault("database.columns.owner_name", parcels.DefaultColumns.OwnerName)
	v.SetDefault("database.columns.property_use", parcels.DefaultColumns.PropertyUse)

	v.SetDefault("meilisearch.url", "http://localhost:7700")
	v.SetDefault("meilisearch.index", "parcels")
	v.SetDefault("meilisearch.timeout", "5s")
	v.SetDefault("meilisearch.max_candidates", 20)

	v.SetDefault("redis.url", "redis://localhost:6379")
	v.SetDefault("redis.ttl", "24h")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "databridge")
	v.SetDefault("mongo.l1_size", 10000)

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.size", 10000)

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.lookups_per_second", 20)
	v.SetDefault("worker.max_batch_addresses", 10000)

	v.SetDefault("libpostal.enabled", false)
}

// Validate checks thresholds and the cache and driver selections.
func (c *Config) Validate() error {
	m := c.Matching
	for name, v := range map[string]float64{
		"min_confidence": m.MinConfidence,
		"review_low":     m.ReviewLow,
		"matched_high":   m.MatchedHigh,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("matching.%s must be within [0, 100], got %v", name, v)
		}
	}
	if m.ReviewLow > m.MatchedHigh {
		return fmt.Errorf("matching.review_low (%v) exceeds matching.matched_high (%v)", m.ReviewLow, m.MatchedHigh)
	}
	if m.MaxResults < 0 {
		return fmt.Errorf("matching.max_results must not be negative, got %d", m.MaxResults)
	}

	switch c.Cache.Type {
	case "memory", "redis", "mongo", "hybrid":
	default:
		return fmt.Errorf("cache.type must be memory, redis, mongo or hybrid, got: %s", c.Cache.Type)
	}
	if (c.Cache.Type == "redis" || c.Cache.Type == "hybrid") && c.Redis.URL == "" {
		return errors.New("redis.url is required for the redis and hybrid caches")
	}

	switch c.Database.Driver {
	case "", "pgx", "postgres", "mysql":
	default:
		return fmt.Errorf("database.driver must be pgx, postgres or mysql, got: %s", c.Database.Driver)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1, got %d", c.Worker.Concurrency)
	}
	return nil
}

// MatcherConfig is the engine configuration derived from Matching.
func (c *Config) MatcherConfig() matcher.Config {
	return matcher.Config{Weights: c.Matching.Weights, CacheSize: c.Matching.CacheSize}
}
