// Package bootstrap builds the service graph shared by the API server, the
// worker and the CLI from a loaded configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pacs-databridge/app/config"
	"github.com/pacs-databridge/app/controllers"
	"github.com/pacs-databridge/app/services"
	"github.com/pacs-databridge/internal/matcher"
	"github.com/pacs-databridge/internal/normalizer"
	"github.com/pacs-databridge/internal/parcels"
	"github.com/pacs-databridge/internal/search"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Container holds every long-lived component. Searcher, SQL and Mongo are
// nil when the corresponding backend is not configured.
type Container struct {
	Config     *config.Config
	Normalizer *normalizer.AddressNormalizer
	Matcher    *matcher.Matcher
	Memory     *parcels.MemorySource
	Searcher   *search.ParcelSearcher
	SQL        *parcels.SQLSource
	Mongo      *mongo.Database
	Cache      services.ICacheService
	Reviews    services.ReviewStore
	Match      *services.MatchService
	Batches    *services.BatchService
	Admin      *services.AdminService
	Checks     map[string]controllers.HealthCheck

	logger  *zap.Logger
	closers []func(context.Context) error
}

// New wires the container. Backends that are configured but unreachable
// are fatal when something depends on them exclusively (the SQL source, a
// mongo or hybrid cache); otherwise they are logged and skipped.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{
		Config: cfg,
		Checks: make(map[string]controllers.HealthCheck),
		logger: logger,
	}

	c.Normalizer = normalizer.NewAddressNormalizer()
	m, err := matcher.NewMatcher(c.Normalizer, cfg.MatcherConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("matcher: %w", err)
	}
	c.Matcher = m

	source, err := c.initSources(ctx)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}

	if err := c.initMongoDB(ctx); err != nil {
		c.Close(ctx)
		return nil, err
	}
	c.initReviews(ctx)

	if err := c.initCache(ctx); err != nil {
		c.Close(ctx)
		return nil, err
	}

	c.Match = services.NewMatchService(m, source, c.Cache, c.Reviews, services.Thresholds{
		MinConfidence: cfg.Matching.MinConfidence,
		ReviewLow:     cfg.Matching.ReviewLow,
		MatchedHigh:   cfg.Matching.MatchedHigh,
		MaxResults:    cfg.Matching.MaxResults,
	}, logger)

	bm := services.NewBatchMatcher(c.Match, cfg.Worker.Concurrency, cfg.Worker.LookupsPerSecond)
	c.Batches = services.NewBatchService(bm, cfg.Worker.MaxBatchAddresses, logger)

	var indexer services.ParcelIndexer
	if c.Searcher != nil {
		indexer = c.Searcher
	}
	c.Admin = services.NewAdminService(c.Mongo, indexer, c.Memory, c.Match, c.Reviews, c.Batches, logger)

	version, err := c.Admin.RestoreParcelVersion(ctx)
	if err != nil {
		logger.Warn("Could not restore parcel index version", zap.Error(err))
	} else if version != "" {
		logger.Info("Restored parcel index version", zap.String("version", version))
	}

	return c, nil
}

// initSources chains Meilisearch, SQL and the in-memory parcel list, in
// that order.
func (c *Container) initSources(ctx context.Context) (parcels.Source, error) {
	cfg := c.Config
	var chain []parcels.NamedSource

	if cfg.Meilisearch.Host != "" {
		searcher, err := search.NewParcelSearcher(cfg.Meilisearch, c.Normalizer, c.logger)
		if err != nil {
			c.logger.Warn("Meilisearch unavailable, continuing without search index", zap.Error(err))
		} else {
			c.Searcher = searcher
			c.Checks["meilisearch"] = searcher.Health
			chain = append(chain, parcels.NamedSource{Name: "meilisearch", Source: searcher})
		}
	}

	if cfg.Database.DSN != "" {
		driver := cfg.Database.Driver
		if driver == "" {
			driver = "pgx"
		}
		db, err := parcels.OpenDB(ctx, driver, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("parcel database: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return db.Close() })

		sqlCfg := cfg.Database
		sqlCfg.Driver = driver
		src, err := parcels.NewSQLSource(db, sqlCfg, c.logger)
		if err != nil {
			return nil, fmt.Errorf("parcel database: %w", err)
		}
		c.SQL = src
		c.Checks["database"] = db.PingContext
		chain = append(chain, parcels.NamedSource{Name: "sql", Source: src})
	}

	c.Memory = parcels.NewMemorySource(c.Normalizer, cfg.Database.Limit)
	chain = append(chain, parcels.NamedSource{Name: "memory", Source: c.Memory})

	return parcels.NewFallbackSource(c.logger, chain...), nil
}

func (c *Container) needsMongo() bool {
	return c.Config.Cache.Type == "mongo" || c.Config.Cache.Type == "hybrid"
}

func (c *Container) initMongoDB(ctx context.Context) error {
	cfg := c.Config.Mongo
	if cfg.URI == "" {
		if c.needsMongo() {
			return errors.New("mongo.uri is required for the mongo and hybrid caches")
		}
		return nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return c.mongoUnavailable(err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return c.mongoUnavailable(err)
	}

	c.logger.Info("Connected to MongoDB", zap.String("database", cfg.Database))
	c.Mongo = client.Database(cfg.Database)
	c.Checks["mongodb"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	c.closers = append(c.closers, client.Disconnect)
	return nil
}

func (c *Container) mongoUnavailable(err error) error {
	if c.needsMongo() {
		return fmt.Errorf("mongodb: %w", err)
	}
	c.logger.Warn("MongoDB unavailable, using in-memory review queue", zap.Error(err))
	return nil
}

func (c *Container) initReviews(ctx context.Context) {
	if c.Mongo == nil {
		c.Reviews = services.NewMemoryReviewStore()
		return
	}
	store := services.NewMongoReviewStore(c.Mongo, c.logger)
	if err := store.EnsureIndexes(ctx); err != nil {
		c.logger.Warn("Cannot create match_reviews indexes", zap.Error(err))
	}
	c.Reviews = store
}

func (c *Container) initCache(ctx context.Context) error {
	cfg := c.Config
	switch cfg.Cache.Type {
	case "", "memory":
		c.Cache = services.NewMemoryCacheService(cfg.Cache.Size, cfg.Cache.TTL)
	case "redis":
		rc, err := c.redisCache()
		if err != nil {
			return err
		}
		c.Cache = rc
	case "mongo":
		mc, err := services.NewMongoCacheService(c.Mongo, cfg.Mongo.L1Size, c.logger)
		if err != nil {
			return fmt.Errorf("mongo cache: %w", err)
		}
		c.Cache = mc
	case "hybrid":
		rc, err := c.redisCache()
		if err != nil {
			return err
		}
		mc, err := services.NewMongoCacheService(c.Mongo, cfg.Mongo.L1Size, c.logger)
		if err != nil {
			rc.Close()
			return fmt.Errorf("mongo cache: %w", err)
		}
		c.Cache = services.NewHybridCacheService(rc, mc, c.logger)
	default:
		return fmt.Errorf("unknown cache type %q", cfg.Cache.Type)
	}
	c.closers = append(c.closers, func(context.Context) error { return c.Cache.Close() })
	c.logger.Info("Result cache ready", zap.String("type", cfg.Cache.Type))
	return nil
}

func (c *Container) redisCache() (*services.RedisCacheService, error) {
	rc, err := services.NewRedisCacheService(c.Config.Redis.URL, c.Config.Redis.TTL, c.logger)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	c.Checks["redis"] = rc.Ping
	return rc, nil
}

// Close releases backends in reverse order of acquisition.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
