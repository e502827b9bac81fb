package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pacs-databridge/app/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const matchCacheCollection = "match_cache"

// MongoCacheService is a persistent cache: an in-memory LRU in front of a
// Mongo collection keyed by raw_fingerprint.
type MongoCacheService struct {
	collection *mongo.Collection
	l1Cache    *lru.Cache[string, *models.MatchResult]
	logger     *zap.Logger

	l1Hits    atomic.Int64
	mongoHits atomic.Int64
	misses    atomic.Int64
}

func NewMongoCacheService(db *mongo.Database, l1Size int, logger *zap.Logger) (*MongoCacheService, error) {
	if l1Size <= 0 {
		l1Size = 10000
	}
	l1Cache, err := lru.New[string, *models.MatchResult](l1Size)
	if err != nil {
		return nil, fmt.Errorf("cannot create LRU cache: %w", err)
	}

	collection := db.Collection(matchCacheCollection)
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "raw_fingerprint", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "parcel_version", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "last_accessed", Value: 1}}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		logger.Warn("cannot create match_cache indexes", zap.Error(err))
	}

	return &MongoCacheService{
		collection: collection,
		l1Cache:    l1Cache,
		logger:     logger,
	}, nil
}

// Get checks the LRU, then Mongo. Mongo hits are promoted to the LRU.
func (mcs *MongoCacheService) Get(ctx context.Context, key string) (*models.MatchResult, bool, error) {
	if result, ok := mcs.l1Cache.Get(key); ok {
		mcs.l1Hits.Add(1)
		return result, true, nil
	}

	var entry models.MatchCache
	err := mcs.collection.FindOne(ctx, bson.M{"raw_fingerprint": key}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		mcs.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query match cache: %w", err)
	}

	mcs.mongoHits.Add(1)
	go mcs.updateAccessStats(entry.ID)

	mcs.l1Cache.Add(key, &entry.Result)
	mcs.logger.Debug("mongo cache hit", zap.String("key", key))
	return &entry.Result, true, nil
}

func (mcs *MongoCacheService) Set(ctx context.Context, key string, result *models.MatchResult) error {
	mcs.l1Cache.Add(key, result)

	entry := models.NewMatchCache(*result)
	entry.RawFingerprint = key

	_, err := mcs.collection.ReplaceOne(ctx,
		bson.M{"raw_fingerprint": key},
		entry,
		options.Replace().SetUpsert(true))
	if err != nil {
		mcs.logger.Error("cannot save to match cache", zap.Error(err), zap.String("key", key))
		return fmt.Errorf("save match cache: %w", err)
	}
	return nil
}

func (mcs *MongoCacheService) Delete(ctx context.Context, key string) error {
	mcs.l1Cache.Remove(key)
	if _, err := mcs.collection.DeleteOne(ctx, bson.M{"raw_fingerprint": key}); err != nil {
		return fmt.Errorf("delete match cache: %w", err)
	}
	return nil
}

func (mcs *MongoCacheService) Clear(ctx context.Context) error {
	mcs.l1Cache.Purge()
	if _, err := mcs.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("clear match cache: %w", err)
	}
	mcs.l1Hits.Store(0)
	mcs.mongoHits.Store(0)
	mcs.misses.Store(0)
	return nil
}

// InvalidateByParcelVersion purges the LRU and deletes stale documents.
// Manually verified entries survive.
func (mcs *MongoCacheService) InvalidateByParcelVersion(ctx context.Context, parcelVersion string) error {
	mcs.l1Cache.Purge()

	res, err := mcs.collection.DeleteMany(ctx, bson.M{
		"parcel_version":    bson.M{"$ne": parcelVersion},
		"manually_verified": bson.M{"$ne": true},
	})
	if err != nil {
		return fmt.Errorf("invalidate match cache: %w", err)
	}
	mcs.logger.Info("match cache invalidated",
		zap.String("parcel_version", parcelVersion),
		zap.Int64("deleted_count", res.DeletedCount))
	return nil
}

// MarkVerified flags a cached result as confirmed by a reviewer.
func (mcs *MongoCacheService) MarkVerified(ctx context.Context, key string) error {
	_, err := mcs.collection.UpdateOne(ctx,
		bson.M{"raw_fingerprint": key},
		bson.M{"$set": bson.M{"manually_verified": true}})
	return err
}

func (mcs *MongoCacheService) GetStats(ctx context.Context) (*CacheStats, error) {
	count, err := mcs.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("count match cache: %w", err)
	}
	hits := mcs.l1Hits.Load() + mcs.mongoHits.Load()
	mcs.logger.Debug("match cache stats",
		zap.Int64("l1_hits", mcs.l1Hits.Load()),
		zap.Int64("mongo_hits", mcs.mongoHits.Load()),
		zap.Int("l1_size", mcs.l1Cache.Len()))
	return newCacheStats(hits, mcs.misses.Load(), count), nil
}

func (mcs *MongoCacheService) Exists(ctx context.Context, key string) (bool, error) {
	if mcs.l1Cache.Contains(key) {
		return true, nil
	}
	count, err := mcs.collection.CountDocuments(ctx, bson.M{"raw_fingerprint": key})
	if err != nil {
		return false, fmt.Errorf("check match cache: %w", err)
	}
	return count > 0, nil
}

// GetTTL is always 0; Mongo entries live until invalidated.
func (mcs *MongoCacheService) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	return 0, nil
}

// Close is a no-op; the caller owns the Mongo client.
func (mcs *MongoCacheService) Close() error { return nil }

// WarmUp loads the most accessed entries into the LRU.
func (mcs *MongoCacheService) WarmUp(ctx context.Context, limit int) error {
	opts := options.Find().
		SetSort(bson.D{{Key: "access_count", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := mcs.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return fmt.Errorf("warm up match cache: %w", err)
	}
	defer cursor.Close(ctx)

	count := 0
	for cursor.Next(ctx) {
		var entry models.MatchCache
		if err := cursor.Decode(&entry); err != nil {
			mcs.logger.Warn("cannot decode match cache entry", zap.Error(err))
			continue
		}
		result := entry.Result
		mcs.l1Cache.Add(entry.RawFingerprint, &result)
		count++
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("warm up match cache: %w", err)
	}

	mcs.logger.Info("match cache warmed up", zap.Int("loaded_items", count))
	return nil
}

func (mcs *MongoCacheService) updateAccessStats(id primitive.ObjectID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := mcs.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set": bson.M{"last_accessed": time.Now()},
			"$inc": bson.M{"access_count": 1},
		})
	if err != nil {
		mcs.logger.Warn("cannot update access stats", zap.Error(err))
	}
}
