package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/pacs-databridge/app/models"
	"github.com/pacs-databridge/internal/parcels"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const parcelVersionCollection = "parcel_index_versions"

// ParcelIndexer is the search index parcel loads are pushed into.
type ParcelIndexer interface {
	BuildIndex() error
	IndexParcels(ctx context.Context, list []parcels.Parcel) (int, error)
	ClearIndex() error
}

// AdminService loads parcel files into the candidate sources and reports
// system state.
type AdminService struct {
	db      *mongo.Database
	indexer ParcelIndexer
	memory  *parcels.MemorySource
	match   *MatchService
	reviews ReviewStore
	batches *BatchService
	logger  *zap.Logger
}

// ParcelValidation lists problems found in a parcel file before loading.
type ParcelValidation struct {
	Passed   bool     `json:"passed"`
	Valid    int      `json:"valid"`
	Warnings []string `json:"warnings"`
}

// IndexResult reports one parcel load.
type IndexResult struct {
	Version          string   `json:"version"`
	ParcelCount      int      `json:"parcel_count"`
	Indexed          int      `json:"indexed"`
	Warnings         []string `json:"warnings,omitempty"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
}

// SystemStats is the admin statistics payload.
type SystemStats struct {
	Uptime        string                 `json:"uptime"`
	ParcelVersion string                 `json:"parcel_version"`
	Matching      MatchStats             `json:"matching"`
	Cache         *CacheStats            `json:"cache,omitempty"`
	ReviewQueue   int64                  `json:"review_queue_size"`
	Jobs          map[string]int         `json:"jobs,omitempty"`
	MemoryUsage   map[string]interface{} `json:"memory_usage"`
	DatabaseStats *DatabaseStats         `json:"database_stats,omitempty"`
}

// DatabaseStats counts the MongoDB collections.
type DatabaseStats struct {
	MatchCache    int64 `json:"match_cache"`
	MatchReviews  int64 `json:"match_reviews"`
	IndexVersions int64 `json:"parcel_index_versions"`
}

// NewAdminService takes optional parts: db, indexer, memory, reviews and
// batches may be nil.
func NewAdminService(db *mongo.Database, indexer ParcelIndexer, memory *parcels.MemorySource, match *MatchService, reviews ReviewStore, batches *BatchService, logger *zap.Logger) *AdminService {
	return &AdminService{
		db:      db,
		indexer: indexer,
		memory:  memory,
		match:   match,
		reviews: reviews,
		batches: batches,
		logger:  logger,
	}
}

// ValidateParcels checks ids and situs fields. It fails only when no parcel
// is usable.
func (as *AdminService) ValidateParcels(list []parcels.Parcel) *ParcelValidation {
	v := &ParcelValidation{Warnings: []string{}}
	seen := make(map[string]int, len(list))
	for i, p := range list {
		switch {
		case p.ParcelID == "":
			v.Warnings = append(v.Warnings, fmt.Sprintf("Missing parcel_id at row %d", i+1))
			continue
		case p.StreetNumber == "" && p.StreetName == "" && p.Address == "":
			v.Warnings = append(v.Warnings, fmt.Sprintf("Parcel %s has no situs address", p.ParcelID))
			continue
		}
		if prev, dup := seen[p.ParcelID]; dup {
			v.Warnings = append(v.Warnings, fmt.Sprintf("Duplicate parcel_id %s at rows %d and %d", p.ParcelID, prev, i+1))
		}
		seen[p.ParcelID] = i + 1
		v.Valid++
	}
	v.Passed = v.Valid > 0
	return v
}

// IndexParcels loads a parcel CSV into the search index and the in-memory
// source, records the new index version and invalidates results computed
// against older versions. clearIndex empties the search index first.
func (as *AdminService) IndexParcels(ctx context.Context, r io.Reader, source string, clearIndex bool) (*IndexResult, error) {
	startTime := time.Now()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read parcel file: %w", err)
	}
	list, err := parcels.LoadParcelsCSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse parcel file: %w", err)
	}
	validation := as.ValidateParcels(list)
	if !validation.Passed {
		return nil, fmt.Errorf("parcel file has no usable rows: %v", validation.Warnings)
	}

	version := Fingerprint(string(data))
	result := &IndexResult{
		Version:     version,
		ParcelCount: len(list),
		Warnings:    validation.Warnings,
	}

	if as.indexer != nil {
		if clearIndex {
			if err := as.indexer.ClearIndex(); err != nil {
				return nil, fmt.Errorf("clear parcel index: %w", err)
			}
		}
		if err := as.indexer.BuildIndex(); err != nil {
			return nil, fmt.Errorf("configure parcel index: %w", err)
		}
		indexed, err := as.indexer.IndexParcels(ctx, list)
		if err != nil {
			return nil, fmt.Errorf("index parcels: %w", err)
		}
		result.Indexed = indexed
	}
	if as.memory != nil {
		as.memory.Load(list)
		if as.indexer == nil {
			result.Indexed = as.memory.Len()
		}
	}

	if as.db != nil {
		record := models.ParcelIndexVersion{
			Version:     version,
			Source:      source,
			ParcelCount: len(list),
			Indexed:     result.Indexed,
			CreatedAt:   time.Now(),
		}
		if _, err := as.db.Collection(parcelVersionCollection).InsertOne(ctx, record); err != nil {
			as.logger.Warn("Failed to record parcel index version", zap.String("version", version), zap.Error(err))
		}
	}

	as.match.SetParcelVersion(version)
	if cache := as.match.Cache(); cache != nil {
		if err := cache.InvalidateByParcelVersion(ctx, version); err != nil {
			as.logger.Warn("Cache invalidation after parcel load failed", zap.Error(err))
		}
	}

	result.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	as.logger.Info("Parcel index load completed",
		zap.String("version", version),
		zap.String("source", source),
		zap.Int("parcels", len(list)),
		zap.Int("indexed", result.Indexed),
		zap.Int("warnings", len(validation.Warnings)),
		zap.Duration("processing_time", time.Since(startTime)))
	return result, nil
}

// RestoreParcelVersion applies the most recently recorded index version,
// so cached results survive a restart.
func (as *AdminService) RestoreParcelVersion(ctx context.Context) (string, error) {
	if as.db == nil {
		return "", nil
	}
	var latest models.ParcelIndexVersion
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	err := as.db.Collection(parcelVersionCollection).FindOne(ctx, bson.M{}, opts).Decode(&latest)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find parcel index version: %w", err)
	}
	as.match.SetParcelVersion(latest.Version)
	return latest.Version, nil
}

// InvalidateCache drops results for older parcel versions, or every cached
// result when all is set.
func (as *AdminService) InvalidateCache(ctx context.Context, all bool) error {
	cache := as.match.Cache()
	if cache == nil {
		return nil
	}
	if all {
		return cache.Clear(ctx)
	}
	return cache.InvalidateByParcelVersion(ctx, as.match.ParcelVersion())
}

func (as *AdminService) GetSystemStats(ctx context.Context) (*SystemStats, error) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := &SystemStats{
		Uptime:        time.Since(as.match.GetStartTime()).Round(time.Second).String(),
		ParcelVersion: as.match.ParcelVersion(),
		Matching:      as.match.GetStats(),
		MemoryUsage: map[string]interface{}{
			"alloc_mb":       bToMb(m.Alloc),
			"total_alloc_mb": bToMb(m.TotalAlloc),
			"sys_mb":         bToMb(m.Sys),
			"num_gc":         m.NumGC,
			"goroutines":     runtime.NumGoroutine(),
		},
	}

	if cache := as.match.Cache(); cache != nil {
		cs, err := cache.GetStats(ctx)
		if err != nil {
			as.logger.Warn("Cache stats unavailable", zap.Error(err))
		} else {
			stats.Cache = cs
		}
	}
	if as.reviews != nil {
		n, err := as.reviews.Count(ctx, models.ReviewStatusPending)
		if err != nil {
			return nil, fmt.Errorf("count pending reviews: %w", err)
		}
		stats.ReviewQueue = n
	}
	if as.batches != nil {
		stats.Jobs = as.batches.JobCounts()
	}
	if as.db != nil {
		dbStats, err := as.getDatabaseStats(ctx)
		if err != nil {
			return nil, fmt.Errorf("database stats: %w", err)
		}
		stats.DatabaseStats = dbStats
	}
	return stats, nil
}

func (as *AdminService) getDatabaseStats(ctx context.Context) (*DatabaseStats, error) {
	stats := &DatabaseStats{}
	for name, dst := range map[string]*int64{
		"match_cache":           &stats.MatchCache,
		"match_reviews":         &stats.MatchReviews,
		parcelVersionCollection: &stats.IndexVersions,
	} {
		n, err := as.db.Collection(name).EstimatedDocumentCount(ctx)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		*dst = n
	}
	return stats, nil
}

// ExportData dumps up to limit documents of a collection as indented JSON.
func (as *AdminService) ExportData(ctx context.Context, collection string, limit int) ([]byte, error) {
	if as.db == nil {
		return nil, errors.New("export requires MongoDB")
	}
	switch collection {
	case "match_cache", "match_reviews", parcelVersionCollection:
	default:
		return nil, fmt.Errorf("unsupported export collection: %s", collection)
	}
	if limit <= 0 {
		limit = 1000
	}

	cursor, err := as.db.Collection(collection).Find(ctx, bson.M{}, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	results := []bson.M{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	return json.MarshalIndent(results, "", "  ")
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
