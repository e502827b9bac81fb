package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pacs-databridge/app/models"
	"github.com/pacs-databridge/app/requests"
	"github.com/pacs-databridge/internal/matcher"
	"github.com/pacs-databridge/internal/normalizer"
	"github.com/pacs-databridge/internal/parcels"
	"go.uber.org/zap"
)

// Thresholds are the matching defaults and status bounds.
type Thresholds struct {
	MinConfidence float64
	ReviewLow     float64
	MatchedHigh   float64
	MaxResults    int
}

// MatchService normalizes raw addresses and matches them against a parcel
// source, caching results and queueing uncertain matches for review.
type MatchService struct {
	normalizer *normalizer.AddressNormalizer
	matcher    *matcher.Matcher
	source     parcels.Source
	cache      ICacheService
	reviews    ReviewStore
	thresholds Thresholds
	logger     *zap.Logger
	startTime  time.Time

	mu            sync.RWMutex
	parcelVersion string
	processed     int64
	cacheHits     int64
	statusCounts  map[string]int64
	totalLatency  time.Duration
}

// NewMatchService wires the engine to a candidate source. cache and reviews
// may be nil.
func NewMatchService(m *matcher.Matcher, source parcels.Source, cache ICacheService, reviews ReviewStore, thresholds Thresholds, logger *zap.Logger) *MatchService {
	return &MatchService{
		normalizer:   m.Normalizer(),
		matcher:      m,
		source:       source,
		cache:        cache,
		reviews:      reviews,
		thresholds:   thresholds,
		logger:       logger,
		startTime:    time.Now(),
		statusCounts: make(map[string]int64),
	}
}

func (ms *MatchService) Normalize(raw string) string {
	return ms.normalizer.Normalize(raw)
}

func (ms *MatchService) Parse(raw string) normalizer.ParsedAddress {
	return ms.normalizer.Parse(raw)
}

// MatchAddress runs one address through normalize, candidate lookup and
// scoring. The bool reports a cache hit.
func (ms *MatchService) MatchAddress(ctx context.Context, raw string, opts requests.MatchOptions) (*models.MatchResult, bool, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, false, fmt.Errorf("%w: address is empty", matcher.ErrInvalidArgument)
	}
	start := time.Now()

	minConf, maxResults := ms.resolve(opts)
	if minConf < 0 || minConf > 100 || maxResults < 0 {
		return nil, false, fmt.Errorf("%w: min_confidence %v, max_results %d", matcher.ErrInvalidArgument, minConf, maxResults)
	}
	normalized := ms.normalizer.Normalize(raw)
	version := ms.ParcelVersion()
	key := Fingerprint(fmt.Sprintf("%s|%g|%d|%s", normalized, minConf, maxResults, version))

	useCache := ms.cache != nil && opts.CacheEnabled()
	if useCache {
		cached, found, err := ms.cache.Get(ctx, key)
		if err != nil {
			ms.logger.Warn("Cache lookup failed", zap.String("key", key), zap.Error(err))
		} else if found {
			hit := *cached
			hit.Raw = raw
			ms.record(hit.Status, true, time.Since(start))
			return &hit, true, nil
		}
	}

	parsed := ms.normalizer.Parse(raw)
	candidates, err := ms.source.LookupCandidates(ctx, parcels.HintFromParsed(parsed, raw))
	if err != nil {
		return nil, false, fmt.Errorf("candidate lookup: %w", err)
	}

	matches, err := ms.matcher.Match(raw, candidates,
		matcher.WithMinConfidence(minConf),
		matcher.WithMaxResults(maxResults))
	if err != nil {
		return nil, false, err
	}
	if matches == nil {
		matches = []matcher.Match{}
	}

	result := &models.MatchResult{
		Raw:            raw,
		Normalized:     normalized,
		Standardized:   parsed.Standardized(),
		Parsed:         parsed,
		RawFingerprint: key,
		Matches:        matches,
		CandidateCount: len(candidates),
		ParcelVersion:  version,
	}
	if len(matches) > 0 {
		result.Confidence = matches[0].Confidence
	}
	result.Status = models.ClassifyStatus(result.Confidence, ms.thresholds.ReviewLow, ms.thresholds.MatchedHigh, len(candidates))

	if useCache {
		if err := ms.cache.Set(ctx, key, result); err != nil {
			ms.logger.Warn("Cache store failed", zap.String("key", key), zap.Error(err))
		}
	}
	if result.Status == models.StatusNeedsReview && ms.reviews != nil {
		if _, err := ms.reviews.Enqueue(ctx, models.NewMatchReview(*result)); err != nil {
			ms.logger.Warn("Review enqueue failed", zap.String("raw", raw), zap.Error(err))
		}
	}

	ms.record(result.Status, false, time.Since(start))
	ms.logger.Debug("Matched address",
		zap.String("raw", raw),
		zap.String("standardized", result.Standardized),
		zap.Int("candidates", len(candidates)),
		zap.Float64("confidence", result.Confidence),
		zap.String("status", result.Status))
	return result, false, nil
}

// ErrorResult is the per-address result a batch records when matching fails.
func ErrorResult(raw string, err error) *models.MatchResult {
	status := models.StatusError
	if errors.Is(err, matcher.ErrInvalidArgument) {
		status = models.StatusUnmatched
	}
	return &models.MatchResult{
		Raw:     raw,
		Matches: []matcher.Match{},
		Status:  status,
		Error:   err.Error(),
	}
}

func (ms *MatchService) resolve(opts requests.MatchOptions) (float64, int) {
	minConf := ms.thresholds.MinConfidence
	if opts.MinConfidence != nil {
		minConf = *opts.MinConfidence
	}
	maxResults := ms.thresholds.MaxResults
	if opts.MaxResults != nil {
		maxResults = *opts.MaxResults
	}
	return minConf, maxResults
}

func (ms *MatchService) record(status string, cacheHit bool, elapsed time.Duration) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.processed++
	if cacheHit {
		ms.cacheHits++
	}
	ms.statusCounts[status]++
	ms.totalLatency += elapsed
}

// ParcelVersion is the version of the parcel index results are computed
// against; empty until an index load is recorded.
func (ms *MatchService) ParcelVersion() string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.parcelVersion
}

func (ms *MatchService) SetParcelVersion(version string) {
	ms.mu.Lock()
	ms.parcelVersion = version
	ms.mu.Unlock()
	ms.matcher.ClearCache()
}

func (ms *MatchService) Cache() ICacheService { return ms.cache }

func (ms *MatchService) GetStartTime() time.Time {
	return ms.startTime
}

// MatchStats counts processed addresses since start.
type MatchStats struct {
	Processed    int64              `json:"processed"`
	CacheHits    int64              `json:"cache_hits"`
	StatusCounts map[string]int64   `json:"status_counts"`
	AvgLatencyMs float64            `json:"avg_latency_ms"`
	Engine       matcher.CacheStats `json:"engine_cache"`
}

func (ms *MatchService) GetStats() MatchStats {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	counts := make(map[string]int64, len(ms.statusCounts))
	for k, v := range ms.statusCounts {
		counts[k] = v
	}
	stats := MatchStats{
		Processed:    ms.processed,
		CacheHits:    ms.cacheHits,
		StatusCounts: counts,
		Engine:       ms.matcher.CacheStats(),
	}
	if ms.processed > 0 {
		stats.AvgLatencyMs = float64(ms.totalLatency.Microseconds()) / float64(ms.processed) / 1000
	}
	return stats
}
