package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pacs-databridge/app/models"
)

type memoryEntry struct {
	result    *models.MatchResult
	expiresAt time.Time
}

// MemoryCacheService is a size-bounded in-process cache with a fixed TTL.
type MemoryCacheService struct {
	lru    *expirable.LRU[string, memoryEntry]
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

func NewMemoryCacheService(size int, ttl time.Duration) *MemoryCacheService {
	if size <= 0 {
		size = 10000
	}
	return &MemoryCacheService{
		lru: expirable.NewLRU[string, memoryEntry](size, nil, ttl),
		ttl: ttl,
	}
}

func (mcs *MemoryCacheService) Get(ctx context.Context, key string) (*models.MatchResult, bool, error) {
	entry, ok := mcs.lru.Get(key)
	if !ok {
		mcs.misses.Add(1)
		return nil, false, nil
	}
	mcs.hits.Add(1)
	return entry.result, true, nil
}

func (mcs *MemoryCacheService) Set(ctx context.Context, key string, result *models.MatchResult) error {
	entry := memoryEntry{result: result}
	if mcs.ttl > 0 {
		entry.expiresAt = time.Now().Add(mcs.ttl)
	}
	mcs.lru.Add(key, entry)
	return nil
}

func (mcs *MemoryCacheService) Delete(ctx context.Context, key string) error {
	mcs.lru.Remove(key)
	return nil
}

func (mcs *MemoryCacheService) Clear(ctx context.Context) error {
	mcs.lru.Purge()
	mcs.hits.Store(0)
	mcs.misses.Store(0)
	return nil
}

func (mcs *MemoryCacheService) InvalidateByParcelVersion(ctx context.Context, parcelVersion string) error {
	for _, key := range mcs.lru.Keys() {
		if entry, ok := mcs.lru.Peek(key); ok && entry.result.ParcelVersion != parcelVersion {
			mcs.lru.Remove(key)
		}
	}
	return nil
}

func (mcs *MemoryCacheService) GetStats(ctx context.Context) (*CacheStats, error) {
	return newCacheStats(mcs.hits.Load(), mcs.misses.Load(), int64(mcs.lru.Len())), nil
}

func (mcs *MemoryCacheService) Exists(ctx context.Context, key string) (bool, error) {
	return mcs.lru.Contains(key), nil
}

// GetTTL returns the time left before key expires; 0 when absent or when
// the cache has no TTL.
func (mcs *MemoryCacheService) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	entry, ok := mcs.lru.Peek(key)
	if !ok || entry.expiresAt.IsZero() {
		return 0, nil
	}
	if remaining := time.Until(entry.expiresAt); remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

func (mcs *MemoryCacheService) Close() error { return nil }
