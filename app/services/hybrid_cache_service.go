package services

import (
	"context"
	"errors"
	"time"

	"github.com/pacs-databridge/app/models"
	"go.uber.org/zap"
)

// HybridCacheService layers a fast cache (Redis) over a persistent one (Mongo).
type HybridCacheService struct {
	l1     ICacheService
	l2     ICacheService
	logger *zap.Logger
}

func NewHybridCacheService(l1, l2 ICacheService, logger *zap.Logger) *HybridCacheService {
	return &HybridCacheService{l1: l1, l2: l2, logger: logger}
}

// Get reads L1 then L2; L2 hits are copied back to L1 in the background.
func (hcs *HybridCacheService) Get(ctx context.Context, key string) (*models.MatchResult, bool, error) {
	result, found, err := hcs.l1.Get(ctx, key)
	if err != nil {
		hcs.logger.Warn("l1 cache error, falling back to l2", zap.Error(err))
	} else if found {
		return result, true, nil
	}

	result, found, err = hcs.l2.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hcs.l1.Set(bgCtx, key, result); err != nil {
			hcs.logger.Warn("cannot sync l2 hit to l1", zap.Error(err), zap.String("key", key))
		}
	}()
	return result, true, nil
}

func (hcs *HybridCacheService) Set(ctx context.Context, key string, result *models.MatchResult) error {
	return hcs.both(func(c ICacheService) error { return c.Set(ctx, key, result) })
}

func (hcs *HybridCacheService) Delete(ctx context.Context, key string) error {
	return hcs.both(func(c ICacheService) error { return c.Delete(ctx, key) })
}

func (hcs *HybridCacheService) Clear(ctx context.Context) error {
	return hcs.both(func(c ICacheService) error { return c.Clear(ctx) })
}

func (hcs *HybridCacheService) InvalidateByParcelVersion(ctx context.Context, parcelVersion string) error {
	err := hcs.both(func(c ICacheService) error { return c.InvalidateByParcelVersion(ctx, parcelVersion) })
	if err == nil {
		hcs.logger.Info("hybrid cache invalidated", zap.String("parcel_version", parcelVersion))
	}
	return err
}

// GetStats sums both layers; if one layer fails, the other's stats are returned.
func (hcs *HybridCacheService) GetStats(ctx context.Context) (*CacheStats, error) {
	s1, err1 := hcs.l1.GetStats(ctx)
	s2, err2 := hcs.l2.GetStats(ctx)
	switch {
	case err1 != nil && err2 != nil:
		return nil, errors.Join(err1, err2)
	case err1 != nil:
		return s2, nil
	case err2 != nil:
		return s1, nil
	}
	return newCacheStats(s1.TotalHits+s2.TotalHits, s1.TotalMiss+s2.TotalMiss, s2.TotalItems), nil
}

func (hcs *HybridCacheService) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := hcs.l1.Exists(ctx, key)
	if err != nil {
		hcs.logger.Warn("l1 exists check failed, falling back to l2", zap.Error(err))
	} else if ok {
		return true, nil
	}
	return hcs.l2.Exists(ctx, key)
}

func (hcs *HybridCacheService) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	return hcs.l1.GetTTL(ctx, key)
}

func (hcs *HybridCacheService) Close() error {
	return hcs.both(func(c ICacheService) error { return c.Close() })
}

// both runs op on the two layers concurrently and joins their errors.
func (hcs *HybridCacheService) both(op func(ICacheService) error) error {
	errCh := make(chan error, 2)
	for _, c := range []ICacheService{hcs.l1, hcs.l2} {
		go func(c ICacheService) { errCh <- op(c) }(c)
	}

	var errs []error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
