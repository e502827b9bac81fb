package bootstrap

import (
	"context"
	"testing"

	"github.com/pacs-databridge/app/config"
	"github.com/pacs-databridge/app/models"
	"github.com/pacs-databridge/app/requests"
	"github.com/pacs-databridge/app/services"
	"github.com/pacs-databridge/internal/matcher"
	"github.com/pacs-databridge/internal/parcels"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Matching: config.MatchingConfig{
			Weights:       matcher.DefaultWeights,
			MinConfidence: 70,
			ReviewLow:     70,
			MatchedHigh:   90,
			MaxResults:    5,
			CacheSize:     100,
		},
		Database: parcels.SQLConfig{Limit: 10},
		Cache:    config.CacheConfig{Type: "memory", Size: 100},
		Worker:   config.WorkerConfig{Concurrency: 2, MaxBatchAddresses: 100},
	}
}

func TestNew_MemoryOnly(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer c.Close(ctx)

	assert.Nil(t, c.Searcher)
	assert.Nil(t, c.SQL)
	assert.Nil(t, c.Mongo)
	assert.Empty(t, c.Checks)
	assert.IsType(t, &services.MemoryReviewStore{}, c.Reviews)
	assert.IsType(t, &services.MemoryCacheService{}, c.Cache)

	c.Memory.Load([]parcels.Parcel{
		{ParcelID: "P-1", StreetNumber: "123", StreetName: "Main St"},
		{ParcelID: "P-2", StreetNumber: "456", StreetName: "Oak Ave"},
	})

	res, hit, err := c.Match.MatchAddress(ctx, "123 Main Street", requests.MatchOptions{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, models.StatusMatched, res.Status)
	require.NotEmpty(t, res.Matches)
	assert.Equal(t, "P-1", res.Matches[0].ID)

	_, hit, err = c.Match.MatchAddress(ctx, "123 main street", requests.MatchOptions{})
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestNew_MongoCacheRequiresURI(t *testing.T) {
	cfg := memoryConfig()
	cfg.Cache.Type = "mongo"
	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "mongo.uri is required")
}

func TestNew_SQLSourceUnreachable(t *testing.T) {
	cfg := memoryConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = "file::memory:"
	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported database driver")
}
