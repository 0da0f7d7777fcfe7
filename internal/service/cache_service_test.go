package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/metropolis-api/internal/timetable"
)

type failingCache struct{ memoryCache }

func (f *failingCache) Get(context.Context, string, interface{}) error {
	return errors.New("redis: connection refused")
}

func TestCacheServiceMemoisesDaysPerTerm(t *testing.T) {
	repo := &memoryCache{}
	cache := NewCacheService(repo, nil, time.Hour, zap.NewNop(), true)
	ctx := context.Background()

	_, ok := cache.Day(ctx, "fall", day(2024, 9, 4))
	assert.False(t, ok)

	cache.StoreDay(ctx, "fall", day(2024, 9, 4), &timetable.Day{Date: "2024-09-04", CycleDay: 2, Variant: "default"})
	cache.StoreDay(ctx, "fall", day(2024, 9, 7), nil)
	cache.StoreDay(ctx, "spring", day(2025, 2, 3), &timetable.Day{Date: "2025-02-03", CycleDay: 1})
	assert.Contains(t, repo.entries, "schedule:v1:fall:2024-09-04")

	got, ok := cache.Day(ctx, "fall", day(2024, 9, 4))
	require.True(t, ok)
	assert.Equal(t, 2, got.CycleDay)

	weekend, ok := cache.Day(ctx, "fall", day(2024, 9, 7))
	require.True(t, ok)
	assert.Nil(t, weekend)

	require.NoError(t, cache.InvalidateTerm(ctx, "fall"))
	_, ok = cache.Day(ctx, "fall", day(2024, 9, 4))
	assert.False(t, ok)
	_, ok = cache.Day(ctx, "spring", day(2025, 2, 3))
	assert.True(t, ok)
}

func TestCacheServiceDisabled(t *testing.T) {
	ctx := context.Background()
	repo := &memoryCache{}

	off := NewCacheService(repo, nil, 0, nil, false)
	off.StoreDay(ctx, "fall", day(2024, 9, 4), &timetable.Day{})
	assert.Empty(t, repo.entries)
	assert.False(t, off.Enabled())

	var missing *CacheService
	_, ok := missing.Day(ctx, "fall", day(2024, 9, 4))
	assert.False(t, ok)
	assert.NoError(t, missing.InvalidateTerm(ctx, "fall"))

	assert.False(t, NewCacheService(nil, nil, 0, nil, true).Enabled())
}

func TestCacheServiceReadFailureIsAMiss(t *testing.T) {
	cache := NewCacheService(&failingCache{}, nil, time.Hour, zap.NewNop(), true)

	_, ok := cache.Day(context.Background(), "fall", day(2024, 9, 4))
	assert.False(t, ok)
}
