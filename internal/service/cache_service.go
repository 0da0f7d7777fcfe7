package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/metropolis-api/internal/timetable"
	appErrors "github.com/noah-isme/metropolis-api/pkg/errors"
)

// CacheRepository stores JSON payloads by key.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CounterRepository counts hits inside a fixed window.
type CounterRepository interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// scheduleKeyVersion changes whenever the cached Day layout does.
const scheduleKeyVersion = "v1"

type cachedDay struct {
	// Day is nil for dates without a schedule, which are memoised too.
	Day *timetable.Day `json:"day"`
}

// CacheService memoises computed day schedules per term and date.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewCacheService constructs the schedule cache. A nil repo or enabled=false turns every call into a miss.
func NewCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Day returns the memoised schedule of termID on date. ok is false on a miss or when the cache is unreachable.
func (s *CacheService) Day(ctx context.Context, termID string, date time.Time) (day *timetable.Day, ok bool) {
	if !s.Enabled() {
		return nil, false
	}
	key := dayKey(termID, date)
	start := time.Now()
	var cached cachedDay
	err := s.repo.Get(ctx, key, &cached)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("schedule cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return cached.Day, true
}

// StoreDay memoises day, which may be nil, for termID on date.
func (s *CacheService) StoreDay(ctx context.Context, termID string, date time.Time, day *timetable.Day) {
	if !s.Enabled() {
		return
	}
	key := dayKey(termID, date)
	start := time.Now()
	err := s.repo.Set(ctx, key, cachedDay{Day: day}, s.ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("schedule cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateTerm drops every memoised day of the term.
func (s *CacheService) InvalidateTerm(ctx context.Context, termID string) error {
	if !s.Enabled() {
		return nil
	}
	return s.repo.DeleteByPattern(ctx, termKeyPrefix(termID)+"*")
}

func termKeyPrefix(termID string) string {
	return "schedule:" + scheduleKeyVersion + ":" + termID + ":"
}

func dayKey(termID string, date time.Time) string {
	return termKeyPrefix(termID) + date.Format(dateLayout)
}
