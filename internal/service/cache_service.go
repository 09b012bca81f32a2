package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

const (
	entryCachePrefix  = "timetable:entries:"
	defaultEntriesTTL = 5 * time.Minute
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
}

// CacheService caches entry listings per filter. Failures degrade to a miss; the cache is
// never the source of truth for conflict checks.
//
// A failed invalidation marks the cache stale: listings bypass it until an invalidation
// succeeds, so a mutation is never hidden behind an old snapshot.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
	stale   atomic.Bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = defaultEntriesTTL
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

// EntryListKey derives the cache key of an entry listing.
func EntryListKey(filter models.EntryFilter) string {
	status := string(filter.Status)
	if status == "" {
		status = "ALL"
	}
	semester := filter.SemesterID
	if semester == "" {
		semester = "*all*"
	}
	return entryCachePrefix + status + ":" + semester
}

// Entries returns the cached listing for filter. ok is false on a miss or backend error.
func (s *CacheService) Entries(ctx context.Context, filter models.EntryFilter) (entries []models.TimetableEntry, ok bool) {
	if !s.Enabled() {
		return nil, false
	}
	if s.stale.Load() {
		_ = s.InvalidateEntries(ctx)
		return nil, false
	}
	key := EntryListKey(filter)
	start := time.Now()
	err := s.repo.Get(ctx, key, &entries)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("entry cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return entries, true
}

// StoreEntries caches the listing produced for filter.
func (s *CacheService) StoreEntries(ctx context.Context, filter models.EntryFilter, entries []models.TimetableEntry) {
	if !s.Enabled() || s.stale.Load() {
		return
	}
	key := EntryListKey(filter)
	start := time.Now()
	err := s.repo.Set(ctx, key, entries, s.ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("entry cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateEntries drops every cached entry listing. On failure the cache stays bypassed
// until a later call succeeds.
func (s *CacheService) InvalidateEntries(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	pattern := entryCachePrefix + "*"
	removed, err := s.repo.DeleteByPattern(ctx, pattern)
	if err != nil {
		if !s.stale.Swap(true) {
			s.logger.Warn("entry cache invalidation failed; bypassing cache", zap.String("pattern", pattern), zap.Int("removed", removed), zap.Error(err))
		}
		return err
	}
	if s.stale.Swap(false) {
		s.logger.Info("entry cache invalidated after earlier failure; cache re-enabled")
	}
	s.metrics.RecordCacheInvalidation(removed)
	return nil
}

// Stale reports whether listings currently bypass the cache.
func (s *CacheService) Stale() bool {
	return s != nil && s.stale.Load()
}
