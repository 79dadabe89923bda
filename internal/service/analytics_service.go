package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fraudsim/internal/client"
	"fraudsim/internal/model"
	"fraudsim/internal/util"
)

// AnalyticsService answers fraud-pattern queries over the persisted
// sessions. The IP velocity report is cached in Redis when a cache client
// is configured; all cache failures degrade to a repository read.
type AnalyticsService struct {
	repo   model.SessionRepository
	cache  *client.RedisClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewAnalyticsService(repo model.SessionRepository, cache *client.RedisClient, ttl time.Duration, logger *zap.Logger) *AnalyticsService {
	return &AnalyticsService{
		repo:   repo,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// IPVelocityReport returns the shared-IP velocity report limited to the
// topN busiest addresses. A non-positive topN falls back to the default.
func (s *AnalyticsService) IPVelocityReport(ctx context.Context, topN int) (*model.IPVelocityReport, error) {
	if topN <= 0 {
		topN = model.DefaultReportTopN
	}

	cacheKey := fmt.Sprintf("fraudsim:report:ip-velocity:%d", topN)
	if cached := s.cachedReport(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	report, err := s.repo.IPVelocity(ctx, topN)
	if err != nil {
		return nil, fmt.Errorf("build ip velocity report: %w", err)
	}

	s.storeReport(ctx, cacheKey, report)
	return report, nil
}

// FilterUsers returns the users matching a named fraud filter category.
func (s *AnalyticsService) FilterUsers(ctx context.Context, category model.FilterCategory) (*model.UserFilterResult, error) {
	return s.repo.FilterUsers(ctx, category)
}

// UserSessions returns the session detail for a single user. An unknown
// user yields an empty detail, not an error.
func (s *AnalyticsService) UserSessions(ctx context.Context, userID string) (*model.UserSessionDetail, error) {
	return s.repo.UserDetail(ctx, userID)
}

// Stats returns overall corpus counters.
func (s *AnalyticsService) Stats(ctx context.Context) (*model.StatsSummary, error) {
	return s.repo.Stats(ctx)
}

func (s *AnalyticsService) cachedReport(ctx context.Context, key string) *model.IPVelocityReport {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, client.ErrKeyNotFound) {
			s.logger.Warn("report cache read failed", util.String("key", key), util.ErrorField(err))
		}
		return nil
	}
	var report model.IPVelocityReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		s.logger.Warn("report cache entry corrupt", util.String("key", key), util.ErrorField(err))
		return nil
	}
	return &report
}

func (s *AnalyticsService) storeReport(ctx context.Context, key string, report *model.IPVelocityReport) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		s.logger.Warn("report cache marshal failed", util.ErrorField(err))
		return
	}
	if err := s.cache.Set(ctx, key, string(payload), s.ttl); err != nil {
		s.logger.Warn("report cache write failed", util.String("key", key), util.ErrorField(err))
	}
}
