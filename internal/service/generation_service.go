package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fraudsim/internal/client"
	"fraudsim/internal/config"
	"fraudsim/internal/generator"
	"fraudsim/internal/ippool"
	"fraudsim/internal/model"
	"fraudsim/internal/util"
)

// ErrInvalidUserCount marks a non-positive requested user count.
var ErrInvalidUserCount = errors.New("user count must be positive")

// reportCachePattern matches every cached analytics report.
const reportCachePattern = "fraudsim:report:*"

// GenerationService runs full simulation passes: build pools, classify each
// user once, synthesize sessions in parallel, persist them, and fan batches
// out to the secondary sinks.
type GenerationService struct {
	cfg    config.GeneratorConfig
	repo   model.SessionRepository
	sinks  []SessionSink
	cache  *client.RedisClient
	logger *zap.Logger
}

func NewGenerationService(cfg config.GeneratorConfig, repo model.SessionRepository, sinks []SessionSink, cache *client.RedisClient, logger *zap.Logger) *GenerationService {
	return &GenerationService{
		cfg:    cfg,
		repo:   repo,
		sinks:  sinks,
		cache:  cache,
		logger: logger,
	}
}

// RunParams parameterizes one generation run.
type RunParams struct {
	Users int   `json:"users"`
	Seed  int64 `json:"seed,omitempty"`
	// Fresh clears previously generated sessions first, like the original
	// pipeline did before each load.
	Fresh bool `json:"fresh,omitempty"`
}

// RunSummary reports what a generation run produced.
type RunSummary struct {
	Users             int           `json:"users"`
	HighVelocityUsers int           `json:"high_velocity_users"`
	Sessions          int64         `json:"sessions"`
	FlaggedSessions   int64         `json:"flagged_sessions"`
	Seed              int64         `json:"seed"`
	Duration          time.Duration `json:"duration_ns"`
}

// Run executes a generation pass. Users are processed in parallel workers;
// each worker owns its own rand source seeded from the run seed plus the
// user index, so a fixed seed reproduces the run regardless of scheduling.
// Persistence failures abort the whole run (fail-fast); sink failures are
// logged and skipped.
func (s *GenerationService) Run(ctx context.Context, params RunParams) (*RunSummary, error) {
	if params.Users <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidUserCount, params.Users)
	}

	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	start := time.Now()

	poolRng := rand.New(rand.NewSource(seed))
	pools := ippool.New(poolRng, s.cfg.SharedPoolSize, s.cfg.HighVelocityPoolSize)
	gen := generator.New(pools, generator.Params{
		HighVelocityUserRate: s.cfg.HighVelocityUserRate,
		MinSessionsPerUser:   s.cfg.MinSessionsPerUser,
		MaxSessionsPerUser:   s.cfg.MaxSessionsPerUser,
	})

	if params.Fresh {
		if err := s.repo.Reset(ctx); err != nil {
			return nil, fmt.Errorf("clear previous sessions: %w", err)
		}
	}

	var (
		totalSessions   atomic.Int64
		flaggedSessions atomic.Int64
		velocityUsers   atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for i := 0; i < params.Users; i++ {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed + int64(i) + 1))
			faker := gofakeit.New(uint64(seed) + uint64(i) + 1)

			userID := uuid.NewString()
			profile := gen.Classify(rng)
			count := gen.SessionCount(rng)
			sessions := gen.GenerateForUser(rng, faker, userID, count, profile)

			if err := s.repo.BulkInsert(gctx, sessions); err != nil {
				return fmt.Errorf("persist sessions for user %s: %w", userID, err)
			}

			for _, sink := range s.sinks {
				if err := sink.WriteBatch(gctx, userID, sessions); err != nil {
					s.logger.Warn("session sink write failed",
						util.String("sink", sink.Name()),
						util.String("user_id", userID),
						util.ErrorField(err),
					)
				}
			}

			if profile == generator.ProfileHighVelocity {
				velocityUsers.Add(1)
			}
			totalSessions.Add(int64(len(sessions)))
			for _, session := range sessions {
				if session.HighVelocity {
					flaggedSessions.Add(1)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.invalidateReportCache(ctx)

	summary := &RunSummary{
		Users:             params.Users,
		HighVelocityUsers: int(velocityUsers.Load()),
		Sessions:          totalSessions.Load(),
		FlaggedSessions:   flaggedSessions.Load(),
		Seed:              seed,
		Duration:          time.Since(start),
	}

	s.logger.Info("generation run completed",
		util.Int("users", summary.Users),
		util.Int("high_velocity_users", summary.HighVelocityUsers),
		util.Int64("sessions", summary.Sessions),
		util.Int64("flagged_sessions", summary.FlaggedSessions),
		util.Int64("seed", summary.Seed),
		util.Duration("duration", summary.Duration),
	)

	return summary, nil
}

func (s *GenerationService) invalidateReportCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DelByPattern(ctx, reportCachePattern); err != nil {
		s.logger.Warn("failed to invalidate report cache", util.ErrorField(err))
	}
}
