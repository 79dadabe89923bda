package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fraudsim/internal/config"
	"fraudsim/internal/model"
	"fraudsim/internal/repository/memory"
)

func defaultTestGeneratorConfig() config.GeneratorConfig {
	return config.GeneratorConfig{
		SharedPoolSize:       50,
		HighVelocityPoolSize: 10,
		HighVelocityUserRate: 0.30,
		MinSessionsPerUser:   5,
		MaxSessionsPerUser:   30,
		Workers:              4,
		ReportTopN:           20,
	}
}

type recordingSink struct {
	mu      sync.Mutex
	batches map[string]int
	fail    bool
}

func newRecordingSink(fail bool) *recordingSink {
	return &recordingSink{batches: make(map[string]int), fail: fail}
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) WriteBatch(_ context.Context, userID string, sessions []model.LoginSession) error {
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[userID] += len(sessions)
	return nil
}

func (s *recordingSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.batches {
		n += c
	}
	return n
}

func (s *recordingSink) users() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func newTestGenerationService(t *testing.T, repo model.SessionRepository, sinks ...SessionSink) *GenerationService {
	t.Helper()
	cfg := defaultTestGeneratorConfig()
	return NewGenerationService(cfg, repo, sinks, nil, zap.NewNop())
}

func TestRunRejectsNonPositiveUsers(t *testing.T) {
	svc := newTestGenerationService(t, memory.New())

	_, err := svc.Run(context.Background(), RunParams{Users: 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidUserCount)

	_, err = svc.Run(context.Background(), RunParams{Users: -5})
	assert.ErrorIs(t, err, ErrInvalidUserCount)
}

func TestRunPersistsAllSessions(t *testing.T) {
	repo := memory.New()
	sink := newRecordingSink(false)
	svc := newTestGenerationService(t, repo, sink)

	summary, err := svc.Run(context.Background(), RunParams{Users: 20, Seed: 42})
	require.NoError(t, err)

	assert.Equal(t, 20, summary.Users)
	assert.Equal(t, int64(42), summary.Seed)
	assert.Equal(t, int(summary.Sessions), len(repo.Sessions()))
	assert.Equal(t, int(summary.Sessions), sink.total())
	assert.Equal(t, 20, sink.users())

	// Session counts stay within the configured per-user range.
	assert.GreaterOrEqual(t, summary.Sessions, int64(20*5))
	assert.LessOrEqual(t, summary.Sessions, int64(20*30))
}

func TestRunFlaggedCountMatchesStoredSessions(t *testing.T) {
	repo := memory.New()
	svc := newTestGenerationService(t, repo)

	summary, err := svc.Run(context.Background(), RunParams{Users: 30, Seed: 7})
	require.NoError(t, err)

	flagged := int64(0)
	for _, s := range repo.Sessions() {
		if s.HighVelocity {
			flagged++
		}
	}
	assert.Equal(t, flagged, summary.FlaggedSessions)
}

func TestRunSinkFailureIsNonFatal(t *testing.T) {
	repo := memory.New()
	svc := newTestGenerationService(t, repo, newRecordingSink(true))

	summary, err := svc.Run(context.Background(), RunParams{Users: 5, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, int(summary.Sessions), len(repo.Sessions()))
}

func TestRunFreshClearsPreviousSessions(t *testing.T) {
	repo := memory.New()
	svc := newTestGenerationService(t, repo)

	_, err := svc.Run(context.Background(), RunParams{Users: 10, Seed: 3})
	require.NoError(t, err)

	second, err := svc.Run(context.Background(), RunParams{Users: 10, Seed: 4, Fresh: true})
	require.NoError(t, err)
	assert.Equal(t, int(second.Sessions), len(repo.Sessions()))

	// Without Fresh the runs accumulate.
	third, err := svc.Run(context.Background(), RunParams{Users: 10, Seed: 5})
	require.NoError(t, err)
	assert.Equal(t, int(second.Sessions+third.Sessions), len(repo.Sessions()))
}

func TestRunIsDeterministicForFixedSeed(t *testing.T) {
	repoA := memory.New()
	repoB := memory.New()

	a, err := newTestGenerationService(t, repoA).Run(context.Background(), RunParams{Users: 25, Seed: 99})
	require.NoError(t, err)
	b, err := newTestGenerationService(t, repoB).Run(context.Background(), RunParams{Users: 25, Seed: 99})
	require.NoError(t, err)

	assert.Equal(t, a.Sessions, b.Sessions)
	assert.Equal(t, a.FlaggedSessions, b.FlaggedSessions)
	assert.Equal(t, a.HighVelocityUsers, b.HighVelocityUsers)
}

func TestRunAssignsDefaultSeed(t *testing.T) {
	svc := newTestGenerationService(t, memory.New())

	summary, err := svc.Run(context.Background(), RunParams{Users: 2})
	require.NoError(t, err)
	assert.NotZero(t, summary.Seed)
}
