package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fraudsim/internal/detector"
	"fraudsim/internal/model"
	"fraudsim/internal/repository/memory"
)

func seedSessions(t *testing.T, repo *memory.Repository, sessions []model.LoginSession) {
	t.Helper()
	require.NoError(t, repo.BulkInsert(context.Background(), sessions))
}

func analyticsFixture() []model.LoginSession {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return []model.LoginSession{
		{SessionID: "s1", UserID: "u1", IPAddress: "198.51.100.7", Timestamp: ts, HighVelocity: true, RiskScore: 0.9},
		{SessionID: "s2", UserID: "u2", IPAddress: "198.51.100.7", Timestamp: ts, HighVelocity: true, RiskScore: 0.8},
		{SessionID: "s3", UserID: "u3", IPAddress: "198.51.100.7", Timestamp: ts, HighVelocity: true, RiskScore: 0.7},
		{SessionID: "s4", UserID: "u1", IPAddress: "203.0.113.4", Timestamp: ts, RiskScore: 0.2},
		{SessionID: "s5", UserID: "u2", IPAddress: "203.0.113.4", Timestamp: ts, RiskScore: 0.3},
		{SessionID: "s6", UserID: "u4", IPAddress: "192.0.2.1", Timestamp: ts, RiskScore: 0.1},
	}
}

func TestIPVelocityReportDefaultsTopN(t *testing.T) {
	repo := memory.New()
	seedSessions(t, repo, analyticsFixture())
	svc := NewAnalyticsService(repo, nil, time.Minute, zap.NewNop())

	report, err := svc.IPVelocityReport(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, report.SharedIPs, 2)
	assert.Equal(t, "198.51.100.7", report.SharedIPs[0].IPAddress)
	assert.Equal(t, 2, report.SharedIPCount)
	assert.Equal(t, 1, report.HighVelocityIPCount)
}

func TestIPVelocityReportHonorsLimit(t *testing.T) {
	repo := memory.New()
	seedSessions(t, repo, analyticsFixture())
	svc := NewAnalyticsService(repo, nil, time.Minute, zap.NewNop())

	report, err := svc.IPVelocityReport(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, report.SharedIPs, 1)
	// Totals describe the full corpus, not the truncated page.
	assert.Equal(t, 2, report.SharedIPCount)
}

func TestFilterUsersPassesThroughInvalidCategory(t *testing.T) {
	repo := memory.New()
	svc := NewAnalyticsService(repo, nil, time.Minute, zap.NewNop())

	_, err := svc.FilterUsers(context.Background(), "bogus_filter")
	require.Error(t, err)
	assert.ErrorIs(t, err, detector.ErrInvalidFilter)
}

func TestFilterUsersHighVelocity(t *testing.T) {
	repo := memory.New()
	sessions := analyticsFixture()
	// Give u1 three flagged sessions to cross the per-user threshold.
	sessions = append(sessions,
		model.LoginSession{SessionID: "s7", UserID: "u1", IPAddress: "198.51.100.9", HighVelocity: true, RiskScore: 0.6},
		model.LoginSession{SessionID: "s8", UserID: "u1", IPAddress: "198.51.100.9", HighVelocity: true, RiskScore: 0.6},
	)
	seedSessions(t, repo, sessions)
	svc := NewAnalyticsService(repo, nil, time.Minute, zap.NewNop())

	result, err := svc.FilterUsers(context.Background(), model.FilterHighIPVelocity)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, result.UserIDs)
}

func TestUserSessionsUnknownUser(t *testing.T) {
	repo := memory.New()
	seedSessions(t, repo, analyticsFixture())
	svc := NewAnalyticsService(repo, nil, time.Minute, zap.NewNop())

	detail, err := svc.UserSessions(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", detail.UserID)
	assert.Zero(t, detail.TotalSessions)
	assert.Empty(t, detail.Sessions)
}

func TestStats(t *testing.T) {
	repo := memory.New()
	seedSessions(t, repo, analyticsFixture())
	svc := NewAnalyticsService(repo, nil, time.Minute, zap.NewNop())

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.TotalSessions)
	assert.Equal(t, int64(4), stats.TotalUsers)
	assert.Equal(t, int64(3), stats.FlaggedSessions)
}
