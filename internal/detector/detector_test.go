package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraudsim/internal/model"
)

func session(user, ip string, flagged bool, risk float64) model.LoginSession {
	return model.LoginSession{
		SessionID:    user + "-" + ip,
		UserID:       user,
		IPAddress:    ip,
		HighVelocity: flagged,
		RiskScore:    risk,
	}
}

func TestIPVelocitySharedOnly(t *testing.T) {
	sessions := []model.LoginSession{
		session("u1", "10.0.0.1", false, 0.2),
		session("u2", "10.0.0.1", false, 0.4),
		session("u3", "10.0.0.1", false, 0.6),
		session("u1", "10.0.0.2", false, 0.9),
	}

	report := IPVelocity(sessions, 20)

	require.Len(t, report.SharedIPs, 1)
	group := report.SharedIPs[0]
	assert.Equal(t, "10.0.0.1", group.IPAddress)
	assert.Equal(t, 3, group.UserCount)
	assert.Equal(t, 3, group.SessionCount)
	assert.InDelta(t, 0.4, group.AvgRiskScore, 1e-9)
	assert.False(t, group.HighVelocity)
	assert.Equal(t, []string{"u1", "u2", "u3"}, group.UserIDs)
	assert.Equal(t, 1, report.SharedIPCount)
	assert.Equal(t, 0, report.HighVelocityIPCount)
}

func TestIPVelocityFlagPropagates(t *testing.T) {
	sessions := []model.LoginSession{
		session("u1", "10.0.0.9", true, 0.8),
		session("u2", "10.0.0.9", true, 0.6),
	}

	report := IPVelocity(sessions, 20)

	require.Len(t, report.SharedIPs, 1)
	assert.True(t, report.SharedIPs[0].HighVelocity)
	assert.Equal(t, 1, report.HighVelocityIPCount)
}

func TestIPVelocitySortAndTruncate(t *testing.T) {
	var sessions []model.LoginSession
	// ip-3 shared by 3 users, ip-2 by 2, ip-4 by 4.
	for _, tc := range []struct {
		ip    string
		users int
	}{{"ip-3", 3}, {"ip-2", 2}, {"ip-4", 4}} {
		for i := 0; i < tc.users; i++ {
			sessions = append(sessions, session("user-"+tc.ip+"-"+string(rune('a'+i)), tc.ip, false, 0.5))
		}
	}

	report := IPVelocity(sessions, 2)

	require.Len(t, report.SharedIPs, 2)
	assert.Equal(t, "ip-4", report.SharedIPs[0].IPAddress)
	assert.Equal(t, "ip-3", report.SharedIPs[1].IPAddress)
	assert.Equal(t, 3, report.SharedIPCount, "count reflects all shared IPs before truncation")
}

func TestIPVelocityIdempotent(t *testing.T) {
	sessions := []model.LoginSession{
		session("u1", "10.1.1.1", true, 0.7),
		session("u2", "10.1.1.1", false, 0.3),
		session("u3", "10.2.2.2", false, 0.5),
		session("u4", "10.2.2.2", false, 0.55),
	}

	first := IPVelocity(sessions, 20)
	second := IPVelocity(sessions, 20)
	assert.Equal(t, first, second)
}

func TestIPVelocityEmptyInput(t *testing.T) {
	report := IPVelocity(nil, 20)
	assert.Empty(t, report.SharedIPs)
	assert.Zero(t, report.SharedIPCount)
	assert.Zero(t, report.HighVelocityIPCount)
}

func TestFilterUsersHighIPVelocity(t *testing.T) {
	var sessions []model.LoginSession
	// u1: 4 of 10 flagged -> included; u2: 2 of 10 flagged -> excluded.
	for i := 0; i < 10; i++ {
		sessions = append(sessions, session("u1", "a", i < 4, 0.5))
		sessions = append(sessions, session("u2", "b", i < 2, 0.5))
	}

	result, err := FilterUsers(sessions, model.FilterHighIPVelocity)
	require.NoError(t, err)

	assert.Equal(t, []string{"u1"}, result.UserIDs)
	assert.Equal(t, 1, result.MatchCount)
}

func TestFilterUsersHighRisk(t *testing.T) {
	sessions := []model.LoginSession{
		// u1 averages 0.72, u2 averages 0.69.
		session("u1", "a", false, 0.70),
		session("u1", "a", false, 0.74),
		session("u2", "b", false, 0.68),
		session("u2", "b", false, 0.70),
	}

	result, err := FilterUsers(sessions, model.FilterHighRisk)
	require.NoError(t, err)

	assert.Equal(t, []string{"u1"}, result.UserIDs)
	assert.Equal(t, 1, result.MatchCount)
}

func TestFilterUsersUnknownCategory(t *testing.T) {
	sessions := []model.LoginSession{session("u1", "a", true, 0.9)}

	result, err := FilterUsers(sessions, "bogus_filter")
	require.ErrorIs(t, err, ErrInvalidFilter)
	assert.Contains(t, err.Error(), "bogus_filter")
	assert.Nil(t, result, "no partial result on invalid filter")
}

func TestUserDetail(t *testing.T) {
	sessions := []model.LoginSession{
		session("u1", "10.0.0.1", true, 0.8),
		session("u1", "10.0.0.1", true, 0.7),
		session("u1", "10.0.0.2", false, 0.2),
		session("u1", "10.0.0.3", false, 0.1),
		session("u2", "10.0.0.4", false, 0.5),
	}

	detail := UserDetail(sessions, "u1")

	assert.Equal(t, 4, detail.TotalSessions)
	assert.Equal(t, 3, detail.DistinctIPCount)
	assert.Equal(t, 2, detail.HighVelocityCount)
	assert.InDelta(t, 0.5, detail.VelocityRatio, 1e-9)
	assert.Len(t, detail.Sessions, 4)
}

func TestUserDetailZeroSessions(t *testing.T) {
	detail := UserDetail(nil, "ghost")

	assert.Equal(t, "ghost", detail.UserID)
	assert.Zero(t, detail.TotalSessions)
	assert.Zero(t, detail.DistinctIPCount)
	assert.Zero(t, detail.HighVelocityCount)
	assert.Zero(t, detail.VelocityRatio)
	assert.Empty(t, detail.Sessions)
}

func TestStats(t *testing.T) {
	sessions := []model.LoginSession{
		session("u1", "shared", true, 0.9),
		session("u2", "shared", false, 0.3),
		session("u1", "solo", false, 0.2),
	}

	stats := Stats(sessions)

	assert.Equal(t, int64(3), stats.TotalSessions)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(1), stats.SharedIPCount)
	assert.Equal(t, int64(1), stats.HighVelocityIPCount)
	assert.Equal(t, int64(1), stats.FlaggedSessions)
}
