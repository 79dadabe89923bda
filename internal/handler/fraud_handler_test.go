package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fraudsim/internal/config"
	"fraudsim/internal/model"
	"fraudsim/internal/repository/memory"
	"fraudsim/internal/service"
)

func newTestServer(t *testing.T, sessions []model.LoginSession) *httptest.Server {
	t.Helper()

	repo := memory.New()
	if len(sessions) > 0 {
		require.NoError(t, repo.BulkInsert(context.Background(), sessions))
	}

	logger := zap.NewNop()
	analytics := service.NewAnalyticsService(repo, nil, time.Minute, logger)
	generation := service.NewGenerationService(config.GeneratorConfig{
		SharedPoolSize:       50,
		HighVelocityPoolSize: 10,
		HighVelocityUserRate: 0.30,
		MinSessionsPerUser:   5,
		MaxSessionsPerUser:   30,
		Workers:              4,
		ReportTopN:           20,
	}, repo, nil, nil, logger)

	fraudHandler := NewFraudHandler(analytics, generation, logger)
	healthHandler := NewHealthHandler(map[string]HealthChecker{
		"memory": func(context.Context) error { return nil },
	}, logger)

	router := NewRouter(fraudHandler, healthHandler, logger, RouterOptions{EnforceTLS: false})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func sharedIPFixture() []model.LoginSession {
	ts := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	return []model.LoginSession{
		{SessionID: "s1", UserID: "u1", IPAddress: "198.51.100.7", Timestamp: ts, HighVelocity: true, RiskScore: 0.9},
		{SessionID: "s2", UserID: "u2", IPAddress: "198.51.100.7", Timestamp: ts, HighVelocity: true, RiskScore: 0.8},
		{SessionID: "s3", UserID: "u1", IPAddress: "203.0.113.4", Timestamp: ts, RiskScore: 0.2},
		{SessionID: "s4", UserID: "u3", IPAddress: "203.0.113.4", Timestamp: ts, RiskScore: 0.3},
		{SessionID: "s5", UserID: "u4", IPAddress: "192.0.2.1", Timestamp: ts, RiskScore: 0.1},
	}
}

func decodeResponse(t *testing.T, res *http.Response) Response {
	t.Helper()
	defer res.Body.Close()
	var body Response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return body
}

func TestIPVelocityEndpoint(t *testing.T) {
	srv := newTestServer(t, sharedIPFixture())

	res, err := http.Get(srv.URL + "/api/v1/fraud/ip-velocity")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	body := decodeResponse(t, res)
	assert.True(t, body.Success)

	data, err := json.Marshal(body.Data)
	require.NoError(t, err)
	var report model.IPVelocityReport
	require.NoError(t, json.Unmarshal(data, &report))

	require.Len(t, report.SharedIPs, 2)
	assert.Equal(t, 2, report.SharedIPCount)
	assert.Equal(t, 1, report.HighVelocityIPCount)
}

func TestIPVelocityEndpointLimit(t *testing.T) {
	srv := newTestServer(t, sharedIPFixture())

	res, err := http.Get(srv.URL + "/api/v1/fraud/ip-velocity?limit=1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	body := decodeResponse(t, res)
	data, _ := json.Marshal(body.Data)
	var report model.IPVelocityReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Len(t, report.SharedIPs, 1)
	assert.Equal(t, 2, report.SharedIPCount)
}

func TestIPVelocityEndpointRejectsBadLimit(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, limit := range []string{"0", "-3", "abc"} {
		res, err := http.Get(srv.URL + "/api/v1/fraud/ip-velocity?limit=" + limit)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		res.Body.Close()
	}
}

func TestFilterUsersEndpoint(t *testing.T) {
	srv := newTestServer(t, sharedIPFixture())

	res, err := http.Get(srv.URL + "/api/v1/fraud/users?filter=high_risk")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	body := decodeResponse(t, res)
	assert.True(t, body.Success)
}

func TestFilterUsersEndpointUnknownCategory(t *testing.T) {
	srv := newTestServer(t, sharedIPFixture())

	res, err := http.Get(srv.URL + "/api/v1/fraud/users?filter=bogus_filter")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	body := decodeResponse(t, res)
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "bogus_filter")
}

func TestFilterUsersEndpointMissingFilter(t *testing.T) {
	srv := newTestServer(t, nil)

	res, err := http.Get(srv.URL + "/api/v1/fraud/users")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res.Body.Close()
}

func TestUserSessionsEndpoint(t *testing.T) {
	srv := newTestServer(t, sharedIPFixture())

	res, err := http.Get(srv.URL + "/api/v1/fraud/users/u1/sessions")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	body := decodeResponse(t, res)
	data, _ := json.Marshal(body.Data)
	var detail model.UserSessionDetail
	require.NoError(t, json.Unmarshal(data, &detail))
	assert.Equal(t, "u1", detail.UserID)
	assert.Equal(t, 2, detail.TotalSessions)
	assert.Equal(t, 2, detail.DistinctIPCount)
}

func TestUserSessionsEndpointUnknownUser(t *testing.T) {
	srv := newTestServer(t, sharedIPFixture())

	res, err := http.Get(srv.URL + "/api/v1/fraud/users/ghost/sessions")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	body := decodeResponse(t, res)
	data, _ := json.Marshal(body.Data)
	var detail model.UserSessionDetail
	require.NoError(t, json.Unmarshal(data, &detail))
	assert.Equal(t, "ghost", detail.UserID)
	assert.Zero(t, detail.TotalSessions)
}

func TestGenerateEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	res, err := http.Post(srv.URL+"/api/v1/fraud/generate", "application/json",
		strings.NewReader(`{"users":5,"seed":11}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	body := decodeResponse(t, res)
	data, _ := json.Marshal(body.Data)
	var summary service.RunSummary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 5, summary.Users)
	assert.GreaterOrEqual(t, summary.Sessions, int64(25))
}

func TestGenerateEndpointRejectsBadCounts(t *testing.T) {
	srv := newTestServer(t, nil)

	res, err := http.Post(srv.URL+"/api/v1/fraud/generate", "application/json",
		strings.NewReader(`{"users":0}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res.Body.Close()

	res, err = http.Post(srv.URL+"/api/v1/fraud/generate", "application/json",
		strings.NewReader(`not json`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res.Body.Close()
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t, sharedIPFixture())

	res, err := http.Get(srv.URL + "/api/v1/fraud/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	body := decodeResponse(t, res)
	data, _ := json.Marshal(body.Data)
	var stats model.StatsSummary
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, int64(5), stats.TotalSessions)
	assert.Equal(t, int64(4), stats.TotalUsers)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	res, err = http.Get(srv.URL + "/health/deep")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()
}

func TestUnknownEndpointReturns404(t *testing.T) {
	srv := newTestServer(t, nil)

	res, err := http.Get(srv.URL + "/api/v1/fraud/nope")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res.Body.Close()
}
