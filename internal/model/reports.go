package model

import "context"

// FilterCategory names a recognized user filter.
type FilterCategory string

const (
	// FilterHighIPVelocity selects users with at least
	// HighVelocitySessionThreshold flagged sessions.
	FilterHighIPVelocity FilterCategory = "high_ip_velocity"
	// FilterHighRisk selects users whose mean risk score is at least
	// HighRiskScoreThreshold.
	FilterHighRisk FilterCategory = "high_risk"
)

const (
	HighVelocitySessionThreshold = 3
	HighRiskScoreThreshold       = 0.7

	// DefaultReportTopN bounds the shared-IP report when the caller does not
	// ask for a specific size.
	DefaultReportTopN = 20
)

// SharedIPGroup describes one IP address referenced by more than one user.
type SharedIPGroup struct {
	IPAddress    string   `bson:"_id" json:"ip_address"`
	UserCount    int      `bson:"user_count" json:"user_count"`
	SessionCount int      `bson:"session_count" json:"session_count"`
	AvgRiskScore float64  `bson:"avg_risk_score" json:"avg_risk_score"`
	HighVelocity bool     `bson:"high_velocity" json:"high_velocity"`
	UserIDs      []string `bson:"user_ids" json:"user_ids"`
}

// IPVelocityReport is the output of the IP velocity query: all shared IPs
// sorted by distinct user count descending, truncated to the requested top-N.
type IPVelocityReport struct {
	SharedIPs           []SharedIPGroup `json:"shared_ips"`
	SharedIPCount       int             `json:"shared_ip_count"`
	HighVelocityIPCount int             `json:"high_velocity_ip_count"`
}

// UserFilterResult is the output of the user filter query.
type UserFilterResult struct {
	Filter     FilterCategory `json:"filter"`
	UserIDs    []string       `json:"user_ids"`
	MatchCount int            `json:"match_count"`
}

// UserSessionDetail aggregates every session a user owns. A user with no
// sessions yields zero-valued aggregates, not an error.
type UserSessionDetail struct {
	UserID            string         `json:"user_id"`
	Sessions          []LoginSession `json:"sessions"`
	TotalSessions     int            `json:"total_sessions"`
	DistinctIPCount   int            `json:"distinct_ip_count"`
	HighVelocityCount int            `json:"high_velocity_count"`
	VelocityRatio     float64        `json:"velocity_ratio"`
}

// StatsSummary reports collection-wide totals.
type StatsSummary struct {
	TotalSessions       int64 `json:"total_sessions"`
	TotalUsers          int64 `json:"total_users"`
	SharedIPCount       int64 `json:"shared_ip_count"`
	HighVelocityIPCount int64 `json:"high_velocity_ip_count"`
	FlaggedSessions     int64 `json:"flagged_sessions"`
}

// SessionRepository is the capability set the pattern detector needs from a
// session store: bulk insert plus grouping, distinct-count, and threshold
// filtering. The in-memory implementation is the reference; any push-down
// implementation must return logically identical results.
type SessionRepository interface {
	BulkInsert(ctx context.Context, sessions []LoginSession) error
	Reset(ctx context.Context) error
	EnsureIndexes(ctx context.Context) error

	IPVelocity(ctx context.Context, topN int) (*IPVelocityReport, error)
	FilterUsers(ctx context.Context, category FilterCategory) (*UserFilterResult, error)
	UserDetail(ctx context.Context, userID string) (*UserSessionDetail, error)
	Stats(ctx context.Context) (*StatsSummary, error)
}
