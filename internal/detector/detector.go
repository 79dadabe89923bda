// Package detector implements the fraud triage queries over a materialized
// session set. These are the reference algorithms: repository
// implementations that push aggregation down to a store must return
// logically identical results.
package detector

import (
	"errors"
	"fmt"
	"sort"

	"fraudsim/internal/model"
)

// ErrInvalidFilter marks an unrecognized user filter category. It is an
// argument error: surfaced to the caller directly, never retried.
var ErrInvalidFilter = errors.New("unrecognized filter category")

type ipGroup struct {
	sessionCount int
	riskSum      float64
	highVelocity bool
	users        map[string]struct{}
}

// IPVelocity groups sessions by IP address and reports every address
// referenced by more than one distinct user, sorted by distinct user count
// descending and truncated to topN (DefaultReportTopN when topN <= 0).
// It is a pure function of its input: running it twice over an unmodified
// session set yields identical output.
func IPVelocity(sessions []model.LoginSession, topN int) *model.IPVelocityReport {
	if topN <= 0 {
		topN = model.DefaultReportTopN
	}

	groups := make(map[string]*ipGroup)
	for _, s := range sessions {
		g, ok := groups[s.IPAddress]
		if !ok {
			g = &ipGroup{users: make(map[string]struct{})}
			groups[s.IPAddress] = g
		}
		g.sessionCount++
		g.riskSum += s.RiskScore
		g.users[s.UserID] = struct{}{}
		// Flag is a property of the address; any flagged session marks it.
		if s.HighVelocity {
			g.highVelocity = true
		}
	}

	shared := make([]model.SharedIPGroup, 0)
	flaggedShared := 0
	for ip, g := range groups {
		if len(g.users) <= 1 {
			continue
		}
		userIDs := make([]string, 0, len(g.users))
		for id := range g.users {
			userIDs = append(userIDs, id)
		}
		sort.Strings(userIDs)

		if g.highVelocity {
			flaggedShared++
		}
		shared = append(shared, model.SharedIPGroup{
			IPAddress:    ip,
			UserCount:    len(g.users),
			SessionCount: g.sessionCount,
			AvgRiskScore: g.riskSum / float64(g.sessionCount),
			HighVelocity: g.highVelocity,
			UserIDs:      userIDs,
		})
	}

	sort.Slice(shared, func(i, j int) bool {
		if shared[i].UserCount != shared[j].UserCount {
			return shared[i].UserCount > shared[j].UserCount
		}
		if shared[i].SessionCount != shared[j].SessionCount {
			return shared[i].SessionCount > shared[j].SessionCount
		}
		return shared[i].IPAddress < shared[j].IPAddress
	})

	total := len(shared)
	if len(shared) > topN {
		shared = shared[:topN]
	}

	return &model.IPVelocityReport{
		SharedIPs:           shared,
		SharedIPCount:       total,
		HighVelocityIPCount: flaggedShared,
	}
}

// FilterUsers returns the user IDs matching the given category. An unknown
// category fails with ErrInvalidFilter and no partial result.
func FilterUsers(sessions []model.LoginSession, category model.FilterCategory) (*model.UserFilterResult, error) {
	switch category {
	case model.FilterHighIPVelocity, model.FilterHighRisk:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilter, category)
	}

	type userAgg struct {
		total   int
		flagged int
		riskSum float64
	}
	byUser := make(map[string]*userAgg)
	for _, s := range sessions {
		a, ok := byUser[s.UserID]
		if !ok {
			a = &userAgg{}
			byUser[s.UserID] = a
		}
		a.total++
		a.riskSum += s.RiskScore
		if s.HighVelocity {
			a.flagged++
		}
	}

	matched := make([]string, 0)
	for id, a := range byUser {
		switch category {
		case model.FilterHighIPVelocity:
			if a.flagged >= model.HighVelocitySessionThreshold {
				matched = append(matched, id)
			}
		case model.FilterHighRisk:
			if a.riskSum/float64(a.total) >= model.HighRiskScoreThreshold {
				matched = append(matched, id)
			}
		}
	}
	sort.Strings(matched)

	return &model.UserFilterResult{
		Filter:     category,
		UserIDs:    matched,
		MatchCount: len(matched),
	}, nil
}

// UserDetail aggregates the sessions owned by userID. A user with zero
// sessions yields zero-valued aggregates, not an error.
func UserDetail(sessions []model.LoginSession, userID string) *model.UserSessionDetail {
	detail := &model.UserSessionDetail{
		UserID:   userID,
		Sessions: make([]model.LoginSession, 0),
	}

	ips := make(map[string]struct{})
	for _, s := range sessions {
		if s.UserID != userID {
			continue
		}
		detail.Sessions = append(detail.Sessions, s)
		ips[s.IPAddress] = struct{}{}
		if s.HighVelocity {
			detail.HighVelocityCount++
		}
	}

	detail.TotalSessions = len(detail.Sessions)
	detail.DistinctIPCount = len(ips)
	if detail.TotalSessions > 0 {
		detail.VelocityRatio = float64(detail.HighVelocityCount) / float64(detail.TotalSessions)
	}
	return detail
}

// Stats reports collection-wide totals used by the stats endpoint.
func Stats(sessions []model.LoginSession) *model.StatsSummary {
	users := make(map[string]struct{})
	ipUsers := make(map[string]map[string]struct{})
	flaggedIPs := make(map[string]struct{})

	var flaggedSessions int64
	for _, s := range sessions {
		users[s.UserID] = struct{}{}
		if _, ok := ipUsers[s.IPAddress]; !ok {
			ipUsers[s.IPAddress] = make(map[string]struct{})
		}
		ipUsers[s.IPAddress][s.UserID] = struct{}{}
		if s.HighVelocity {
			flaggedSessions++
			flaggedIPs[s.IPAddress] = struct{}{}
		}
	}

	var sharedIPs int64
	for _, owners := range ipUsers {
		if len(owners) > 1 {
			sharedIPs++
		}
	}

	return &model.StatsSummary{
		TotalSessions:       int64(len(sessions)),
		TotalUsers:          int64(len(users)),
		SharedIPCount:       sharedIPs,
		HighVelocityIPCount: int64(len(flaggedIPs)),
		FlaggedSessions:     flaggedSessions,
	}
}
