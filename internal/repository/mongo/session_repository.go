// Package mongo persists login sessions in a MongoDB collection and pushes
// the detector's aggregation queries down to the server as pipelines. The
// pipeline results must match the in-memory algorithms in
// internal/detector exactly.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"fraudsim/internal/detector"
	"fraudsim/internal/model"
)

type Repository struct {
	c      *mongo.Collection
	logger *zap.Logger
}

func New(db *mongo.Database, collection string, logger *zap.Logger) *Repository {
	return &Repository{
		c:      db.Collection(collection),
		logger: logger,
	}
}

// EnsureIndexes creates the indexes the detector queries group and filter on.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_sessions_user_ts"),
		},
		{
			Keys:    bson.D{{Key: "ip_address", Value: 1}},
			Options: options.Index().SetName("idx_sessions_ip"),
		},
		{
			Keys:    bson.D{{Key: "high_velocity", Value: 1}},
			Options: options.Index().SetName("idx_sessions_flag"),
		},
	}
	_, err := r.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// BulkInsert writes a generated batch in one InsertMany. Any failure aborts
// the batch; the run is fail-fast by design.
func (r *Repository) BulkInsert(ctx context.Context, sessions []model.LoginSession) error {
	if len(sessions) == 0 {
		return nil
	}

	docs := make([]interface{}, len(sessions))
	for i, s := range sessions {
		docs[i] = s
	}

	if _, err := r.c.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("bulk insert %d sessions: %w", len(sessions), err)
	}
	return nil
}

// Reset clears the collection before a fresh generation run.
func (r *Repository) Reset(ctx context.Context) error {
	if _, err := r.c.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("reset sessions collection: %w", err)
	}
	return nil
}

// IPVelocity groups by IP on the server and keeps addresses referenced by
// more than one distinct user. Sorting and the shared/flagged totals match
// the reference algorithm; truncation to topN happens after the totals are
// taken.
func (r *Repository) IPVelocity(ctx context.Context, topN int) (*model.IPVelocityReport, error) {
	if topN <= 0 {
		topN = model.DefaultReportTopN
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.M{
			"_id":           "$ip_address",
			"user_set":      bson.M{"$addToSet": "$user_id"},
			"session_count": bson.M{"$sum": 1},
			"avg_risk_score": bson.M{"$avg": "$risk_score"},
			"high_velocity": bson.M{"$max": "$high_velocity"},
		}}},
		bson.D{{Key: "$addFields", Value: bson.M{
			"user_count": bson.M{"$size": "$user_set"},
			"user_ids":   bson.M{"$sortArray": bson.M{"input": "$user_set", "sortBy": 1}},
		}}},
		bson.D{{Key: "$match", Value: bson.M{"user_count": bson.M{"$gt": 1}}}},
		bson.D{{Key: "$sort", Value: bson.D{
			{Key: "user_count", Value: -1},
			{Key: "session_count", Value: -1},
			{Key: "_id", Value: 1},
		}}},
	}

	cur, err := r.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("ip velocity aggregation: %w", err)
	}
	defer cur.Close(ctx)

	var groups []model.SharedIPGroup
	if err := cur.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("decode ip velocity groups: %w", err)
	}

	flagged := 0
	for _, g := range groups {
		if g.HighVelocity {
			flagged++
		}
	}

	total := len(groups)
	if len(groups) > topN {
		groups = groups[:topN]
	}
	if groups == nil {
		groups = []model.SharedIPGroup{}
	}

	return &model.IPVelocityReport{
		SharedIPs:           groups,
		SharedIPCount:       total,
		HighVelocityIPCount: flagged,
	}, nil
}

// FilterUsers pushes the per-user threshold filters down as pipelines. The
// category is validated before touching the store so an unknown value fails
// without a query.
func (r *Repository) FilterUsers(ctx context.Context, category model.FilterCategory) (*model.UserFilterResult, error) {
	var pipeline mongo.Pipeline

	switch category {
	case model.FilterHighIPVelocity:
		pipeline = mongo.Pipeline{
			bson.D{{Key: "$match", Value: bson.M{"high_velocity": true}}},
			bson.D{{Key: "$group", Value: bson.M{
				"_id":     "$user_id",
				"flagged": bson.M{"$sum": 1},
			}}},
			bson.D{{Key: "$match", Value: bson.M{
				"flagged": bson.M{"$gte": model.HighVelocitySessionThreshold},
			}}},
			bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
		}
	case model.FilterHighRisk:
		pipeline = mongo.Pipeline{
			bson.D{{Key: "$group", Value: bson.M{
				"_id":      "$user_id",
				"avg_risk": bson.M{"$avg": "$risk_score"},
			}}},
			bson.D{{Key: "$match", Value: bson.M{
				"avg_risk": bson.M{"$gte": model.HighRiskScoreThreshold},
			}}},
			bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
		}
	default:
		return nil, fmt.Errorf("%w: %q", detector.ErrInvalidFilter, category)
	}

	cur, err := r.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("user filter aggregation: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		UserID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode user filter rows: %w", err)
	}

	userIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		userIDs = append(userIDs, row.UserID)
	}

	return &model.UserFilterResult{
		Filter:     category,
		UserIDs:    userIDs,
		MatchCount: len(userIDs),
	}, nil
}

// UserDetail fetches the user's sessions and aggregates them with the
// reference algorithm; the per-user set is small enough that a push-down
// buys nothing.
func (r *Repository) UserDetail(ctx context.Context, userID string) (*model.UserSessionDetail, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	cur, err := r.c.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find sessions for user %s: %w", userID, err)
	}
	defer cur.Close(ctx)

	var sessions []model.LoginSession
	if err := cur.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("decode sessions for user %s: %w", userID, err)
	}

	return detector.UserDetail(sessions, userID), nil
}

// Stats reports collection-wide totals via one grouping pass plus counts.
func (r *Repository) Stats(ctx context.Context) (*model.StatsSummary, error) {
	total, err := r.c.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}

	flaggedSessions, err := r.c.CountDocuments(ctx, bson.M{"high_velocity": true})
	if err != nil {
		return nil, fmt.Errorf("count flagged sessions: %w", err)
	}

	users, err := r.c.Distinct(ctx, "user_id", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("distinct users: %w", err)
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.M{
			"_id":           "$ip_address",
			"user_set":      bson.M{"$addToSet": "$user_id"},
			"high_velocity": bson.M{"$max": "$high_velocity"},
		}}},
		bson.D{{Key: "$project", Value: bson.M{
			"user_count":    bson.M{"$size": "$user_set"},
			"high_velocity": 1,
		}}},
	}

	cur, err := r.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("stats aggregation: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		UserCount    int  `bson:"user_count"`
		HighVelocity bool `bson:"high_velocity"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode stats rows: %w", err)
	}

	var sharedIPs, flaggedIPs int64
	for _, row := range rows {
		if row.UserCount > 1 {
			sharedIPs++
		}
		if row.HighVelocity {
			flaggedIPs++
		}
	}

	return &model.StatsSummary{
		TotalSessions:       total,
		TotalUsers:          int64(len(users)),
		SharedIPCount:       sharedIPs,
		HighVelocityIPCount: flaggedIPs,
		FlaggedSessions:     flaggedSessions,
	}, nil
}

var _ model.SessionRepository = (*Repository)(nil)
