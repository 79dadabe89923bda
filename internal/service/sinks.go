package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"fraudsim/internal/client"
	"fraudsim/internal/model"
)

// SessionSink receives each user's generated batch in addition to the
// primary repository. Sinks are secondary outputs: a sink failure is logged
// and does not abort the run.
type SessionSink interface {
	Name() string
	WriteBatch(ctx context.Context, userID string, sessions []model.LoginSession) error
}

// esSink indexes every session as one document, ID'd by session ID.
type esSink struct {
	es *client.ESClient
}

func NewElasticsearchSink(es *client.ESClient) SessionSink {
	return &esSink{es: es}
}

func (s *esSink) Name() string { return "elasticsearch" }

func (s *esSink) WriteBatch(ctx context.Context, _ string, sessions []model.LoginSession) error {
	for _, session := range sessions {
		if err := s.es.IndexDocument(ctx, s.es.Index(), session.SessionID, session); err != nil {
			return fmt.Errorf("index session %s: %w", session.SessionID, err)
		}
	}
	return nil
}

// kafkaSink publishes one message per user batch, keyed by user ID.
type kafkaSink struct {
	producer *client.KafkaProducer
}

func NewKafkaSink(producer *client.KafkaProducer) SessionSink {
	return &kafkaSink{producer: producer}
}

func (s *kafkaSink) Name() string { return "kafka" }

func (s *kafkaSink) WriteBatch(ctx context.Context, userID string, sessions []model.LoginSession) error {
	payload, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("marshal session batch: %w", err)
	}
	return s.producer.Publish(ctx, []byte(userID), payload)
}

// clickhouseSink keeps flagged sessions in a MergeTree table for
// long-horizon analytics.
type clickhouseSink struct {
	ch     *client.ClickHouseClient
	logger *zap.Logger
}

const flaggedSessionsDDL = `
CREATE TABLE IF NOT EXISTS flagged_sessions (
	session_id       String,
	user_id          String,
	event_time       DateTime,
	ip_address       String,
	risk_score       Float64,
	duration_seconds Int32,
	action_count     Int32
) ENGINE = MergeTree()
ORDER BY (event_time, user_id)`

func NewClickHouseSink(ctx context.Context, ch *client.ClickHouseClient, logger *zap.Logger) (SessionSink, error) {
	if err := ch.Exec(ctx, flaggedSessionsDDL); err != nil {
		return nil, fmt.Errorf("ensure flagged_sessions table: %w", err)
	}
	return &clickhouseSink{ch: ch, logger: logger}, nil
}

func (s *clickhouseSink) Name() string { return "clickhouse" }

func (s *clickhouseSink) WriteBatch(ctx context.Context, _ string, sessions []model.LoginSession) error {
	rows := make([][]interface{}, 0)
	for _, session := range sessions {
		if !session.HighVelocity {
			continue
		}
		rows = append(rows, []interface{}{
			session.SessionID,
			session.UserID,
			session.Timestamp,
			session.IPAddress,
			session.RiskScore,
			int32(session.DurationSeconds),
			int32(session.ActionCount),
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return s.ch.BatchInsert(ctx, "INSERT INTO flagged_sessions", rows)
}
