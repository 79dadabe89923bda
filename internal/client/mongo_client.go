package client

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"fraudsim/internal/config"
	"fraudsim/internal/util"
)

// MongoClient wraps the driver client plus the application database handle.
type MongoClient struct {
	Client *mongo.Client
	DB     *mongo.Database
	config *config.MongoConfig
}

func NewMongoClient(cfg *config.Config, logger *zap.Logger) (*MongoClient, error) {
	mongoConfig := cfg.Mongo

	ctx, cancel := context.WithTimeout(context.Background(), mongoConfig.Timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(mongoConfig.URI).
		SetConnectTimeout(mongoConfig.Timeout).
		SetServerSelectionTimeout(mongoConfig.Timeout)

	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	util.Info("MongoDB client initialized",
		zap.String("uri", mongoConfig.URI),
		zap.String("database", mongoConfig.Database),
	)

	return &MongoClient{
		Client: cli,
		DB:     cli.Database(mongoConfig.Database),
		config: &mongoConfig,
	}, nil
}

func (m *MongoClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.Client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}
	return nil
}

func (m *MongoClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.Client.Disconnect(ctx); err != nil {
		util.Error("failed to close MongoDB client", zap.Error(err))
		return err
	}
	util.Info("MongoDB client closed")
	return nil
}
